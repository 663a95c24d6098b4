// Package mqtt publishes intercom events to the MQTT broker.
//
// The access service decides; this package only delivers. A granted
// verification produces an unlock command for the door controller, and
// every verification produces an access event:
//
//	intercomd → broker → door controllers, dashboards, integrations
//
// The client reconnects on its own and announces itself on a retained
// status topic, with a Last Will so subscribers notice a crash.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
//	err = client.Publish(topics.IntercomUnlock(12), payload, 1, false)
//
// TLS should be enabled (cfg.Broker.TLS) whenever the broker is not on
// localhost. Payloads never contain PINs or codes.
package mqtt
