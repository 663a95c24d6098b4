// Package config loads the intercom access service configuration.
//
// Load starts from Default, overlays the YAML file, then applies
// INTERCOM_* environment overrides and validates the result. All
// validation problems are reported in a single error.
//
// Secrets belong in the environment: INTERCOM_JWT_SECRET,
// INTERCOM_MQTT_PASSWORD and INTERCOM_INFLUXDB_TOKEN. The JWT secret has
// no default and must be at least 32 characters.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	hasher := credential.NewHasher(cfg.Security.HashCost)
package config
