package mqtt

import "fmt"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "intercom"

// Topics builds the intercom topic hierarchy under a prefix:
//
//	{prefix}/command/{intercom_id}/unlock   unlock command for the door controller
//	{prefix}/access/{intercom_id}/event     every verification outcome
//	{prefix}/system/status                  retained online/offline status
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, falling back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// IntercomUnlock is the topic the door controller of an intercom listens on.
//
// Example: intercom/command/12/unlock
func (t Topics) IntercomUnlock(intercomID int64) string {
	return fmt.Sprintf("%s/command/%d/unlock", t.prefix(), intercomID)
}

// IntercomAccessEvent carries granted and denied attempts of one intercom.
//
// Example: intercom/access/12/event
func (t Topics) IntercomAccessEvent(intercomID int64) string {
	return fmt.Sprintf("%s/access/%d/event", t.prefix(), intercomID)
}

// AllAccessEvents matches the access events of every intercom.
func (t Topics) AllAccessEvents() string {
	return t.prefix() + "/access/+/event"
}

// SystemStatus is the retained service status topic, also used for the LWT.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}
