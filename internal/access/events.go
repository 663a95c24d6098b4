package access

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/intercom-access/internal/credential"
)

// EventChannel is the hub channel verification events are broadcast on.
const EventChannel = "access.verified"

// Event describes one verification outcome. It never carries the
// presented secret.
type Event struct {
	ID              string          `json:"id"`
	LogID           int64           `json:"logId,omitempty"`
	IntercomID      int64           `json:"intercomId"`
	BuildingID      *int64          `json:"buildingId,omitempty"`
	Granted         bool            `json:"granted"`
	Reason          string          `json:"reason"`
	CredentialType  credential.Type `json:"credentialType"`
	CredentialRefID *int64          `json:"credentialRefId,omitempty"`
	UserID          *int64          `json:"userId,omitempty"`
	DeviceInfo      string          `json:"deviceInfo,omitempty"`
	OccurredAt      time.Time       `json:"occurredAt"`
}

// EventSink receives verification outcomes after the decision is final.
// Sinks are best-effort: an error is logged and never changes the decision.
type EventSink interface {
	HandleAccessEvent(ctx context.Context, ev Event) error
}

// MQTTClient is the interface for publishing to the broker.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// TopicBuilder names the intercom topics.
type TopicBuilder interface {
	IntercomUnlock(intercomID int64) string
	IntercomAccessEvent(intercomID int64) string
}

// MQTTSink publishes every outcome as an access event, and an unlock
// command when access was granted.
type MQTTSink struct {
	client MQTTClient
	topics TopicBuilder
	qos    byte
}

// NewMQTTSink creates an MQTTSink.
func NewMQTTSink(client MQTTClient, topics TopicBuilder, qos byte) *MQTTSink {
	return &MQTTSink{client: client, topics: topics, qos: qos}
}

// unlockCommand is the payload the door controller acts on.
type unlockCommand struct {
	EventID        string          `json:"eventId"`
	IntercomID     int64           `json:"intercomId"`
	CredentialType credential.Type `json:"credentialType"`
	IssuedAt       string          `json:"issuedAt"`
}

// HandleAccessEvent implements EventSink. Attempts without an intercom
// have no topic and are skipped.
func (m *MQTTSink) HandleAccessEvent(_ context.Context, ev Event) error {
	if ev.IntercomID == 0 {
		return nil
	}
	if ev.Granted {
		cmd, err := json.Marshal(unlockCommand{
			EventID:        ev.ID,
			IntercomID:     ev.IntercomID,
			CredentialType: ev.CredentialType,
			IssuedAt:       ev.OccurredAt.Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("marshalling unlock command: %w", err)
		}
		if err := m.client.Publish(m.topics.IntercomUnlock(ev.IntercomID), cmd, m.qos, false); err != nil {
			return fmt.Errorf("publishing unlock command: %w", err)
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling access event: %w", err)
	}
	if err := m.client.Publish(m.topics.IntercomAccessEvent(ev.IntercomID), payload, m.qos, false); err != nil {
		return fmt.Errorf("publishing access event: %w", err)
	}
	return nil
}

// AttemptWriter records access attempts as time-series points.
type AttemptWriter interface {
	WriteAccessAttempt(intercomID int64, credentialType string, granted bool, reason string, ts time.Time)
}

// MetricsSink writes one point per attempt.
type MetricsSink struct {
	w AttemptWriter
}

// NewMetricsSink creates a MetricsSink.
func NewMetricsSink(w AttemptWriter) *MetricsSink {
	return &MetricsSink{w: w}
}

// HandleAccessEvent implements EventSink.
func (m *MetricsSink) HandleAccessEvent(_ context.Context, ev Event) error {
	m.w.WriteAccessAttempt(ev.IntercomID, string(ev.CredentialType), ev.Granted, ev.Reason, ev.OccurredAt)
	return nil
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// HubSink forwards events to live WebSocket subscribers.
type HubSink struct {
	hub WSHub
}

// NewHubSink creates a HubSink.
func NewHubSink(hub WSHub) *HubSink {
	return &HubSink{hub: hub}
}

// HandleAccessEvent implements EventSink.
func (h *HubSink) HandleAccessEvent(_ context.Context, ev Event) error {
	h.hub.Broadcast(EventChannel, ev)
	return nil
}

// emit fans ev out to every sink.
func (s *Service) emit(ctx context.Context, ev Event) {
	for _, sink := range s.sinks {
		if err := sink.HandleAccessEvent(ctx, ev); err != nil {
			s.logger.Warn("access event sink failed",
				"sink", fmt.Sprintf("%T", sink),
				"intercom_id", ev.IntercomID,
				"error", err,
			)
		}
	}
}
