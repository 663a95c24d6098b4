package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementAccessAttempts holds one point per verification.
const MeasurementAccessAttempts = "access_attempts"

// WriteAccessAttempt records a verification outcome. Tags stay low
// cardinality (intercom, credential type, outcome); the reason is a field.
// The write is batched and never blocks the caller.
func (c *Client) WriteAccessAttempt(intercomID int64, credentialType string, granted bool, reason string, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(accessAttemptPoint(intercomID, credentialType, granted, reason, ts))
}

func accessAttemptPoint(intercomID int64, credentialType string, granted bool, reason string, ts time.Time) *write.Point {
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	return write.NewPoint(
		MeasurementAccessAttempts,
		map[string]string{
			"intercom_id":     strconv.FormatInt(intercomID, 10),
			"credential_type": credentialType,
			"outcome":         outcome,
		},
		map[string]any{
			"granted": granted,
			"reason":  reason,
		},
		ts,
	)
}
