package influxdb

import "errors"

// Sentinel errors. Batch write failures arrive through SetOnError wrapped
// in ErrWriteFailed.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrWriteFailed      = errors.New("influxdb: write failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
)
