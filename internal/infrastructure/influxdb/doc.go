// Package influxdb records intercom access attempts as time series.
//
// Each verification becomes one point in the access_attempts measurement,
// tagged by intercom, credential type and outcome. Dashboards use it for
// attempt rates and brute-force detection; the SQLite access log stays the
// authoritative record.
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Failed batches are reported through SetOnError.
package influxdb
