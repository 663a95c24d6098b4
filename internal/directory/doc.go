// Package directory reads the users, buildings, intercoms and tenants that
// the wider property-management platform owns.
//
// The access core never mutates these tables during normal operation. The
// provisioning helpers in seed.go exist for first-run seeding and tests.
package directory
