// Package access is the intercom access core.
//
// A Service combines the credential store, the visibility resolver, the
// authorisation guard and the audit ledger:
//
//   - Administrative operations (master PIN, user PINs, access codes) pass
//     the Guard, write the store and append to the ledger in one
//     transaction. Refused attempts are appended too.
//   - Verify is anonymous. It matches the presented secret against access
//     codes, optionally user PINs, then the master PIN, and always appends
//     exactly one ledger row. Outcomes are then fanned out to EventSinks
//     (MQTT unlock and event topics, InfluxDB, the WebSocket hub).
//   - QueryLogs and IntercomLogs are the scoped read side of the ledger.
//
// Business failures are *Error values; match them with errors.Is against
// ErrNotFound, ErrNotAllowed, ErrInvalidCredential, ErrMasterPinRequired,
// ErrInvalidMasterPin, ErrValidation and ErrInvalidOrExpired.
package access
