// Package audit is the append-only ledger of access attempts and credential
// changes.
//
// Append is the only write. It takes part in the caller's transaction so a
// failed append rolls back the change it describes; the table itself
// rejects UPDATE and DELETE with triggers.
package audit
