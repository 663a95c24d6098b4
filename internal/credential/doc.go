// Package credential stores master PINs, user PINs and access codes.
//
// Secrets are stored as bcrypt hashes and compared with bcrypt's constant
// time verification. Validity (active flag, soft deletion, the valid-from
// and expiry window) is evaluated in SQL at read time; there is no sweeper.
//
// Single-use consumption is a conditional update that succeeds for exactly
// one caller, see Store.ConsumeSingleUse.
package credential
