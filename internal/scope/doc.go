// Package scope decides which owned records a user may see.
//
// Every user type carries a data access mode:
//
//	ALL  no restriction (also the default for a missing or unknown setting)
//	OWN  records the user created
//	PM   records created by anyone in the user's Property Manager ecosystem
//
// The ecosystem of a Property Manager P is P plus the users P provisioned
// directly. It is one level deep, not a transitive closure.
//
// Any type with an OwnerID method can be filtered, either in memory with
// Filter or in SQL with Visibility.SQL.
package scope
