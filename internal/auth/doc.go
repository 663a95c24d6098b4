// Package auth identifies callers and holds the credential authorisation policy.
//
// Tokens are HS256 JWTs issued by the platform: the subject is the numeric
// user id and the role claim one of the ValidRoles. The service never
// issues tokens in production.
//
// The policy table in permissions.go maps every credential operation to a
// Rule. Role membership is answered here; building ownership, tenancy and
// master PIN checks are data dependent and are evaluated by the access
// package using the Rule flags.
package auth
