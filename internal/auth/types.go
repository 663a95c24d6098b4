package auth

import "errors"

// Sentinel errors.
var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrUnknownRole  = errors.New("unknown role")
)

// Role represents an authorisation tier in the platform.
type Role string

const (
	// RoleSuperAdmin operates the platform. Bypasses building checks and is
	// the only role that manages master PINs or reads per-intercom logs.
	RoleSuperAdmin Role = "super_admin"

	// RolePropertyManager owns buildings (as their customer) and the users
	// they provision.
	RolePropertyManager Role = "property_manager"

	// RoleFrontDesk staffs a building lobby. Needs an explicit building grant.
	RoleFrontDesk Role = "front_desk"

	// RoleStaff covers maintenance and security staff. Needs an explicit building grant.
	RoleStaff Role = "staff"

	// RoleTenant lives in exactly one building and only manages their own codes.
	RoleTenant Role = "tenant"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleSuperAdmin, RolePropertyManager, RoleFrontDesk, RoleStaff, RoleTenant}

// ParseRole validates a role claim.
func ParseRole(s string) (Role, error) {
	for _, r := range ValidRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", ErrUnknownRole
}

// Principal is an authenticated caller.
type Principal struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// IsSuperAdmin reports whether the caller is a Super Admin.
func (p Principal) IsSuperAdmin() bool { return p.Role == RoleSuperAdmin }

// IsTenant reports whether the caller is a tenant.
func (p Principal) IsTenant() bool { return p.Role == RoleTenant }
