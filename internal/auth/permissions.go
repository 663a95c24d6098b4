package auth

// Operation names a credential management action.
type Operation string

// Operation constants.
const (
	OpSetMasterPin     Operation = "master_pin:set"
	OpSetOwnPin        Operation = "user_pin:set_own"
	OpResetUserPin     Operation = "user_pin:reset_other"
	OpVerify           Operation = "access:verify"
	OpViewIntercomLogs Operation = "access_log:view_intercom"
	OpQueryLogs        Operation = "access_log:query"
	OpCreateAccessCode Operation = "access_code:create"
	OpManageAccessCode Operation = "access_code:manage"
	OpViewAccessCodes  Operation = "access_code:view"
	OpWatchEvents      Operation = "access_event:watch"
)

// Rule describes who may perform an operation. Role membership is checked
// here; the data-dependent conditions are flags evaluated by the caller
// against the target records.
type Rule struct {
	// Anonymous operations need no caller at all.
	Anonymous bool

	// Roles allowed to attempt the operation. Nil means any authenticated role.
	Roles []Role

	// Self requires the caller to be the target user.
	Self bool

	// MasterPin requires the current master PIN of the intercom.
	MasterPin bool

	// Building requires an explicit grant on the target building, or
	// ownership of it as customer or creator. Super Admin skips this.
	Building bool

	// TenantOwnBuilding pins a tenant to the building they live in.
	TenantOwnBuilding bool

	// TenantOwnRecords limits a tenant to records they created.
	TenantOwnRecords bool
}

// policy is the single source of truth for credential authorisation.
var policy = map[Operation]Rule{
	OpSetMasterPin:     {Roles: []Role{RoleSuperAdmin}},
	OpSetOwnPin:        {Self: true},
	OpResetUserPin:     {Roles: []Role{RoleSuperAdmin}, MasterPin: true},
	OpVerify:           {Anonymous: true},
	OpViewIntercomLogs: {Roles: []Role{RoleSuperAdmin}},
	OpQueryLogs:        {TenantOwnRecords: true},
	OpCreateAccessCode: {Building: true, TenantOwnBuilding: true},
	OpManageAccessCode: {Building: true, TenantOwnBuilding: true, TenantOwnRecords: true},
	OpViewAccessCodes:  {TenantOwnRecords: true},
	OpWatchEvents:      {Roles: []Role{RoleSuperAdmin}},
}

// RuleFor returns the rule for op. Unknown operations get a rule nobody satisfies.
func RuleFor(op Operation) Rule {
	r, ok := policy[op]
	if !ok {
		return Rule{Roles: []Role{}}
	}
	return r
}

// RoleAllowed reports whether role passes the role check of op.
func RoleAllowed(op Operation, role Role) bool {
	r := RuleFor(op)
	if r.Roles == nil {
		return r.Anonymous || role != ""
	}
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}
