package auth

import "testing"

func TestRoleAllowed(t *testing.T) {
	tests := []struct {
		op   Operation
		role Role
		want bool
	}{
		{OpSetMasterPin, RoleSuperAdmin, true},
		{OpSetMasterPin, RolePropertyManager, false},
		{OpSetMasterPin, RoleTenant, false},
		{OpResetUserPin, RoleSuperAdmin, true},
		{OpResetUserPin, RoleFrontDesk, false},
		{OpViewIntercomLogs, RoleSuperAdmin, true},
		{OpViewIntercomLogs, RoleStaff, false},
		{OpWatchEvents, RolePropertyManager, false},
		{OpSetOwnPin, RoleTenant, true},
		{OpCreateAccessCode, RoleTenant, true},
		{OpManageAccessCode, RoleFrontDesk, true},
		{OpQueryLogs, RoleStaff, true},
		{OpVerify, "", true},
		{OpSetOwnPin, "", false},
		{Operation("unknown"), RoleSuperAdmin, false},
	}

	for _, tt := range tests {
		if got := RoleAllowed(tt.op, tt.role); got != tt.want {
			t.Errorf("RoleAllowed(%q, %q) = %v, want %v", tt.op, tt.role, got, tt.want)
		}
	}
}

func TestPolicy_Flags(t *testing.T) {
	if !RuleFor(OpResetUserPin).MasterPin {
		t.Error("resetting another user's PIN must require the master PIN")
	}
	if !RuleFor(OpSetOwnPin).Self {
		t.Error("setting own PIN must be limited to self")
	}
	manage := RuleFor(OpManageAccessCode)
	if !manage.Building || !manage.TenantOwnRecords || !manage.TenantOwnBuilding {
		t.Errorf("manage access code rule = %+v, want building and tenant checks", manage)
	}
	if RuleFor(OpCreateAccessCode).TenantOwnRecords {
		t.Error("create has no existing record to own")
	}
}
