package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/intercom-access/internal/auth"
	"github.com/nerrad567/intercom-access/internal/credential"
	"github.com/nerrad567/intercom-access/internal/directory"
)

// GuardDirectory is what the guard reads from the directory.
type GuardDirectory interface {
	Building(ctx context.Context, id int64) (*directory.Building, error)
	TenantByUser(ctx context.Context, userID int64) (*directory.Tenant, error)
	HasBuildingPermission(ctx context.Context, userID, buildingID int64) (bool, error)
}

// PinVerifier checks a secret against a stored hash.
type PinVerifier interface {
	Verify(hash, secret string) bool
}

// Target describes what an operation acts on. Zero fields are absent.
type Target struct {
	// UserID is the user whose credential is touched.
	UserID int64

	// BuildingID is the building the record belongs to, or the one the
	// caller asked for on create.
	BuildingID int64

	// OwnerID is the creator of an existing record.
	OwnerID *int64

	// MasterPin is the intercom's active master PIN, if any, and
	// SuppliedMasterPin what the caller sent to prove knowledge of it.
	MasterPin         *credential.MasterPin
	SuppliedMasterPin string
}

// Decision is the outcome of a successful check.
type Decision struct {
	// BuildingID is the building the operation is bound to. For tenants it
	// is their own building.
	BuildingID int64

	// Tenant is set when the caller acted as a tenant.
	Tenant *directory.Tenant
}

// Guard evaluates the authorisation policy for credential operations.
// It holds no state beyond its collaborators.
type Guard struct {
	dir    GuardDirectory
	hasher PinVerifier
}

// NewGuard creates a Guard.
func NewGuard(dir GuardDirectory, hasher PinVerifier) *Guard {
	return &Guard{dir: dir, hasher: hasher}
}

// Check evaluates op for caller p against t. A nil error means allowed.
// Every denial is an *Error of kind NotAllowed, MasterPinRequired,
// InvalidMasterPin, NotFound or ValidationError.
func (g *Guard) Check(ctx context.Context, op auth.Operation, p auth.Principal, t Target) (Decision, error) {
	opName := string(op)
	rule := auth.RuleFor(op)

	if rule.Anonymous {
		return Decision{BuildingID: t.BuildingID}, nil
	}
	if p.UserID == 0 {
		return Decision{}, newError(KindNotAllowed, opName, "authentication required")
	}
	if rule.Self && t.UserID != p.UserID {
		return Decision{}, newError(KindNotAllowed, opName, "only the user themselves may do this")
	}
	if !auth.RoleAllowed(op, p.Role) {
		return Decision{}, newError(KindNotAllowed, opName, fmt.Sprintf("role %q may not do this", p.Role))
	}
	if rule.MasterPin {
		if err := g.checkMasterPin(opName, t); err != nil {
			return Decision{}, err
		}
	}

	if p.IsTenant() {
		return g.checkTenant(ctx, opName, rule, p, t)
	}

	if !rule.Building {
		return Decision{BuildingID: t.BuildingID}, nil
	}
	if t.BuildingID == 0 {
		return Decision{}, newError(KindValidation, opName, "building id is required")
	}
	b, err := g.dir.Building(ctx, t.BuildingID)
	if err != nil {
		if errors.Is(err, directory.ErrBuildingNotFound) {
			return Decision{}, notFound(opName, err)
		}
		return Decision{}, fmt.Errorf("%s: %w", opName, err)
	}
	if p.IsSuperAdmin() {
		return Decision{BuildingID: b.ID}, nil
	}
	if isUser(b.CustomerID, p.UserID) || isUser(b.CreatedBy, p.UserID) {
		return Decision{BuildingID: b.ID}, nil
	}
	ok, err := g.dir.HasBuildingPermission(ctx, p.UserID, b.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", opName, err)
	}
	if !ok {
		return Decision{}, newError(KindNotAllowed, opName, "no access to this building")
	}
	return Decision{BuildingID: b.ID}, nil
}

func (g *Guard) checkMasterPin(opName string, t Target) error {
	if t.SuppliedMasterPin == "" {
		return newError(KindMasterPinRequired, opName, "master pin is required to reset another user's pin")
	}
	if t.MasterPin == nil || !g.hasher.Verify(t.MasterPin.PinHash, t.SuppliedMasterPin) {
		return newError(KindInvalidMasterPin, opName, "invalid master pin")
	}
	return nil
}

func (g *Guard) checkTenant(ctx context.Context, opName string, rule auth.Rule, p auth.Principal, t Target) (Decision, error) {
	if rule.TenantOwnRecords && t.OwnerID != nil && *t.OwnerID != p.UserID {
		return Decision{}, newError(KindNotAllowed, opName, "tenants may only act on records they created")
	}
	if !rule.TenantOwnBuilding {
		return Decision{BuildingID: t.BuildingID}, nil
	}

	tenant, err := g.dir.TenantByUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrTenantNotFound) {
			return Decision{}, newError(KindNotAllowed, opName, "caller is not a tenant of any building")
		}
		return Decision{}, fmt.Errorf("%s: %w", opName, err)
	}
	if t.BuildingID != 0 && t.BuildingID != tenant.BuildingID {
		return Decision{}, newError(KindNotAllowed, opName, "tenants may only act on their own building")
	}
	return Decision{BuildingID: tenant.BuildingID, Tenant: tenant}, nil
}

func isUser(id *int64, userID int64) bool {
	return id != nil && *id == userID
}
