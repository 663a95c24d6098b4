package scope

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/intercom-access/internal/directory"
)

// Directory is the subset of the directory repository the resolver reads.
type Directory interface {
	User(ctx context.Context, id int64) (*directory.User, error)
	CreatorChain(ctx context.Context, userID int64) ([]directory.User, error)
	CreatedBy(ctx context.Context, creatorID int64) ([]int64, error)
}

// Resolver computes per-user visibility.
type Resolver struct {
	dir Directory
}

// NewResolver creates a Resolver reading from dir.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// DataAccessMode returns the user's access mode.
func (r *Resolver) DataAccessMode(ctx context.Context, userID int64) (Mode, error) {
	u, err := r.dir.User(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("reading data access mode: %w", err)
	}
	return ParseMode(u.DataAccessControl), nil
}

// Resolve returns the visibility for userID. An unknown user sees nothing.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (Visibility, error) {
	u, err := r.dir.User(ctx, userID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return Restricted(ModeOwn, userID, nil), nil
		}
		return Visibility{}, fmt.Errorf("resolving visibility: %w", err)
	}

	switch mode := ParseMode(u.DataAccessControl); mode {
	case ModeOwn:
		return Restricted(mode, userID, []int64{userID}), nil
	case ModePM:
		members, err := r.Ecosystem(ctx, userID)
		if err != nil {
			return Visibility{}, err
		}
		return Restricted(mode, userID, members), nil
	default:
		v := Unrestricted()
		v.UserID = userID
		return v, nil
	}
}

// PropertyManagerOf walks the creator chain from userID and returns the
// first Property Manager on it, which is userID itself when the user is one.
func (r *Resolver) PropertyManagerOf(ctx context.Context, userID int64) (int64, bool, error) {
	chain, err := r.dir.CreatorChain(ctx, userID)
	if err != nil {
		return 0, false, fmt.Errorf("resolving property manager: %w", err)
	}
	for i := range chain {
		if chain[i].IsPropertyManager() {
			return chain[i].ID, true, nil
		}
	}
	return 0, false, nil
}

// Ecosystem returns the owner ids visible to userID under PM mode:
// the Property Manager and the users they created directly. Without a
// Property Manager the ecosystem is the user alone; an unknown user has an
// empty ecosystem.
func (r *Resolver) Ecosystem(ctx context.Context, userID int64) ([]int64, error) {
	chain, err := r.dir.CreatorChain(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving ecosystem: %w", err)
	}
	if len(chain) == 0 {
		return []int64{}, nil
	}

	var pm int64
	for i := range chain {
		if chain[i].IsPropertyManager() {
			pm = chain[i].ID
			break
		}
	}
	if pm == 0 {
		return []int64{userID}, nil
	}

	provisioned, err := r.dir.CreatedBy(ctx, pm)
	if err != nil {
		return nil, fmt.Errorf("resolving ecosystem: %w", err)
	}
	return append([]int64{pm}, provisioned...), nil
}

// CanAccess reports whether userID may see e.
func (r *Resolver) CanAccess(ctx context.Context, userID int64, e Owned) (bool, error) {
	v, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return v.Allows(e.OwnerID()), nil
}
