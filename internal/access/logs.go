package access

import (
	"context"
	"fmt"

	"github.com/nerrad567/intercom-access/internal/audit"
	"github.com/nerrad567/intercom-access/internal/auth"
)

// QueryLogs returns ledger entries the caller may see. Super Admin sees
// everything, a tenant sees entries attributed to them, and every other
// role sees entries of the buildings they can access.
func (s *Service) QueryLogs(ctx context.Context, p auth.Principal, f audit.Filter) (*audit.ListResult, error) {
	const op = "query access logs"

	if _, err := s.guard.Check(ctx, auth.OpQueryLogs, p, Target{}); err != nil {
		return nil, err
	}

	f.BuildingIDs = nil
	f.OwnerUserID = nil
	switch {
	case p.IsSuperAdmin():
	case p.IsTenant():
		f.OwnerUserID = ptr(p.UserID)
	default:
		ids, err := s.dir.AccessibleBuildingIDs(ctx, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ids == nil {
			ids = []int64{}
		}
		f.BuildingIDs = ids
	}

	res, err := s.ledger.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// IntercomLogs returns the ledger of one intercom. Super Admin only.
func (s *Service) IntercomLogs(ctx context.Context, p auth.Principal, intercomID int64, f audit.Filter) (*audit.ListResult, error) {
	const op = "view intercom logs"

	if _, err := s.guard.Check(ctx, auth.OpViewIntercomLogs, p, Target{}); err != nil {
		return nil, err
	}
	if _, err := s.intercom(ctx, op, intercomID); err != nil {
		return nil, err
	}

	f.IntercomID = ptr(intercomID)
	f.BuildingIDs = nil
	f.OwnerUserID = nil
	res, err := s.ledger.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}
