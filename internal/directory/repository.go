package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
)

// Repository reads directory records.
type Repository struct {
	q database.Querier
}

// NewRepository creates a directory repository over q.
func NewRepository(q database.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx database.Querier) *Repository {
	return &Repository{q: tx}
}

const userColumns = `u.id, u.username, u.display_name, u.user_type_id, u.created_by,
	COALESCE(t.code, ''), COALESCE(t.data_access_control, '')`

// Intercom returns the intercom with the given id.
func (r *Repository) Intercom(ctx context.Context, id int64) (*Intercom, error) {
	var ic Intercom
	err := r.q.QueryRowContext(ctx,
		"SELECT id, building_id, name FROM intercoms WHERE id = ?", id,
	).Scan(&ic.ID, &ic.BuildingID, &ic.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntercomNotFound
		}
		return nil, fmt.Errorf("getting intercom: %w", err)
	}
	return &ic, nil
}

// Building returns the building with the given id.
func (r *Repository) Building(ctx context.Context, id int64) (*Building, error) {
	var b Building
	var customerID, createdBy sql.NullInt64
	err := r.q.QueryRowContext(ctx,
		"SELECT id, name, customer_id, created_by FROM buildings WHERE id = ?", id,
	).Scan(&b.ID, &b.Name, &customerID, &createdBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBuildingNotFound
		}
		return nil, fmt.Errorf("getting building: %w", err)
	}
	b.CustomerID = int64Ptr(customerID)
	b.CreatedBy = int64Ptr(createdBy)
	return &b, nil
}

// User returns the user with the given id, joined with its user type.
func (r *Repository) User(ctx context.Context, id int64) (*User, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+userColumns+` FROM users u
		 LEFT JOIN user_types t ON t.id = u.user_type_id
		 WHERE u.id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// CreatorChain returns the user followed by its creator, that creator's
// creator and so on, in one recursive query. The walk stops at a root,
// at a repeated id, or after maxCreatorDepth links. An unknown user yields
// an empty chain.
func (r *Repository) CreatorChain(ctx context.Context, userID int64) ([]User, error) {
	rows, err := r.q.QueryContext(ctx, `
		WITH RECURSIVE chain(id, created_by, depth, seen) AS (
			SELECT id, created_by, 0, ',' || id || ','
			FROM users WHERE id = ?
			UNION ALL
			SELECT u.id, u.created_by, c.depth + 1, c.seen || u.id || ','
			FROM users u
			JOIN chain c ON u.id = c.created_by
			WHERE c.depth < ? AND instr(c.seen, ',' || u.id || ',') = 0
		)
		SELECT `+userColumns+`
		FROM chain c
		JOIN users u ON u.id = c.id
		LEFT JOIN user_types t ON t.id = u.user_type_id
		ORDER BY c.depth`, userID, maxCreatorDepth)
	if err != nil {
		return nil, fmt.Errorf("walking creator chain: %w", err)
	}
	defer rows.Close()

	var chain []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating creator chain: %w", err)
	}
	return chain, nil
}

// CreatedBy returns the ids of users directly provisioned by creatorID.
func (r *Repository) CreatedBy(ctx context.Context, creatorID int64) ([]int64, error) {
	return r.ids(ctx, "listing provisioned users",
		"SELECT id FROM users WHERE created_by = ? ORDER BY id", creatorID)
}

// Tenant returns a tenant record by id.
func (r *Repository) Tenant(ctx context.Context, id int64) (*Tenant, error) {
	return r.tenant(ctx, "SELECT id, user_id, building_id, unit FROM tenants WHERE id = ?", id)
}

// TenantByUser returns the tenant record of a tenant user.
func (r *Repository) TenantByUser(ctx context.Context, userID int64) (*Tenant, error) {
	return r.tenant(ctx, "SELECT id, user_id, building_id, unit FROM tenants WHERE user_id = ?", userID)
}

func (r *Repository) tenant(ctx context.Context, query string, arg int64) (*Tenant, error) {
	var t Tenant
	err := r.q.QueryRowContext(ctx, query, arg).Scan(&t.ID, &t.UserID, &t.BuildingID, &t.Unit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	return &t, nil
}

// HasBuildingPermission reports whether userID holds an explicit grant on buildingID.
func (r *Repository) HasBuildingPermission(ctx context.Context, userID, buildingID int64) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM building_permissions WHERE user_id = ? AND building_id = ?",
		userID, buildingID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking building permission: %w", err)
	}
	return n > 0, nil
}

// AccessibleBuildingIDs returns the buildings userID may manage: explicit
// grants plus buildings they own as customer or created.
func (r *Repository) AccessibleBuildingIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.ids(ctx, "listing accessible buildings", `
		SELECT building_id FROM building_permissions WHERE user_id = ?
		UNION
		SELECT id FROM buildings WHERE customer_id = ? OR created_by = ?
		ORDER BY 1`, userID, userID, userID)
}

func (r *Repository) ids(ctx context.Context, op, query string, args ...any) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanUser returns sql.ErrNoRows unwrapped so callers can map it.
func scanUser(s scanner) (*User, error) {
	var u User
	var userTypeID, createdBy sql.NullInt64
	err := s.Scan(&u.ID, &u.Username, &u.DisplayName, &userTypeID, &createdBy,
		&u.UserTypeCode, &u.DataAccessControl)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.UserTypeID = int64Ptr(userTypeID)
	u.CreatedBy = int64Ptr(createdBy)
	return &u, nil
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
