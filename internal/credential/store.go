package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
	"github.com/nerrad567/intercom-access/internal/scope"
)

// Store persists credentials.
type Store struct {
	q database.Querier
}

// NewStore creates a Store over q.
func NewStore(q database.Querier) *Store {
	return &Store{q: q}
}

// WithTx returns a store bound to the given transaction.
func (s *Store) WithTx(tx database.Querier) *Store {
	return &Store{q: tx}
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// Master PINs.

const masterPinColumns = "id, intercom_id, pin_hash, is_active, created_by, updated_by, created_at, updated_at"

// FindActiveMasterPin returns the active master PIN of an intercom.
func (s *Store) FindActiveMasterPin(ctx context.Context, intercomID int64) (*MasterPin, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+masterPinColumns+` FROM master_pins
		 WHERE intercom_id = ? AND is_active = 1
		 ORDER BY id DESC LIMIT 1`, intercomID)
	return scanMasterPin(row)
}

// SaveMasterPin replaces the hash of the active master PIN, or creates one
// if the intercom has none. created reports which happened.
func (s *Store) SaveMasterPin(ctx context.Context, intercomID int64, pinHash string, actorID int64, now time.Time) (pin *MasterPin, created bool, err error) {
	ts := database.FormatTime(now)
	res, err := s.q.ExecContext(ctx,
		`UPDATE master_pins SET pin_hash = ?, updated_by = ?, updated_at = ?
		 WHERE intercom_id = ? AND is_active = 1`,
		pinHash, actorID, ts, intercomID)
	if err != nil {
		return nil, false, fmt.Errorf("updating master pin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO master_pins (intercom_id, pin_hash, is_active, created_by, updated_by, created_at, updated_at)
			 VALUES (?, ?, 1, ?, ?, ?, ?)`,
			intercomID, pinHash, actorID, actorID, ts, ts); err != nil {
			return nil, false, fmt.Errorf("creating master pin: %w", err)
		}
		created = true
	}

	pin, err = s.FindActiveMasterPin(ctx, intercomID)
	if err != nil {
		return nil, false, err
	}
	return pin, created, nil
}

func scanMasterPin(sc scanner) (*MasterPin, error) {
	var p MasterPin
	var isActive int
	var createdBy, updatedBy sql.NullInt64
	var createdAt, updatedAt string
	err := sc.Scan(&p.ID, &p.IntercomID, &p.PinHash, &isActive, &createdBy, &updatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMasterPinNotFound
		}
		return nil, fmt.Errorf("scanning master pin: %w", err)
	}
	p.IsActive = isActive != 0
	p.CreatedBy = int64Ptr(createdBy)
	p.UpdatedBy = int64Ptr(updatedBy)
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// User PINs.

const userPinColumns = "id, intercom_id, user_id, pin_hash, is_active, created_by, updated_by, created_at, updated_at"

// FindActiveUserPin returns a user's active PIN on an intercom.
func (s *Store) FindActiveUserPin(ctx context.Context, intercomID, userID int64) (*UserPin, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+userPinColumns+` FROM user_pins
		 WHERE intercom_id = ? AND user_id = ? AND is_active = 1
		 ORDER BY id DESC LIMIT 1`, intercomID, userID)
	return scanUserPin(row)
}

// FindActiveUserPins returns every active user PIN on an intercom, most
// recently changed first.
func (s *Store) FindActiveUserPins(ctx context.Context, intercomID int64) ([]UserPin, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+userPinColumns+` FROM user_pins
		 WHERE intercom_id = ? AND is_active = 1
		 ORDER BY updated_at DESC, id DESC`, intercomID)
	if err != nil {
		return nil, fmt.Errorf("listing user pins: %w", err)
	}
	defer rows.Close()

	var pins []UserPin
	for rows.Next() {
		p, err := scanUserPin(rows)
		if err != nil {
			return nil, err
		}
		pins = append(pins, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user pins: %w", err)
	}
	return pins, nil
}

// SaveUserPin replaces the hash of a user's active PIN, or creates one.
func (s *Store) SaveUserPin(ctx context.Context, intercomID, userID int64, pinHash string, actorID int64, now time.Time) (pin *UserPin, created bool, err error) {
	ts := database.FormatTime(now)
	res, err := s.q.ExecContext(ctx,
		`UPDATE user_pins SET pin_hash = ?, updated_by = ?, updated_at = ?
		 WHERE intercom_id = ? AND user_id = ? AND is_active = 1`,
		pinHash, actorID, ts, intercomID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("updating user pin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO user_pins (intercom_id, user_id, pin_hash, is_active, created_by, updated_by, created_at, updated_at)
			 VALUES (?, ?, ?, 1, ?, ?, ?, ?)`,
			intercomID, userID, pinHash, actorID, actorID, ts, ts); err != nil {
			return nil, false, fmt.Errorf("creating user pin: %w", err)
		}
		created = true
	}

	pin, err = s.FindActiveUserPin(ctx, intercomID, userID)
	if err != nil {
		return nil, false, err
	}
	return pin, created, nil
}

func scanUserPin(sc scanner) (*UserPin, error) {
	var p UserPin
	var isActive int
	var createdBy, updatedBy sql.NullInt64
	var createdAt, updatedAt string
	err := sc.Scan(&p.ID, &p.IntercomID, &p.UserID, &p.PinHash, &isActive, &createdBy, &updatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserPinNotFound
		}
		return nil, fmt.Errorf("scanning user pin: %w", err)
	}
	p.IsActive = isActive != 0
	p.CreatedBy = int64Ptr(createdBy)
	p.UpdatedBy = int64Ptr(updatedBy)
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Access codes.

const accessCodeColumns = `id, building_id, intercom_id, tenant_id, code_type, code_hash, code_plain,
	is_single_use, valid_from, expires_at, is_active, created_by, created_at, updated_by, updated_at, deleted_at`

// FindCandidateAccessCodes returns the codes that may grant access at an
// intercom at now: active, not deleted, inside their window, and bound to
// the intercom or to its whole building. Newest first.
func (s *Store) FindCandidateAccessCodes(ctx context.Context, intercomID, buildingID int64, now time.Time) ([]AccessCode, error) {
	ts := database.FormatTime(now)
	return s.queryAccessCodes(ctx, "SELECT "+accessCodeColumns+` FROM access_codes
		WHERE is_active = 1 AND deleted_at IS NULL
		  AND (valid_from IS NULL OR valid_from <= ?)
		  AND (expires_at IS NULL OR expires_at > ?)
		  AND (intercom_id = ? OR (intercom_id IS NULL AND building_id = ?))
		ORDER BY created_at DESC, id DESC`, ts, ts, intercomID, buildingID)
}

// CreateAccessCode inserts c and sets its ID.
func (s *Store) CreateAccessCode(ctx context.Context, c *AccessCode) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO access_codes (building_id, intercom_id, tenant_id, code_type, code_hash, code_plain,
			is_single_use, valid_from, expires_at, is_active, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.BuildingID, nullInt64(c.IntercomID), nullInt64(c.TenantID), string(c.CodeType), c.CodeHash,
		nullString(c.CodePlain), boolToInt(c.IsSingleUse), database.NullTime(c.ValidFrom),
		database.NullTime(c.ExpiresAt), boolToInt(c.IsActive), c.CreatedBy, database.FormatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating access code: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("creating access code: %w", err)
	}
	c.ID = id
	return nil
}

// GetAccessCode returns a code that has not been deleted.
func (s *Store) GetAccessCode(ctx context.Context, id int64) (*AccessCode, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+accessCodeColumns+" FROM access_codes WHERE id = ? AND deleted_at IS NULL", id)
	return scanAccessCode(row)
}

// UpdateAccessCode writes the mutable fields of c.
func (s *Store) UpdateAccessCode(ctx context.Context, c *AccessCode) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE access_codes SET intercom_id = ?, code_type = ?, code_hash = ?, code_plain = ?,
			is_single_use = ?, valid_from = ?, expires_at = ?, is_active = ?, updated_by = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		nullInt64(c.IntercomID), string(c.CodeType), c.CodeHash, nullString(c.CodePlain),
		boolToInt(c.IsSingleUse), database.NullTime(c.ValidFrom), database.NullTime(c.ExpiresAt),
		boolToInt(c.IsActive), nullInt64(c.UpdatedBy), database.NullTime(c.UpdatedAt), c.ID)
	if err != nil {
		return fmt.Errorf("updating access code: %w", err)
	}
	return requireOne(res, ErrAccessCodeNotFound)
}

// Deactivate marks a code inactive. Deactivating an inactive code succeeds.
func (s *Store) Deactivate(ctx context.Context, id, actorID int64, now time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE access_codes SET is_active = 0, updated_by = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		actorID, database.FormatTime(now), id)
	if err != nil {
		return fmt.Errorf("deactivating access code: %w", err)
	}
	return requireOne(res, ErrAccessCodeNotFound)
}

// SoftDelete deactivates a code and hides it from reads. The row stays so
// ledger entries keep a valid reference.
func (s *Store) SoftDelete(ctx context.Context, id, actorID int64, now time.Time) error {
	ts := database.FormatTime(now)
	res, err := s.q.ExecContext(ctx,
		`UPDATE access_codes SET is_active = 0, updated_by = ?, updated_at = ?, deleted_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		actorID, ts, ts, id)
	if err != nil {
		return fmt.Errorf("deleting access code: %w", err)
	}
	return requireOne(res, ErrAccessCodeNotFound)
}

// ConsumeSingleUse flips an active code to inactive. It reports true for
// exactly one caller per code; every concurrent or later caller gets false.
func (s *Store) ConsumeSingleUse(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE access_codes SET is_active = 0, updated_at = ?
		 WHERE id = ? AND is_active = 1 AND deleted_at IS NULL`,
		database.FormatTime(now), id)
	if err != nil {
		return false, fmt.Errorf("consuming access code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consuming access code: %w", err)
	}
	return n == 1, nil
}

// ListFilter narrows ListAccessCodes.
type ListFilter struct {
	BuildingID *int64
	IntercomID *int64
	ActiveOnly bool

	// Visibility restricts results by creator.
	Visibility scope.Visibility

	Limit  int
	Offset int
}

// ListResult is a page of access codes plus the total match count.
type ListResult struct {
	Codes []AccessCode `json:"codes"`
	Total int          `json:"total"`
}

// ListAccessCodes returns visible, non-deleted codes newest first.
func (s *Store) ListAccessCodes(ctx context.Context, f ListFilter) (*ListResult, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any

	if f.BuildingID != nil {
		where = append(where, "building_id = ?")
		args = append(args, *f.BuildingID)
	}
	if f.IntercomID != nil {
		where = append(where, "intercom_id = ?")
		args = append(args, *f.IntercomID)
	}
	if f.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	visSQL, visArgs := f.Visibility.SQL("created_by")
	where = append(where, visSQL)
	args = append(args, visArgs...)

	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM access_codes"+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting access codes: %w", err)
	}

	query := "SELECT " + accessCodeColumns + " FROM access_codes" + clause +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	codes, err := s.queryAccessCodes(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, err
	}
	if codes == nil {
		codes = []AccessCode{}
	}
	return &ListResult{Codes: codes, Total: total}, nil
}

func (s *Store) queryAccessCodes(ctx context.Context, query string, args ...any) ([]AccessCode, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access codes: %w", err)
	}
	defer rows.Close()

	var codes []AccessCode
	for rows.Next() {
		c, err := scanAccessCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access codes: %w", err)
	}
	return codes, nil
}

func scanAccessCode(sc scanner) (*AccessCode, error) {
	var c AccessCode
	var intercomID, tenantID, updatedBy sql.NullInt64
	var codeType, createdAt string
	var codePlain, validFrom, expiresAt, updatedAt, deletedAt sql.NullString
	var singleUse, isActive int

	err := sc.Scan(&c.ID, &c.BuildingID, &intercomID, &tenantID, &codeType, &c.CodeHash, &codePlain,
		&singleUse, &validFrom, &expiresAt, &isActive, &c.CreatedBy, &createdAt, &updatedBy, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccessCodeNotFound
		}
		return nil, fmt.Errorf("scanning access code: %w", err)
	}

	c.IntercomID = int64Ptr(intercomID)
	c.TenantID = int64Ptr(tenantID)
	c.UpdatedBy = int64Ptr(updatedBy)
	c.CodeType = CodeType(codeType)
	if codePlain.Valid {
		plain := codePlain.String
		c.CodePlain = &plain
	}
	c.IsSingleUse = singleUse != 0
	c.IsActive = isActive != 0

	if c.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{{&c.ValidFrom, validFrom}, {&c.ExpiresAt, expiresAt}, {&c.UpdatedAt, updatedAt}, {&c.DeletedAt, deletedAt}} {
		if *f.dst, err = database.ParseNullTime(f.src); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// Helper functions.

func requireOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
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

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
