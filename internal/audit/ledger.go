package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/intercom-access/internal/credential"
	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
)

// Actions recorded in the ledger.
const (
	ActionVerify               = "verify"
	ActionMasterPinSet         = "master_pin.set"
	ActionUserPinSet           = "user_pin.set"
	ActionUserPinReset         = "user_pin.reset"
	ActionAccessCodeCreate     = "access_code.create"
	ActionAccessCodeUpdate     = "access_code.update"
	ActionAccessCodeDeactivate = "access_code.deactivate"
	ActionAccessCodeDelete     = "access_code.delete"
)

// Default page limits.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Entry is one immutable ledger row.
type Entry struct {
	ID              int64           `json:"id"`
	Action          string          `json:"action"`
	IntercomID      *int64          `json:"intercomId,omitempty"`
	BuildingID      *int64          `json:"buildingId,omitempty"`
	UserID          *int64          `json:"userId,omitempty"`
	CredentialType  credential.Type `json:"credentialType"`
	CredentialRefID *int64          `json:"credentialRefId,omitempty"`
	IsSuccess       bool            `json:"isSuccess"`
	Reason          string          `json:"reason,omitempty"`
	OccurredAt      time.Time       `json:"occurredAt"`
	IPAddress       string          `json:"ipAddress,omitempty"`
	DeviceInfo      string          `json:"deviceInfo,omitempty"`
}

// Filter controls which entries Query returns. Nil fields do not filter.
type Filter struct {
	BuildingID     *int64
	IntercomID     *int64
	CodeID         *int64
	UserID         *int64
	From           *time.Time
	To             *time.Time
	Success        *bool
	CredentialType *credential.Type
	Action         string

	// Scope restrictions applied on top of the caller's filters.
	// BuildingIDs nil means any building; empty means none.
	BuildingIDs []int64
	// OwnerUserID restricts to entries attributed to one user: rows
	// carrying their id plus uses of access codes they created.
	OwnerUserID *int64

	Page     int // 1-based
	PageSize int
}

// ListResult is one page of entries plus the total match count.
type ListResult struct {
	Entries  []Entry `json:"entries"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
}

// Ledger reads and appends ledger entries.
type Ledger struct {
	q               database.Querier
	defaultPageSize int
	maxPageSize     int
}

// NewLedger creates a Ledger. Non-positive page limits use the defaults.
func NewLedger(q database.Querier, defaultPageSize, maxPageSize int) *Ledger {
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if maxPageSize < defaultPageSize {
		maxPageSize = max(MaxPageSize, defaultPageSize)
	}
	return &Ledger{q: q, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize}
}

// WithTx returns a ledger bound to the given transaction.
func (l *Ledger) WithTx(tx database.Querier) *Ledger {
	return &Ledger{q: tx, defaultPageSize: l.defaultPageSize, maxPageSize: l.maxPageSize}
}

// Append records e and sets its ID. OccurredAt defaults to now.
func (l *Ledger) Append(ctx context.Context, e *Entry) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	if e.CredentialType == "" {
		e.CredentialType = credential.TypeNone
	}

	res, err := l.q.ExecContext(ctx,
		`INSERT INTO access_logs (action, intercom_id, building_id, user_id, credential_type,
			credential_ref_id, is_success, reason, occurred_at, ip_address, device_info)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Action, nullInt64(e.IntercomID), nullInt64(e.BuildingID), nullInt64(e.UserID),
		string(e.CredentialType), nullInt64(e.CredentialRefID), boolToInt(e.IsSuccess),
		e.Reason, database.FormatTime(e.OccurredAt), e.IPAddress, e.DeviceInfo)
	if err != nil {
		return fmt.Errorf("appending access log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("appending access log: %w", err)
	}
	e.ID = id
	return nil
}

// Query returns matching entries newest first. Ties on OccurredAt are
// broken by id so pages are stable.
func (l *Ledger) Query(ctx context.Context, f Filter) (*ListResult, error) {
	page, pageSize := l.clamp(f.Page, f.PageSize)

	conditions, args := f.conditions()
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := l.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM access_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting access logs: %w", err)
	}

	rows, err := l.q.QueryContext(ctx,
		`SELECT id, action, intercom_id, building_id, user_id, credential_type, credential_ref_id,
			is_success, reason, occurred_at, ip_address, device_info
		 FROM access_logs`+where+` ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("querying access logs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access logs: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Page: page, PageSize: pageSize}, nil
}

func (l *Ledger) clamp(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = l.defaultPageSize
	}
	if pageSize > l.maxPageSize {
		pageSize = l.maxPageSize
	}
	return page, pageSize
}

// conditions builds the parameterised WHERE clauses for f.
func (f *Filter) conditions() ([]string, []any) { //nolint:gocyclo // one branch per optional filter
	var conds []string
	var args []any
	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}

	if f.BuildingID != nil {
		add("building_id = ?", *f.BuildingID)
	}
	if f.IntercomID != nil {
		add("intercom_id = ?", *f.IntercomID)
	}
	if f.CodeID != nil {
		add("credential_type = ? AND credential_ref_id = ?", string(credential.TypeAccessCode), *f.CodeID)
	}
	if f.UserID != nil {
		add("user_id = ?", *f.UserID)
	}
	if f.From != nil {
		add("occurred_at >= ?", database.FormatTime(*f.From))
	}
	if f.To != nil {
		add("occurred_at <= ?", database.FormatTime(*f.To))
	}
	if f.Success != nil {
		add("is_success = ?", boolToInt(*f.Success))
	}
	if f.CredentialType != nil {
		add("credential_type = ?", string(*f.CredentialType))
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.BuildingIDs != nil {
		if len(f.BuildingIDs) == 0 {
			add("1 = 0")
		} else {
			vals := make([]any, len(f.BuildingIDs))
			for i, id := range f.BuildingIDs {
				vals[i] = id
			}
			add("building_id IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")+")", vals...)
		}
	}
	if f.OwnerUserID != nil {
		add(`(user_id = ? OR (credential_type = ? AND credential_ref_id IN
			(SELECT id FROM access_codes WHERE created_by = ?)))`,
			*f.OwnerUserID, string(credential.TypeAccessCode), *f.OwnerUserID)
	}
	return conds, args
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var intercomID, buildingID, userID, refID sql.NullInt64
	var credType, occurredAt string
	var success int

	if err := s.Scan(&e.ID, &e.Action, &intercomID, &buildingID, &userID, &credType, &refID,
		&success, &e.Reason, &occurredAt, &e.IPAddress, &e.DeviceInfo); err != nil {
		return nil, fmt.Errorf("scanning access log: %w", err)
	}

	e.IntercomID = int64Ptr(intercomID)
	e.BuildingID = int64Ptr(buildingID)
	e.UserID = int64Ptr(userID)
	e.CredentialRefID = int64Ptr(refID)
	e.CredentialType = credential.Type(credType)
	e.IsSuccess = success != 0

	t, err := database.ParseTime(occurredAt)
	if err != nil {
		return nil, err
	}
	e.OccurredAt = t
	return &e, nil
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
