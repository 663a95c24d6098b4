package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/intercom-access/internal/audit"
	"github.com/nerrad567/intercom-access/internal/auth"
	"github.com/nerrad567/intercom-access/internal/credential"
	"github.com/nerrad567/intercom-access/internal/directory"
	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
	"github.com/nerrad567/intercom-access/internal/scope"
)

// maxQRCodeLength is bcrypt's input limit in bytes.
const maxQRCodeLength = 72

// CreateCodeInput describes a new access code.
type CreateCodeInput struct {
	// BuildingID may be zero for tenants, who always get their own building.
	BuildingID int64

	// IntercomID binds the code to one intercom of the building. Nil means
	// any intercom of the building.
	IntercomID *int64
	TenantID   *int64

	// Code is the secret. Empty asks the server to generate one.
	Code     string
	CodeType string

	IsSingleUse bool
	ValidFrom   *time.Time
	ExpiresAt   *time.Time
}

// UpdateCodeInput replaces the mutable fields of an access code.
type UpdateCodeInput struct {
	IntercomID *int64

	// Code replaces the secret when not empty.
	Code string
	// CodeType keeps the current type when empty.
	CodeType string

	IsSingleUse bool
	ValidFrom   *time.Time
	ExpiresAt   *time.Time
}

// CodeQuery narrows ListAccessCodes.
type CodeQuery struct {
	BuildingID *int64
	IntercomID *int64
	ActiveOnly bool
	Page       int
	PageSize   int
}

// CodePage is one page of visible access codes.
type CodePage struct {
	Codes    []credential.AccessCode `json:"codes"`
	Total    int                     `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"pageSize"`
}

// CreateAccessCode creates an access code. The returned code carries its
// plaintext even when plaintext retention is disabled; that response is
// then the only place it is ever shown.
func (s *Service) CreateAccessCode(ctx context.Context, p auth.Principal, in CreateCodeInput) (*credential.AccessCode, error) {
	const op = "create access code"

	entry := s.mutationEntry(audit.ActionAccessCodeCreate, p, nil, credential.TypeAccessCode)
	if in.BuildingID != 0 {
		entry.BuildingID = ptr(in.BuildingID)
	}

	dec, err := s.guard.Check(ctx, auth.OpCreateAccessCode, p, Target{BuildingID: in.BuildingID})
	if err != nil {
		s.recordDenial(ctx, entry, err)
		return nil, err
	}
	entry.BuildingID = ptr(dec.BuildingID)

	codeType, err := credential.ParseCodeType(in.CodeType)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	if err := s.checkIntercom(ctx, op, in.IntercomID, dec.BuildingID); err != nil {
		return nil, err
	}
	entry.IntercomID = in.IntercomID

	tenantID, err := s.codeTenant(ctx, op, dec, in.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := credential.ValidateWindow(in.ValidFrom, in.ExpiresAt, now); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}

	plain := in.Code
	if plain == "" {
		if plain, err = s.generateCode(codeType); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := s.validateCode(op, codeType, plain); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := &credential.AccessCode{
		BuildingID:  dec.BuildingID,
		IntercomID:  in.IntercomID,
		TenantID:    tenantID,
		CodeType:    codeType,
		CodeHash:    hash,
		IsSingleUse: in.IsSingleUse,
		ValidFrom:   utcPtr(in.ValidFrom),
		ExpiresAt:   utcPtr(in.ExpiresAt),
		IsActive:    true,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
	}
	if s.cfg.RetainPlainCodes {
		c.CodePlain = &plain
	}

	err = s.db.WithTx(ctx, func(q database.Querier) error {
		if err := s.store.WithTx(q).CreateAccessCode(ctx, c); err != nil {
			return err
		}
		entry.IsSuccess = true
		entry.CredentialRefID = ptr(c.ID)
		entry.OccurredAt = now
		return s.ledger.WithTx(q).Append(ctx, &entry)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.CodePlain = &plain
	s.logger.Info("access code created",
		"code_id", c.ID,
		"building_id", c.BuildingID,
		"single_use", c.IsSingleUse,
		"actor_id", p.UserID,
	)
	return c, nil
}

// GetAccessCode returns a code the caller can see. Codes outside the
// caller's visibility are reported as not found.
func (s *Service) GetAccessCode(ctx context.Context, p auth.Principal, id int64) (*credential.AccessCode, error) {
	const op = "get access code"

	if _, err := s.guard.Check(ctx, auth.OpViewAccessCodes, p, Target{}); err != nil {
		return nil, err
	}
	c, err := s.loadCode(ctx, op, id)
	if err != nil {
		return nil, err
	}
	vis, err := s.visibility(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !vis.Allows(c.OwnerID()) {
		return nil, notFound(op, credential.ErrAccessCodeNotFound)
	}
	return c, nil
}

// ListAccessCodes returns the codes visible to the caller, newest first.
func (s *Service) ListAccessCodes(ctx context.Context, p auth.Principal, q CodeQuery) (*CodePage, error) {
	const op = "list access codes"

	if _, err := s.guard.Check(ctx, auth.OpViewAccessCodes, p, Target{}); err != nil {
		return nil, err
	}
	vis, err := s.visibility(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	page, pageSize := s.pageBounds(q.Page, q.PageSize)
	res, err := s.store.ListAccessCodes(ctx, credential.ListFilter{
		BuildingID: q.BuildingID,
		IntercomID: q.IntercomID,
		ActiveOnly: q.ActiveOnly,
		Visibility: vis,
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &CodePage{Codes: res.Codes, Total: res.Total, Page: page, PageSize: pageSize}, nil
}

// UpdateAccessCode replaces the window, single-use flag, intercom binding
// and optionally the secret of a code.
func (s *Service) UpdateAccessCode(ctx context.Context, p auth.Principal, id int64, in UpdateCodeInput) (*credential.AccessCode, error) {
	const op = "update access code"

	c, entry, err := s.authorizeManage(ctx, op, audit.ActionAccessCodeUpdate, p, id)
	if err != nil {
		return nil, err
	}

	if in.CodeType != "" {
		ct, err := credential.ParseCodeType(in.CodeType)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Op: op, Err: err}
		}
		c.CodeType = ct
	}
	if err := s.checkIntercom(ctx, op, in.IntercomID, c.BuildingID); err != nil {
		return nil, err
	}

	now := s.now()
	if err := credential.ValidateWindow(in.ValidFrom, in.ExpiresAt, now); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}

	var plain *string
	if in.Code != "" {
		if err := s.validateCode(op, c.CodeType, in.Code); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(in.Code)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.CodeHash = hash
		plain = ptr(in.Code)
		c.CodePlain = nil
		if s.cfg.RetainPlainCodes {
			c.CodePlain = plain
		}
	}

	c.IntercomID = in.IntercomID
	c.IsSingleUse = in.IsSingleUse
	c.ValidFrom = utcPtr(in.ValidFrom)
	c.ExpiresAt = utcPtr(in.ExpiresAt)
	c.UpdatedBy = ptr(p.UserID)
	c.UpdatedAt = ptr(now)
	entry.IntercomID = c.IntercomID

	err = s.db.WithTx(ctx, func(q database.Querier) error {
		if err := s.store.WithTx(q).UpdateAccessCode(ctx, c); err != nil {
			return err
		}
		entry.IsSuccess = true
		entry.OccurredAt = now
		return s.ledger.WithTx(q).Append(ctx, &entry)
	})
	if err != nil {
		if errors.Is(err, credential.ErrAccessCodeNotFound) {
			return nil, notFound(op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if plain != nil {
		c.CodePlain = plain
	}
	s.logger.Info("access code updated", "code_id", c.ID, "actor_id", p.UserID)
	return c, nil
}

// DeactivateAccessCode stops a code from granting access. The code stays
// visible.
func (s *Service) DeactivateAccessCode(ctx context.Context, p auth.Principal, id int64) (*credential.AccessCode, error) {
	const op = "deactivate access code"

	c, entry, err := s.authorizeManage(ctx, op, audit.ActionAccessCodeDeactivate, p, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	err = s.db.WithTx(ctx, func(q database.Querier) error {
		if err := s.store.WithTx(q).Deactivate(ctx, c.ID, p.UserID, now); err != nil {
			return err
		}
		entry.IsSuccess = true
		entry.OccurredAt = now
		return s.ledger.WithTx(q).Append(ctx, &entry)
	})
	if err != nil {
		if errors.Is(err, credential.ErrAccessCodeNotFound) {
			return nil, notFound(op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.IsActive = false
	c.UpdatedBy = ptr(p.UserID)
	c.UpdatedAt = ptr(now)
	s.logger.Info("access code deactivated", "code_id", c.ID, "actor_id", p.UserID)
	return c, nil
}

// DeleteAccessCode soft-deletes a code. Ledger entries keep referring to it.
func (s *Service) DeleteAccessCode(ctx context.Context, p auth.Principal, id int64) error {
	const op = "delete access code"

	c, entry, err := s.authorizeManage(ctx, op, audit.ActionAccessCodeDelete, p, id)
	if err != nil {
		return err
	}
	now := s.now()
	err = s.db.WithTx(ctx, func(q database.Querier) error {
		if err := s.store.WithTx(q).SoftDelete(ctx, c.ID, p.UserID, now); err != nil {
			return err
		}
		entry.IsSuccess = true
		entry.OccurredAt = now
		return s.ledger.WithTx(q).Append(ctx, &entry)
	})
	if err != nil {
		if errors.Is(err, credential.ErrAccessCodeNotFound) {
			return notFound(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("access code deleted", "code_id", c.ID, "actor_id", p.UserID)
	return nil
}

// authorizeManage loads code id and checks the caller may change it.
func (s *Service) authorizeManage(ctx context.Context, op, action string, p auth.Principal, id int64) (*credential.AccessCode, audit.Entry, error) {
	c, err := s.loadCode(ctx, op, id)
	if err != nil {
		return nil, audit.Entry{}, err
	}

	entry := s.mutationEntry(action, p, nil, credential.TypeAccessCode)
	entry.BuildingID = ptr(c.BuildingID)
	entry.IntercomID = c.IntercomID
	entry.CredentialRefID = ptr(c.ID)

	_, err = s.guard.Check(ctx, auth.OpManageAccessCode, p, Target{
		BuildingID: c.BuildingID,
		OwnerID:    ptr(c.CreatedBy),
	})
	if err != nil {
		s.recordDenial(ctx, entry, err)
		return nil, audit.Entry{}, err
	}
	return c, entry, nil
}

func (s *Service) loadCode(ctx context.Context, op string, id int64) (*credential.AccessCode, error) {
	c, err := s.store.GetAccessCode(ctx, id)
	if err != nil {
		if errors.Is(err, credential.ErrAccessCodeNotFound) {
			return nil, notFound(op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// checkIntercom verifies an optional intercom binding belongs to buildingID.
func (s *Service) checkIntercom(ctx context.Context, op string, intercomID *int64, buildingID int64) error {
	if intercomID == nil {
		return nil
	}
	ic, err := s.intercom(ctx, op, *intercomID)
	if err != nil {
		return err
	}
	if ic.BuildingID != buildingID {
		return newError(KindValidation, op, "intercom does not belong to the building")
	}
	return nil
}

// codeTenant resolves the tenant a new code is scoped to. Tenants always
// scope codes to themselves.
func (s *Service) codeTenant(ctx context.Context, op string, dec Decision, requested *int64) (*int64, error) {
	if dec.Tenant != nil {
		return ptr(dec.Tenant.ID), nil
	}
	if requested == nil {
		return nil, nil
	}
	t, err := s.dir.Tenant(ctx, *requested)
	if err != nil {
		if errors.Is(err, directory.ErrTenantNotFound) {
			return nil, notFound(op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t.BuildingID != dec.BuildingID {
		return nil, newError(KindValidation, op, "tenant does not live in the building")
	}
	return ptr(t.ID), nil
}

func (s *Service) generateCode(ct credential.CodeType) (string, error) {
	if ct == credential.CodeTypeQR {
		return uuid.NewString(), nil
	}
	return credential.GenerateNumericCode(s.cfg.GeneratedCodeLength)
}

func (s *Service) validateCode(op string, ct credential.CodeType, code string) error {
	if ct == credential.CodeTypeQR {
		if len(code) > maxQRCodeLength {
			return newError(KindValidation, op, fmt.Sprintf("code must be at most %d bytes", maxQRCodeLength))
		}
		return s.validateSecret(op, "code", code, maxQRCodeLength)
	}
	return s.validateSecret(op, "code", code, s.cfg.PinMaxLength)
}

// visibility is the creator filter for the caller's reads of owned records.
func (s *Service) visibility(ctx context.Context, p auth.Principal) (scope.Visibility, error) {
	switch {
	case p.IsSuperAdmin():
		return scope.Unrestricted(), nil
	case p.IsTenant():
		return scope.Restricted(scope.ModeOwn, p.UserID, []int64{p.UserID}), nil
	default:
		return s.scope.Resolve(ctx, p.UserID)
	}
}

func (s *Service) pageBounds(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize <= 0 {
		pageSize = audit.DefaultPageSize
	}
	maxSize := s.cfg.MaxPageSize
	if maxSize <= 0 {
		maxSize = audit.MaxPageSize
	}
	return page, min(pageSize, maxSize)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
