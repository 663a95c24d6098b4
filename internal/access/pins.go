package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/intercom-access/internal/audit"
	"github.com/nerrad567/intercom-access/internal/auth"
	"github.com/nerrad567/intercom-access/internal/credential"
	"github.com/nerrad567/intercom-access/internal/directory"
	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
)

// PinResult reports a stored PIN. It never carries the PIN or its hash.
type PinResult struct {
	ID         int64     `json:"id"`
	IntercomID int64     `json:"intercomId"`
	UserID     *int64    `json:"userId,omitempty"`
	Created    bool      `json:"created"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SetUserPinInput is an administrative user PIN reset.
type SetUserPinInput struct {
	UserID    int64
	Pin       string
	MasterPin string
}

// ChangePinInput is a self-service PIN change. OldPin is required once the
// caller has an active PIN on the intercom.
type ChangePinInput struct {
	NewPin string
	OldPin string
}

// SetMasterPin creates or rotates the master PIN of an intercom.
func (s *Service) SetMasterPin(ctx context.Context, p auth.Principal, intercomID int64, pin string) (*PinResult, error) {
	const op = "set master pin"

	ic, err := s.intercom(ctx, op, intercomID)
	if err != nil {
		return nil, err
	}
	entry := s.mutationEntry(audit.ActionMasterPinSet, p, ic, credential.TypeMaster)

	if _, err := s.guard.Check(ctx, auth.OpSetMasterPin, p, Target{BuildingID: ic.BuildingID}); err != nil {
		s.recordDenial(ctx, entry, err)
		return nil, err
	}
	if err := s.validateSecret(op, "pin", pin, s.cfg.PinMaxLength); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(pin)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	var res PinResult
	err = s.db.WithTx(ctx, func(q database.Querier) error {
		mp, created, err := s.store.WithTx(q).SaveMasterPin(ctx, ic.ID, hash, p.UserID, now)
		if err != nil {
			return err
		}
		entry.IsSuccess = true
		entry.CredentialRefID = &mp.ID
		entry.OccurredAt = now
		if err := s.ledger.WithTx(q).Append(ctx, &entry); err != nil {
			return err
		}
		res = PinResult{ID: mp.ID, IntercomID: ic.ID, Created: created, UpdatedAt: mp.UpdatedAt}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("master pin set", "intercom_id", ic.ID, "actor_id", p.UserID, "created", res.Created)
	return &res, nil
}

// SetUserPin sets the PIN of in.UserID on an intercom. Callers may always
// set their own PIN; no old PIN is asked for. Setting anyone else's
// requires Super Admin and the intercom's current master PIN.
func (s *Service) SetUserPin(ctx context.Context, p auth.Principal, intercomID int64, in SetUserPinInput) (*PinResult, error) {
	const op = "reset user pin"

	if p.UserID != 0 && in.UserID == p.UserID {
		return s.setOwnPin(ctx, "reset own pin", p, intercomID, in.Pin, nil)
	}

	ic, err := s.intercom(ctx, op, intercomID)
	if err != nil {
		return nil, err
	}
	entry := s.mutationEntry(audit.ActionUserPinReset, p, ic, credential.TypeUser)

	master, err := s.store.FindActiveMasterPin(ctx, ic.ID)
	if err != nil && !errors.Is(err, credential.ErrMasterPinNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.guard.Check(ctx, auth.OpResetUserPin, p, Target{
		UserID:            in.UserID,
		BuildingID:        ic.BuildingID,
		MasterPin:         master,
		SuppliedMasterPin: in.MasterPin,
	})
	if err != nil {
		s.recordDenial(ctx, entry, err)
		return nil, err
	}

	// Looked up only after the guard so callers cannot learn which ids exist.
	if _, err := s.dir.User(ctx, in.UserID); err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, notFound(op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.saveUserPin(ctx, op, ic, in.UserID, in.Pin, entry)
}

// ChangeOwnPin sets the caller's own PIN on an intercom. Once the caller
// has an active PIN there, in.OldPin must match it.
func (s *Service) ChangeOwnPin(ctx context.Context, p auth.Principal, intercomID int64, in ChangePinInput) (*PinResult, error) {
	return s.setOwnPin(ctx, "change own pin", p, intercomID, in.NewPin, &in.OldPin)
}

// setOwnPin stores the caller's PIN. A nil oldPin skips the old PIN check.
func (s *Service) setOwnPin(ctx context.Context, op string, p auth.Principal, intercomID int64, newPin string, oldPin *string) (*PinResult, error) {
	ic, err := s.intercom(ctx, op, intercomID)
	if err != nil {
		return nil, err
	}
	entry := s.mutationEntry(audit.ActionUserPinSet, p, ic, credential.TypeUser)

	if _, err := s.guard.Check(ctx, auth.OpSetOwnPin, p, Target{UserID: p.UserID}); err != nil {
		s.recordDenial(ctx, entry, err)
		return nil, err
	}
	if _, err := s.dir.User(ctx, p.UserID); err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, notFound(op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if oldPin != nil {
		current, err := s.store.FindActiveUserPin(ctx, ic.ID, p.UserID)
		switch {
		case errors.Is(err, credential.ErrUserPinNotFound):
		case err != nil:
			return nil, fmt.Errorf("%s: %w", op, err)
		case *oldPin == "":
			return nil, newError(KindValidation, op, "old pin is required")
		case !s.hasher.Verify(current.PinHash, *oldPin):
			denial := newError(KindInvalidCredential, op, "old pin mismatch")
			entry.CredentialRefID = &current.ID
			s.recordDenial(ctx, entry, denial)
			return nil, denial
		}
	}

	return s.saveUserPin(ctx, op, ic, p.UserID, newPin, entry)
}

func (s *Service) saveUserPin(ctx context.Context, op string, ic *directory.Intercom, userID int64, pin string, entry audit.Entry) (*PinResult, error) {
	if err := s.validateSecret(op, "pin", pin, s.cfg.PinMaxLength); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(pin)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	actorID := userID
	if entry.UserID != nil {
		actorID = *entry.UserID
	}

	now := s.now()
	var res PinResult
	err = s.db.WithTx(ctx, func(q database.Querier) error {
		up, created, err := s.store.WithTx(q).SaveUserPin(ctx, ic.ID, userID, hash, actorID, now)
		if err != nil {
			return err
		}
		entry.IsSuccess = true
		entry.CredentialRefID = &up.ID
		entry.OccurredAt = now
		if err := s.ledger.WithTx(q).Append(ctx, &entry); err != nil {
			return err
		}
		res = PinResult{ID: up.ID, IntercomID: ic.ID, UserID: &up.UserID, Created: created, UpdatedAt: up.UpdatedAt}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("user pin set", "intercom_id", ic.ID, "user_id", userID, "actor_id", actorID, "created", res.Created)
	return &res, nil
}

// mutationEntry starts a ledger entry for an administrative action.
func (s *Service) mutationEntry(action string, p auth.Principal, ic *directory.Intercom, ct credential.Type) audit.Entry {
	e := audit.Entry{Action: action, CredentialType: ct}
	if ic != nil {
		e.IntercomID = ptr(ic.ID)
		e.BuildingID = ptr(ic.BuildingID)
	}
	if p.UserID != 0 {
		e.UserID = ptr(p.UserID)
	}
	return e
}
