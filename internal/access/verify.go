package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/intercom-access/internal/audit"
	"github.com/nerrad567/intercom-access/internal/credential"
	"github.com/nerrad567/intercom-access/internal/directory"
	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
)

// Verification reasons. Denials are deliberately undifferentiated so a
// device cannot learn why a code failed.
const (
	ReasonGranted          = "Access granted"
	ReasonIntercomNotFound = "Intercom not found"
	ReasonInvalidOrExpired = "Invalid or expired"
	ReasonUnavailable      = "Verification unavailable"
)

// errLostRace means a concurrent verification consumed the single-use code first.
var errLostRace = errors.New("single-use code already consumed")

// VerifyRequest is a secret presented at an intercom.
type VerifyRequest struct {
	// IntercomID is zero when the device sent no usable id. The attempt
	// is still denied and recorded, without an intercom.
	IntercomID int64
	Pin        string
	SourceIP   string
	DeviceInfo string
}

// VerifyResult is the door decision.
type VerifyResult struct {
	Granted         bool            `json:"granted"`
	Reason          string          `json:"reason"`
	CredentialType  credential.Type `json:"credentialType"`
	CredentialRefID *int64          `json:"credentialRefId,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Err returns nil for a grant and an InvalidOrExpired error otherwise.
func (r *VerifyResult) Err() error {
	if r.Granted {
		return nil
	}
	return newError(KindInvalidOrExpired, "verify", r.Reason)
}

// Verify decides whether req opens the door. The order is fixed: access
// codes of the intercom and its building (newest first), then user PINs
// when enabled, then the master PIN. The first match wins.
//
// Every call appends exactly one ledger row. A single-use code is consumed
// in the same transaction as its success row, so of two concurrent callers
// presenting it only one is granted.
//
// The returned result is always safe to send to the device. A non-nil
// error means the decision could not be made or recorded; the result is
// then a denial with ReasonUnavailable.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	entry := audit.Entry{
		Action:     audit.ActionVerify,
		IPAddress:  req.SourceIP,
		DeviceInfo: req.DeviceInfo,
		OccurredAt: s.now(),
	}
	if req.IntercomID <= 0 {
		return s.deny(ctx, entry, ReasonIntercomNotFound)
	}
	entry.IntercomID = ptr(req.IntercomID)

	ic, err := s.dir.Intercom(ctx, req.IntercomID)
	if err != nil {
		if errors.Is(err, directory.ErrIntercomNotFound) {
			return s.deny(ctx, entry, ReasonIntercomNotFound)
		}
		return s.unavailable(ctx, entry, err)
	}
	entry.BuildingID = ptr(ic.BuildingID)

	if req.Pin != "" {
		res, err := s.match(ctx, ic, req.Pin, entry)
		if err != nil {
			return s.unavailable(ctx, entry, err)
		}
		if res != nil {
			return res, nil
		}
	}
	return s.deny(ctx, entry, ReasonInvalidOrExpired)
}

// match walks the precedence list. It returns nil, nil when nothing matched.
func (s *Service) match(ctx context.Context, ic *directory.Intercom, pin string, entry audit.Entry) (*VerifyResult, error) {
	now := entry.OccurredAt

	codes, err := s.store.FindCandidateAccessCodes(ctx, ic.ID, ic.BuildingID, now)
	if err != nil {
		return nil, err
	}
	for i := range codes {
		c := &codes[i]
		if !s.hasher.Verify(c.CodeHash, pin) {
			continue
		}
		var consume func(q database.Querier) error
		if c.IsSingleUse {
			consume = func(q database.Querier) error {
				ok, err := s.store.WithTx(q).ConsumeSingleUse(ctx, c.ID, now)
				if err != nil {
					return err
				}
				if !ok {
					return errLostRace
				}
				return nil
			}
		}
		res, err := s.grant(ctx, entry, credential.TypeAccessCode, c.ID, nil, consume)
		if errors.Is(err, errLostRace) {
			s.logger.Debug("single-use code consumed concurrently", "code_id", c.ID, "intercom_id", ic.ID)
			continue
		}
		return res, err
	}

	if s.cfg.VerifyUserPins {
		pins, err := s.store.FindActiveUserPins(ctx, ic.ID)
		if err != nil {
			return nil, err
		}
		for i := range pins {
			if s.hasher.Verify(pins[i].PinHash, pin) {
				return s.grant(ctx, entry, credential.TypeUser, pins[i].ID, ptr(pins[i].UserID), nil)
			}
		}
	}

	master, err := s.store.FindActiveMasterPin(ctx, ic.ID)
	switch {
	case errors.Is(err, credential.ErrMasterPinNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	case s.hasher.Verify(master.PinHash, pin):
		return s.grant(ctx, entry, credential.TypeMaster, master.ID, nil, nil)
	default:
		return nil, nil
	}
}

// grant records a success, running consume first in the same transaction.
func (s *Service) grant(ctx context.Context, entry audit.Entry, ct credential.Type, refID int64, userID *int64, consume func(q database.Querier) error) (*VerifyResult, error) {
	entry.IsSuccess = true
	entry.Reason = ReasonGranted
	entry.CredentialType = ct
	entry.CredentialRefID = ptr(refID)
	entry.UserID = userID

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		if consume != nil {
			if err := consume(q); err != nil {
				return err
			}
		}
		return s.ledger.WithTx(q).Append(ctx, &entry)
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, entry), nil
}

func (s *Service) deny(ctx context.Context, entry audit.Entry, reason string) (*VerifyResult, error) {
	entry.IsSuccess = false
	entry.Reason = reason
	entry.CredentialType = credential.TypeNone
	if err := s.ledger.Append(ctx, &entry); err != nil {
		return s.unavailable(ctx, entry, err)
	}
	return s.finish(ctx, entry), nil
}

// unavailable fails closed. It still tries to leave a ledger row; if that
// fails too the cause is all the caller gets.
func (s *Service) unavailable(ctx context.Context, entry audit.Entry, cause error) (*VerifyResult, error) {
	s.logger.Error("verification failed", "intercom_id", idValue(entry.IntercomID), "error", cause)

	entry.ID = 0
	entry.IsSuccess = false
	entry.Reason = ReasonUnavailable
	entry.CredentialType = credential.TypeNone
	entry.CredentialRefID = nil
	entry.UserID = nil
	if err := s.ledger.Append(ctx, &entry); err != nil {
		s.logger.Error("failed to record unavailable verification", "intercom_id", idValue(entry.IntercomID), "error", err)
	}

	return s.finish(ctx, entry), fmt.Errorf("verify: %w", cause)
}

// finish turns a recorded entry into the result and fans it out.
func (s *Service) finish(ctx context.Context, e audit.Entry) *VerifyResult {
	res := &VerifyResult{
		Granted:         e.IsSuccess,
		Reason:          e.Reason,
		CredentialType:  e.CredentialType,
		CredentialRefID: e.CredentialRefID,
		Timestamp:       e.OccurredAt,
	}

	if res.Granted {
		s.logger.Info("access granted", "intercom_id", idValue(e.IntercomID), "credential_type", e.CredentialType)
	} else {
		s.logger.Info("access denied", "intercom_id", idValue(e.IntercomID), "reason", res.Err())
	}

	s.emit(ctx, Event{
		ID:              uuid.NewString(),
		LogID:           e.ID,
		IntercomID:      idValue(e.IntercomID),
		BuildingID:      e.BuildingID,
		Granted:         e.IsSuccess,
		Reason:          e.Reason,
		CredentialType:  e.CredentialType,
		CredentialRefID: e.CredentialRefID,
		UserID:          e.UserID,
		DeviceInfo:      e.DeviceInfo,
		OccurredAt:      e.OccurredAt,
	})
	return res
}

// idValue returns the id or zero when absent.
func idValue(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
