package credential

import (
	"errors"
	"time"
)

// Sentinel errors.
var (
	ErrMasterPinNotFound  = errors.New("master pin not found")
	ErrUserPinNotFound    = errors.New("user pin not found")
	ErrAccessCodeNotFound = errors.New("access code not found")
	ErrExpiryBeforeStart  = errors.New("expiry must be after valid-from")
	ErrExpiryInPast       = errors.New("expiry must be in the future")
	ErrInvalidCodeType    = errors.New("code type must be pin or qr")
)

// Type identifies which credential matched a verification.
type Type string

const (
	TypeMaster     Type = "Master"
	TypeUser       Type = "User"
	TypeAccessCode Type = "AccessCode"
	TypeNone       Type = "None"
)

// ValidTypes lists every credential type.
var ValidTypes = []Type{TypeMaster, TypeUser, TypeAccessCode, TypeNone}

// IsValid reports whether t is a known credential type.
func (t Type) IsValid() bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// CodeType is the presentation of an access code.
type CodeType string

const (
	CodeTypePIN CodeType = "pin"
	CodeTypeQR  CodeType = "qr"
)

// ParseCodeType validates a code type. Empty means pin.
func ParseCodeType(s string) (CodeType, error) {
	switch CodeType(s) {
	case "", CodeTypePIN:
		return CodeTypePIN, nil
	case CodeTypeQR:
		return CodeTypeQR, nil
	default:
		return "", ErrInvalidCodeType
	}
}

// MasterPin is the shared door PIN of an intercom.
type MasterPin struct {
	ID         int64     `json:"id"`
	IntercomID int64     `json:"intercomId"`
	PinHash    string    `json:"-"`
	IsActive   bool      `json:"isActive"`
	CreatedBy  *int64    `json:"createdBy,omitempty"`
	UpdatedBy  *int64    `json:"updatedBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserPin is a person's PIN on one intercom.
type UserPin struct {
	ID         int64     `json:"id"`
	IntercomID int64     `json:"intercomId"`
	UserID     int64     `json:"userId"`
	PinHash    string    `json:"-"`
	IsActive   bool      `json:"isActive"`
	CreatedBy  *int64    `json:"createdBy,omitempty"`
	UpdatedBy  *int64    `json:"updatedBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AccessCode is a PIN or QR credential for a building or one of its intercoms.
type AccessCode struct {
	ID         int64  `json:"id"`
	BuildingID int64  `json:"buildingId"`
	IntercomID *int64 `json:"intercomId,omitempty"` // nil: any intercom in the building
	TenantID   *int64 `json:"tenantId,omitempty"`

	CodeType CodeType `json:"codeType"`
	CodeHash string   `json:"-"`

	// CodePlain is only stored when plaintext retention is enabled.
	CodePlain *string `json:"code,omitempty"`

	IsSingleUse bool       `json:"isSingleUse"`
	ValidFrom   *time.Time `json:"validFrom,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	IsActive    bool       `json:"isActive"`

	CreatedBy int64      `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedBy *int64     `json:"updatedBy,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	DeletedAt *time.Time `json:"-"`
}

// OwnerID returns the creator, for visibility filtering.
func (c AccessCode) OwnerID() int64 { return c.CreatedBy }

// ValidAt reports whether the code could grant access at now.
func (c *AccessCode) ValidAt(now time.Time) bool {
	if !c.IsActive || c.DeletedAt != nil {
		return false
	}
	if c.ValidFrom != nil && c.ValidFrom.After(now) {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}

// ValidateWindow checks a validity window against now. Both ends are optional.
func ValidateWindow(validFrom, expiresAt *time.Time, now time.Time) error {
	if expiresAt == nil {
		return nil
	}
	if validFrom != nil && !expiresAt.After(*validFrom) {
		return ErrExpiryBeforeStart
	}
	if !expiresAt.After(now) {
		return ErrExpiryInPast
	}
	return nil
}
