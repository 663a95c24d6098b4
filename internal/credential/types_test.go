package credential

import (
	"errors"
	"testing"
	"time"
)

func TestValidateWindow(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	tests := []struct {
		name      string
		from, exp *time.Time
		want      error
	}{
		{"open ended", nil, nil, nil},
		{"only start", at(time.Hour), nil, nil},
		{"future expiry", nil, at(time.Hour), nil},
		{"window", at(time.Hour), at(2 * time.Hour), nil},
		{"expiry before start", at(2 * time.Hour), at(time.Hour), ErrExpiryBeforeStart},
		{"expiry equals start", at(time.Hour), at(time.Hour), ErrExpiryBeforeStart},
		{"expiry in past", nil, at(-time.Second), ErrExpiryInPast},
		{"expiry now", nil, at(0), ErrExpiryInPast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateWindow(tt.from, tt.exp, now); !errors.Is(err, tt.want) {
				t.Errorf("ValidateWindow() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAccessCode_ValidAt(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)

	tests := []struct {
		name string
		code AccessCode
		want bool
	}{
		{"active open", AccessCode{IsActive: true}, true},
		{"inactive", AccessCode{}, false},
		{"deleted", AccessCode{IsActive: true, DeletedAt: &past}, false},
		{"not yet valid", AccessCode{IsActive: true, ValidFrom: &future}, false},
		{"expired", AccessCode{IsActive: true, ExpiresAt: &past}, false},
		{"expires exactly now", AccessCode{IsActive: true, ExpiresAt: &now}, false},
		{"inside window", AccessCode{IsActive: true, ValidFrom: &past, ExpiresAt: &future}, true},
	}
	for _, tt := range tests {
		if got := tt.code.ValidAt(now); got != tt.want {
			t.Errorf("%s: ValidAt() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseCodeType(t *testing.T) {
	for in, want := range map[string]CodeType{"": CodeTypePIN, "pin": CodeTypePIN, "qr": CodeTypeQR} {
		got, err := ParseCodeType(in)
		if err != nil || got != want {
			t.Errorf("ParseCodeType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCodeType("nfc"); !errors.Is(err, ErrInvalidCodeType) {
		t.Errorf("ParseCodeType(nfc) error = %v", err)
	}
}

func TestHasher(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("1234")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "1234" {
		t.Fatal("Hash() returned plaintext")
	}
	if !h.Verify(hash, "1234") {
		t.Error("Verify() rejected the right secret")
	}
	if h.Verify(hash, "4321") {
		t.Error("Verify() accepted the wrong secret")
	}
	if h.Verify("not-a-hash", "1234") {
		t.Error("Verify() accepted a malformed hash")
	}

	again, err := h.Hash("1234")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if again == hash {
		t.Error("hashes of the same secret should be salted differently")
	}
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(8)
	if err != nil {
		t.Fatalf("GenerateNumericCode() error = %v", err)
	}
	if len(code) != 8 {
		t.Errorf("len = %d, want 8", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit %q in %q", r, code)
		}
	}
}
