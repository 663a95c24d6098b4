package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-32b"

func TestSignAndParseToken(t *testing.T) {
	token, err := SignToken(Principal{UserID: 42, Role: RoleFrontDesk}, testSecret, "platform", time.Minute)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}

	p, err := ParseToken(token, testSecret, "platform")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if p.UserID != 42 || p.Role != RoleFrontDesk {
		t.Errorf("ParseToken() = %+v, want user 42 front_desk", p)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	valid := func() string {
		tok, err := SignToken(Principal{UserID: 1, Role: RoleTenant}, testSecret, "", time.Minute)
		if err != nil {
			t.Fatalf("SignToken() error = %v", err)
		}
		return tok
	}

	sign := func(c Claims, method jwt.SigningMethod, key any) string {
		tok, err := jwt.NewWithClaims(method, c).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return tok
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Minute))

	tests := []struct {
		name   string
		token  string
		secret string
		issuer string
	}{
		{"wrong secret", valid(), "another-secret-another-secret-xx", ""},
		{"wrong issuer", valid(), testSecret, "platform"},
		{"garbage", "not-a-token", testSecret, ""},
		{
			name: "expired",
			token: sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			}, Role: RoleTenant}, jwt.SigningMethodHS256, []byte(testSecret)),
			secret: testSecret,
		},
		{
			name: "non numeric subject",
			token: sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-1", ExpiresAt: future},
				Role: RoleTenant}, jwt.SigningMethodHS256, []byte(testSecret)),
			secret: testSecret,
		},
		{
			name: "unknown role",
			token: sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: future},
				Role: "owner"}, jwt.SigningMethodHS256, []byte(testSecret)),
			secret: testSecret,
		},
		{
			name: "wrong algorithm",
			token: sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: future},
				Role: RoleTenant}, jwt.SigningMethodHS512, []byte(testSecret)),
			secret: testSecret,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret, tt.issuer)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range ValidRoles {
		got, err := ParseRole(string(r))
		if err != nil || got != r {
			t.Errorf("ParseRole(%q) = %q, %v", r, got, err)
		}
	}
	if _, err := ParseRole("admin"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("ParseRole(admin) error = %v, want ErrUnknownRole", err)
	}
}
