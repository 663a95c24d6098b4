package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/intercom-access/internal/audit"
	"github.com/nerrad567/intercom-access/internal/credential"
)

type setMasterPinRequest struct {
	Pin string `json:"pin" validate:"required,min=4,max=20"`
}

type setUserPinRequest struct {
	Pin       string `json:"pin" validate:"required,min=4,max=20"`
	MasterPin string `json:"masterPin" validate:"omitempty,max=20"`
}

type changePinRequest struct {
	NewPin string `json:"newPin" validate:"required,min=4,max=20"`
	OldPin string `json:"oldPin" validate:"omitempty,max=20"`
}

type verifyRequest struct {
	Pin        string `json:"pin"`
	DeviceInfo string `json:"deviceInfo"`
}

type createCodeRequest struct {
	BuildingID  int64      `json:"buildingId" validate:"gte=0"`
	IntercomID  *int64     `json:"intercomId" validate:"omitempty,gt=0"`
	TenantID    *int64     `json:"tenantId" validate:"omitempty,gt=0"`
	Code        string     `json:"code" validate:"omitempty,min=4,max=72"`
	CodeType    string     `json:"codeType" validate:"omitempty,oneof=pin qr"`
	IsSingleUse bool       `json:"isSingleUse"`
	ValidFrom   *time.Time `json:"validFrom"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

type updateCodeRequest struct {
	IntercomID  *int64     `json:"intercomId" validate:"omitempty,gt=0"`
	Code        string     `json:"code" validate:"omitempty,min=4,max=72"`
	CodeType    string     `json:"codeType" validate:"omitempty,oneof=pin qr"`
	IsSingleUse bool       `json:"isSingleUse"`
	ValidFrom   *time.Time `json:"validFrom"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// maxDeviceInfoLength truncates what a device may write into the ledger.
const maxDeviceInfoLength = 255

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. On failure it has
// already written the 400.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, validationMessage(verrs))
			return false
		}
		writeBadRequest(w, err.Error())
		return false
	}
	return true
}

func validationMessage(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", e.Field(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", e.Field(), e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

// queryParser collects the first error while reading optional parameters.
type queryParser struct {
	r   *http.Request
	err error
}

func (p *queryParser) fail(name, want string) {
	if p.err == nil {
		p.err = fmt.Errorf("%s must be %s", name, want)
	}
}

func (p *queryParser) number(name string) int {
	v := p.r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		p.fail(name, "a non-negative integer")
		return 0
	}
	return n
}

func (p *queryParser) id(name string) *int64 {
	v := p.r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		p.fail(name, "a positive integer")
		return nil
	}
	return &n
}

func (p *queryParser) flag(name string) *bool {
	v := p.r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(name, "true or false")
		return nil
	}
	return &b
}

func (p *queryParser) timestamp(name string) *time.Time {
	v := p.r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		p.fail(name, "an RFC 3339 timestamp")
		return nil
	}
	return &t
}

func (p *queryParser) credentialType(name string) *credential.Type {
	v := p.r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	ct := credential.Type(v)
	if !ct.IsValid() {
		p.fail(name, "one of Master, User, AccessCode, None")
		return nil
	}
	return &ct
}

// logFilter reads the ledger filters shared by both log routes.
func logFilter(r *http.Request) (audit.Filter, error) {
	p := &queryParser{r: r}
	f := audit.Filter{
		BuildingID:     p.id("buildingId"),
		IntercomID:     p.id("intercomId"),
		CodeID:         p.id("codeId"),
		UserID:         p.id("userId"),
		From:           p.timestamp("from"),
		To:             p.timestamp("to"),
		Success:        p.flag("success"),
		CredentialType: p.credentialType("credentialType"),
		Action:         r.URL.Query().Get("action"),
		Page:           p.number("page"),
		PageSize:       p.number("pageSize"),
	}
	return f, p.err
}
