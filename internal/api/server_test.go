package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/nerrad567/intercom-access/internal/access"
	"github.com/nerrad567/intercom-access/internal/audit"
	"github.com/nerrad567/intercom-access/internal/auth"
	"github.com/nerrad567/intercom-access/internal/credential"
	"github.com/nerrad567/intercom-access/internal/directory"
	"github.com/nerrad567/intercom-access/internal/infrastructure/config"
	"github.com/nerrad567/intercom-access/internal/infrastructure/logging"
	"github.com/nerrad567/intercom-access/internal/testutil"
)

const (
	testSecret = "test-secret"
	testIssuer = "intercom-test"
)

type testEnv struct {
	t       *testing.T
	srv     *Server
	handler http.Handler
	hub     *Hub

	admin, pm, tenant, outsider int64
	building, intercom          int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	f := testutil.NewFixture(t)

	env := &testEnv{t: t}
	env.admin = f.User(f.UserType("super_admin", "ALL"), 0)
	env.pm = f.User(f.UserType(directory.PropertyManagerTypeCode, "PM"), env.admin)
	env.tenant = f.User(f.UserType("tenant", "OWN"), env.pm)
	env.outsider = f.User(f.UserType("front_desk", "PM"), env.admin)
	env.building = f.Building(env.pm, env.admin)
	env.intercom = f.Intercom(env.building)
	f.Tenant(env.tenant, env.building)

	cfg := config.Default()
	cfg.Security.JWT.Secret = testSecret
	cfg.Security.JWT.Issuer = testIssuer
	logger := logging.Discard()

	env.hub = NewHub(cfg.WebSocket, logger)
	svc := access.NewService(access.Deps{
		DB:     f.DB,
		Hasher: credential.NewHasher(bcrypt.MinCost),
		Config: cfg.Access,
		Sinks:  []access.EventSink{access.NewHubSink(env.hub)},
		Logger: logger,
	})

	srv, err := New(Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   logger,
		Access:   svc,
		DB:       f.DB,
		Hub:      env.hub,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.srv = srv
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) token(userID int64) string {
	e.t.Helper()
	role := auth.RoleFrontDesk
	switch userID {
	case e.admin:
		role = auth.RoleSuperAdmin
	case e.pm:
		role = auth.RolePropertyManager
	case e.tenant:
		role = auth.RoleTenant
	}
	tok, err := auth.SignToken(auth.Principal{UserID: userID, Role: role}, testSecret, testIssuer, time.Hour)
	if err != nil {
		e.t.Fatalf("SignToken() error = %v", err)
	}
	return tok
}

// do sends a request as userID; zero means no Authorization header.
func (e *testEnv) do(method, path string, userID int64, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+e.token(userID))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) intercomPath(suffix string) string {
	return "/api/intercoms/" + strconv.FormatInt(e.intercom, 10) + "/access" + suffix
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, status, w.Body.String())
	}
	if code == "" {
		return
	}
	if got := decodeBody[Error](t, w); got.Code != code {
		t.Errorf("error code = %q, want %q", got.Code, code)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	logger := logging.Discard()
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without a logger should fail")
	}
	if _, err := New(Deps{Logger: logger}); err == nil {
		t.Error("New() without an access service should fail")
	}
	svc := access.NewService(access.Deps{DB: testutil.OpenDB(t), Hasher: credential.NewHasher(bcrypt.MinCost)})
	if _, err := New(Deps{Logger: logger, Access: svc}); err == nil {
		t.Error("New() without a jwt secret should fail")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/health", 0, "")
	wantStatus(t, w, http.StatusOK, "")
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	body := decodeBody[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, w)
	if body.Status != "ok" || body.Checks["database"] != "ok" {
		t.Errorf("health = %+v, want ok", body)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/health", 0, "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "door-42")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "door-42" {
		t.Errorf("X-Request-ID = %q, want door-42", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/access-codes", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	wantStatus(t, env.do(http.MethodGet, "/api/access-codes", 0, ""), http.StatusUnauthorized, ErrCodeUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/access-codes", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	wantStatus(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)

	wrongKey, err := auth.SignToken(auth.Principal{UserID: env.admin, Role: auth.RoleSuperAdmin}, "other-secret", testIssuer, time.Hour)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/access-codes", nil)
	req.Header.Set("Authorization", "Bearer "+wrongKey)
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	wantStatus(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestVerify_AlwaysOK(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		path   string
		body   string
		reason string
	}{
		{"unknown intercom", "/api/intercoms/9999/access/verify", `{"pin":"1234"}`, access.ReasonIntercomNotFound},
		{"malformed intercom id", "/api/intercoms/door/access/verify", `{"pin":"1234"}`, access.ReasonIntercomNotFound},
		{"malformed body", env.intercomPath("/verify"), `{"pin":`, access.ReasonInvalidOrExpired},
		{"wrong pin", env.intercomPath("/verify"), `{"pin":"0000","deviceInfo":"panel"}`, access.ReasonInvalidOrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, tt.path, 0, tt.body)
			wantStatus(t, w, http.StatusOK, "")
			res := decodeBody[access.VerifyResult](t, w)
			if res.Granted || res.Reason != tt.reason {
				t.Errorf("result = %+v, want denial %q", res, tt.reason)
			}
		})
	}

	wantStatus(t, env.do(http.MethodPost, env.intercomPath("/master-pin"), env.admin, `{"pin":"2468"}`), http.StatusOK, "")

	w := env.do(http.MethodPost, env.intercomPath("/verify"), 0, `{"pin":"2468"}`)
	wantStatus(t, w, http.StatusOK, "")
	res := decodeBody[access.VerifyResult](t, w)
	if !res.Granted || res.CredentialType != credential.TypeMaster {
		t.Errorf("result = %+v, want a master pin grant", res)
	}
}

func TestVerify_MalformedIntercomIsLogged(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/intercoms/door/access/verify", 0, `{"pin":"1234","deviceInfo":"panel"}`)
	wantStatus(t, w, http.StatusOK, "")

	w = env.do(http.MethodGet, "/api/access-logs?action="+audit.ActionVerify, env.admin, "")
	wantStatus(t, w, http.StatusOK, "")
	logs := decodeBody[audit.ListResult](t, w)
	if logs.Total != 1 {
		t.Fatalf("Total = %d, want 1", logs.Total)
	}
	entry := logs.Entries[0]
	if entry.IntercomID != nil || entry.IsSuccess || entry.Reason != access.ReasonIntercomNotFound || entry.DeviceInfo != "panel" {
		t.Errorf("entry = %+v, want a failed attempt without intercom", entry)
	}
}

func TestVerify_TruncatesDeviceInfo(t *testing.T) {
	env := newTestEnv(t)

	body := `{"pin":"0000","deviceInfo":"` + strings.Repeat("x", 1000) + `"}`
	wantStatus(t, env.do(http.MethodPost, env.intercomPath("/verify"), 0, body), http.StatusOK, "")

	w := env.do(http.MethodGet, "/api/access-logs", env.admin, "")
	wantStatus(t, w, http.StatusOK, "")
	logs := decodeBody[audit.ListResult](t, w)
	if logs.Total != 1 || len(logs.Entries[0].DeviceInfo) != maxDeviceInfoLength {
		t.Errorf("ledger = %+v, want one entry with truncated device info", logs.Entries)
	}

	// Two-byte runes: 255 bytes would end mid-rune.
	body = `{"pin":"0000","deviceInfo":"` + strings.Repeat("é", 200) + `"}`
	wantStatus(t, env.do(http.MethodPost, env.intercomPath("/verify"), 0, body), http.StatusOK, "")

	w = env.do(http.MethodGet, "/api/access-logs", env.admin, "")
	wantStatus(t, w, http.StatusOK, "")
	logs = decodeBody[audit.ListResult](t, w)
	if logs.Total != 2 {
		t.Fatalf("Total = %d, want 2", logs.Total)
	}
	var info string
	for _, e := range logs.Entries {
		if strings.HasPrefix(e.DeviceInfo, "é") {
			info = e.DeviceInfo
		}
	}
	if !utf8.ValidString(info) || info != strings.Repeat("é", 127) {
		t.Errorf("device info = %q (%d bytes), want 127 whole runes", info, len(info))
	}
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"日本", 4, "日"},
		{"日本", 6, "日本"},
		{"é", 1, ""},
	}
	for _, tt := range tests {
		if got := truncateUTF8(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateUTF8(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestPinRoutes_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	wantStatus(t, env.do(http.MethodPost, env.intercomPath("/master-pin"), env.admin, `{"pin":"1234"}`), http.StatusOK, "")

	userPin := env.intercomPath("/users/" + strconv.FormatInt(env.tenant, 10) + "/pin")
	tests := []struct {
		name   string
		method string
		path   string
		caller int64
		body   string
		status int
		code   string
	}{
		{"master pin by property manager", http.MethodPost, env.intercomPath("/master-pin"), env.pm, `{"pin":"5678"}`, http.StatusForbidden, ErrCodeForbidden},
		{"master pin on unknown intercom", http.MethodPost, "/api/intercoms/9999/access/master-pin", env.admin, `{"pin":"5678"}`, http.StatusNotFound, ErrCodeNotFound},
		{"master pin too short", http.MethodPost, env.intercomPath("/master-pin"), env.admin, `{"pin":"12"}`, http.StatusBadRequest, ErrCodeValidation},
		{"unknown field", http.MethodPost, env.intercomPath("/master-pin"), env.admin, `{"pin":"5678","extra":1}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"bad intercom id", http.MethodPost, "/api/intercoms/0/access/master-pin", env.admin, `{"pin":"5678"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"reset without master pin", http.MethodPost, userPin, env.admin, `{"pin":"1111"}`, http.StatusForbidden, ErrCodeMasterPinRequired},
		{"reset with wrong master pin", http.MethodPost, userPin, env.admin, `{"pin":"1111","masterPin":"9999"}`, http.StatusForbidden, ErrCodeInvalidMasterPin},
		{"reset ok", http.MethodPost, userPin, env.admin, `{"pin":"1111","masterPin":"1234"}`, http.StatusOK, ""},
		{"own change without old pin", http.MethodPut, env.intercomPath("/me/pin"), env.tenant, `{"newPin":"2222"}`, http.StatusBadRequest, ErrCodeValidation},
		{"own change with wrong old pin", http.MethodPut, env.intercomPath("/me/pin"), env.tenant, `{"newPin":"2222","oldPin":"9999"}`, http.StatusBadRequest, ErrCodeInvalidCredential},
		{"own change ok", http.MethodPost, env.intercomPath("/pin/self"), env.tenant, `{"newPin":"2222","oldPin":"1111"}`, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantStatus(t, env.do(tt.method, tt.path, tt.caller, tt.body), tt.status, tt.code)
		})
	}
}

func TestAccessCodeLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/access-codes", env.tenant, `{"isSingleUse":true}`)
	wantStatus(t, w, http.StatusCreated, "")
	created := decodeBody[credential.AccessCode](t, w)
	if created.BuildingID != env.building || created.CodePlain == nil || len(*created.CodePlain) != 6 {
		t.Fatalf("created = %+v, want a generated code in the tenant's building", created)
	}
	codePath := "/api/access-codes/" + strconv.FormatInt(created.ID, 10)

	wantStatus(t, env.do(http.MethodGet, codePath, env.tenant, ""), http.StatusOK, "")
	wantStatus(t, env.do(http.MethodGet, "/api/access-codes/9999", env.admin, ""), http.StatusNotFound, ErrCodeNotFound)
	wantStatus(t, env.do(http.MethodDelete, codePath, env.outsider, ""), http.StatusForbidden, ErrCodeForbidden)

	w = env.do(http.MethodGet, "/api/access-codes?buildingId="+strconv.FormatInt(env.building, 10), env.pm, "")
	wantStatus(t, w, http.StatusOK, "")
	if page := decodeBody[access.CodePage](t, w); page.Total != 1 {
		t.Errorf("pm sees %d codes, want 1", page.Total)
	}
	wantStatus(t, env.do(http.MethodGet, "/api/access-codes?activeOnly=maybe", env.pm, ""), http.StatusBadRequest, ErrCodeBadRequest)

	// The code opens the door once.
	verify := `{"pin":"` + *created.CodePlain + `"}`
	if res := decodeBody[access.VerifyResult](t, env.do(http.MethodPost, env.intercomPath("/verify"), 0, verify)); !res.Granted {
		t.Errorf("first use = %+v, want granted", res)
	}
	if res := decodeBody[access.VerifyResult](t, env.do(http.MethodPost, env.intercomPath("/verify"), 0, verify)); res.Granted {
		t.Errorf("second use = %+v, want denied", res)
	}

	w = env.do(http.MethodPost, codePath+"/deactivate", env.pm, "")
	wantStatus(t, w, http.StatusOK, "")
	if c := decodeBody[credential.AccessCode](t, w); c.IsActive {
		t.Error("deactivated code is still active")
	}

	w = env.do(http.MethodDelete, codePath, env.tenant, "")
	wantStatus(t, w, http.StatusNoContent, "")
	if w.Body.Len() != 0 {
		t.Errorf("204 body = %q, want empty", w.Body.String())
	}
	wantStatus(t, env.do(http.MethodGet, codePath, env.tenant, ""), http.StatusNotFound, ErrCodeNotFound)
}

func TestAccessCode_Validation(t *testing.T) {
	env := newTestEnv(t)
	building := strconv.FormatInt(env.building, 10)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown code type", `{"buildingId":` + building + `,"codeType":"nfc"}`, http.StatusBadRequest, ErrCodeValidation},
		{"code too short", `{"buildingId":` + building + `,"code":"12"}`, http.StatusBadRequest, ErrCodeValidation},
		{"expired", `{"buildingId":` + building + `,"expiresAt":"2001-01-01T00:00:00Z"}`, http.StatusBadRequest, ErrCodeValidation},
		{"unknown building", `{"buildingId":9999}`, http.StatusNotFound, ErrCodeNotFound},
		{"qr", `{"buildingId":` + building + `,"codeType":"qr"}`, http.StatusCreated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantStatus(t, env.do(http.MethodPost, "/api/access-codes", env.admin, tt.body), tt.status, tt.code)
		})
	}
}

func TestLogs_Scoped(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, env.intercomPath("/verify"), 0, `{"pin":"0000"}`)
	env.do(http.MethodPost, env.intercomPath("/verify"), 0, `{"pin":"1111"}`)

	tests := []struct {
		name   string
		caller int64
		want   int
	}{
		{"super admin", env.admin, 2},
		{"building customer", env.pm, 2},
		{"no buildings", env.outsider, 0},
		{"tenant", env.tenant, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, "/api/access-logs?success=false", tt.caller, "")
			wantStatus(t, w, http.StatusOK, "")
			if got := decodeBody[audit.ListResult](t, w).Total; got != tt.want {
				t.Errorf("Total = %d, want %d", got, tt.want)
			}
		})
	}

	wantStatus(t, env.do(http.MethodGet, "/api/access-logs?from=yesterday", env.admin, ""), http.StatusBadRequest, ErrCodeBadRequest)

	w := env.do(http.MethodGet, env.intercomPath("/logs?pageSize=1"), env.admin, "")
	wantStatus(t, w, http.StatusOK, "")
	if res := decodeBody[audit.ListResult](t, w); res.Total != 2 || len(res.Entries) != 1 {
		t.Errorf("intercom logs = %d entries of %d, want 1 of 2", len(res.Entries), res.Total)
	}
	wantStatus(t, env.do(http.MethodGet, env.intercomPath("/logs"), env.pm, ""), http.StatusForbidden, ErrCodeForbidden)
}

func TestAccessEvents_WebSocket(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	wantStatus(t, env.do(http.MethodGet, "/api/access/events/ws", 0, ""), http.StatusUnauthorized, ErrCodeUnauthorized)
	wantStatus(t, env.do(http.MethodGet, "/api/access/events/ws?token="+env.token(env.tenant), 0, ""), http.StatusForbidden, ErrCodeForbidden)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/access/events/ws?token=" + env.token(env.admin)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer resp.Body.Close()
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.do(http.MethodPost, env.intercomPath("/verify"), 0, `{"pin":"0000"}`)

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var msg struct {
		Type      string       `json:"type"`
		EventType string       `json:"eventType"`
		Payload   access.Event `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != access.EventChannel {
		t.Errorf("message = %+v, want an %s event", msg, access.EventChannel)
	}
	if msg.Payload.IntercomID != env.intercom || msg.Payload.Granted {
		t.Errorf("payload = %+v, want a denial at intercom %d", msg.Payload, env.intercom)
	}
}
