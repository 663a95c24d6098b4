package access_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nerrad567/intercom-access/internal/access"
	"github.com/nerrad567/intercom-access/internal/auth"
	"github.com/nerrad567/intercom-access/internal/credential"
	"github.com/nerrad567/intercom-access/internal/directory"
	"github.com/nerrad567/intercom-access/internal/infrastructure/config"
	"github.com/nerrad567/intercom-access/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []access.Event
	err    error
}

func (r *recordingSink) HandleAccessEvent(_ context.Context, ev access.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) Events() []access.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]access.Event(nil), r.events...)
}

// harness is a small property:
//
//	admin (ALL)
//	└── pm (Property Manager, PM mode), customer of building
//	    ├── desk  (PM mode, granted building)
//	    ├── staff (OWN mode, granted building)
//	    ├── tenantA, tenantB (tenants of building)
//	    └── outsider (PM mode, no grants)
//
// building has intercom and lobby; other has otherIntercom.
type harness struct {
	t    *testing.T
	f    *testutil.Fixture
	svc  *access.Service
	sink *recordingSink
	now  time.Time

	admin, pm, desk, staff, tenantA, tenantB, outsider int64
	building, other                                    int64
	intercom, lobby, otherIntercom                     int64
}

func newHarness(t *testing.T, mutate ...func(*config.AccessConfig)) *harness {
	t.Helper()
	f := testutil.NewFixture(t)

	adminType := f.UserType("super_admin", "ALL")
	pmType := f.UserType(directory.PropertyManagerTypeCode, "PM")
	deskType := f.UserType("front_desk", "PM")
	staffType := f.UserType("staff", "OWN")
	tenantType := f.UserType("tenant", "OWN")

	h := &harness{
		t:    t,
		f:    f,
		sink: &recordingSink{},
		now:  time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.admin = f.User(adminType, 0)
	h.pm = f.User(pmType, h.admin)
	h.desk = f.User(deskType, h.pm)
	h.staff = f.User(staffType, h.pm)
	h.tenantA = f.User(tenantType, h.pm)
	h.tenantB = f.User(tenantType, h.pm)
	h.outsider = f.User(deskType, h.admin)

	h.building = f.Building(h.pm, h.admin)
	h.other = f.Building(0, h.admin)
	h.intercom = f.Intercom(h.building)
	h.lobby = f.Intercom(h.building)
	h.otherIntercom = f.Intercom(h.other)

	f.Tenant(h.tenantA, h.building)
	f.Tenant(h.tenantB, h.building)
	f.Grant(h.desk, h.building)
	f.Grant(h.staff, h.building)

	cfg := config.Default().Access
	for _, m := range mutate {
		m(&cfg)
	}

	h.svc = access.NewService(access.Deps{
		DB:     f.DB,
		Hasher: credential.NewHasher(bcrypt.MinCost),
		Config: cfg,
		Sinks:  []access.EventSink{h.sink},
		Clock:  func() time.Time { return h.now },
	})
	return h
}

func (h *harness) as(userID int64) auth.Principal {
	h.t.Helper()
	switch userID {
	case h.admin:
		return auth.Principal{UserID: userID, Role: auth.RoleSuperAdmin}
	case h.pm:
		return auth.Principal{UserID: userID, Role: auth.RolePropertyManager}
	case h.staff:
		return auth.Principal{UserID: userID, Role: auth.RoleStaff}
	case h.tenantA, h.tenantB:
		return auth.Principal{UserID: userID, Role: auth.RoleTenant}
	default:
		return auth.Principal{UserID: userID, Role: auth.RoleFrontDesk}
	}
}

func (h *harness) setMasterPin(intercomID int64, pin string) {
	h.t.Helper()
	if _, err := h.svc.SetMasterPin(context.Background(), h.as(h.admin), intercomID, pin); err != nil {
		h.t.Fatalf("SetMasterPin() error = %v", err)
	}
}

func (h *harness) createCode(by int64, in access.CreateCodeInput) *credential.AccessCode {
	h.t.Helper()
	c, err := h.svc.CreateAccessCode(context.Background(), h.as(by), in)
	if err != nil {
		h.t.Fatalf("CreateAccessCode() error = %v", err)
	}
	return c
}

func (h *harness) verify(intercomID int64, pin string) *access.VerifyResult {
	h.t.Helper()
	res, err := h.svc.Verify(context.Background(), access.VerifyRequest{
		IntercomID: intercomID,
		Pin:        pin,
		SourceIP:   "192.0.2.10",
		DeviceInfo: "door-panel/1.0",
	})
	if err != nil {
		h.t.Fatalf("Verify() error = %v", err)
	}
	return res
}

func (h *harness) count(query string, args ...any) int {
	h.t.Helper()
	var n int
	if err := h.f.DB.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		h.t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func (h *harness) logRows() int {
	h.t.Helper()
	return h.count("SELECT COUNT(*) FROM access_logs")
}

func wantKind(t *testing.T, err error, target error) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %v", target)
	}
	if !errors.Is(err, target) {
		t.Fatalf("error = %v (kind %q), want kind of %v", err, access.KindOf(err), target)
	}
}
