package audit_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/intercom-access/internal/audit"
	"github.com/nerrad567/intercom-access/internal/credential"
	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
	"github.com/nerrad567/intercom-access/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func newLedger(t *testing.T) (*audit.Ledger, *testutil.Fixture) {
	t.Helper()
	f := testutil.NewFixture(t)
	return audit.NewLedger(f.DB, 0, 0), f
}

func TestLedger_Append(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	e := &audit.Entry{Action: audit.ActionVerify, IntercomID: ptr(int64(9999)), Reason: "Intercom not found"}
	if err := ledger.Append(ctx, e); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if e.ID == 0 {
		t.Error("Append() should set ID")
	}
	if e.OccurredAt.IsZero() {
		t.Error("Append() should default OccurredAt")
	}
	if e.CredentialType != credential.TypeNone {
		t.Errorf("CredentialType = %q, want None", e.CredentialType)
	}
}

func TestLedger_IsAppendOnly(t *testing.T) {
	ledger, f := newLedger(t)
	ctx := context.Background()

	e := &audit.Entry{Action: audit.ActionVerify}
	if err := ledger.Append(ctx, e); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	_, err := f.DB.ExecContext(ctx, "UPDATE access_logs SET is_success = 1 WHERE id = ?", e.ID)
	if err == nil || !strings.Contains(err.Error(), "append-only") {
		t.Errorf("UPDATE error = %v, want append-only rejection", err)
	}
	_, err = f.DB.ExecContext(ctx, "DELETE FROM access_logs WHERE id = ?", e.ID)
	if err == nil || !strings.Contains(err.Error(), "append-only") {
		t.Errorf("DELETE error = %v, want append-only rejection", err)
	}
}

func TestLedger_Query(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	seed := []audit.Entry{
		{Action: audit.ActionVerify, IntercomID: ptr(int64(1)), BuildingID: ptr(int64(10)), CredentialType: credential.TypeMaster, IsSuccess: true, OccurredAt: base},
		{Action: audit.ActionVerify, IntercomID: ptr(int64(1)), BuildingID: ptr(int64(10)), CredentialType: credential.TypeNone, OccurredAt: base.Add(time.Minute)},
		{Action: audit.ActionVerify, IntercomID: ptr(int64(2)), BuildingID: ptr(int64(20)), CredentialType: credential.TypeAccessCode, CredentialRefID: ptr(int64(7)), IsSuccess: true, OccurredAt: base.Add(2 * time.Minute)},
		{Action: audit.ActionAccessCodeCreate, BuildingID: ptr(int64(20)), UserID: ptr(int64(5)), CredentialType: credential.TypeAccessCode, CredentialRefID: ptr(int64(7)), IsSuccess: true, OccurredAt: base.Add(-time.Minute)},
		{Action: audit.ActionMasterPinSet, IntercomID: ptr(int64(1)), BuildingID: ptr(int64(10)), UserID: ptr(int64(1)), CredentialType: credential.TypeMaster, IsSuccess: true, OccurredAt: base.Add(2 * time.Minute)},
	}
	for i := range seed {
		if err := ledger.Append(ctx, &seed[i]); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	tests := []struct {
		name    string
		filter  audit.Filter
		wantIDs []int64
	}{
		{"all newest first, id breaks ties", audit.Filter{}, []int64{5, 3, 2, 1, 4}},
		{"intercom", audit.Filter{IntercomID: ptr(int64(1))}, []int64{5, 2, 1}},
		{"building", audit.Filter{BuildingID: ptr(int64(20))}, []int64{3, 4}},
		{"code", audit.Filter{CodeID: ptr(int64(7))}, []int64{3, 4}},
		{"user", audit.Filter{UserID: ptr(int64(5))}, []int64{4}},
		{"failures", audit.Filter{Success: ptr(false)}, []int64{2}},
		{"credential type", audit.Filter{CredentialType: ptr(credential.TypeMaster)}, []int64{5, 1}},
		{"window", audit.Filter{From: ptr(base), To: ptr(base.Add(time.Minute))}, []int64{2, 1}},
		{"action", audit.Filter{Action: audit.ActionVerify}, []int64{3, 2, 1}},
		{"scoped buildings", audit.Filter{BuildingIDs: []int64{10}}, []int64{5, 2, 1}},
		{"scoped to nothing", audit.Filter{BuildingIDs: []int64{}}, nil},
		{"owner", audit.Filter{OwnerUserID: ptr(int64(1))}, []int64{5}},
		{"page two", audit.Filter{Page: 2, PageSize: 2}, []int64{2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ledger.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(res.Entries) != len(tt.wantIDs) {
				t.Fatalf("Query() returned %d entries, want %d", len(res.Entries), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if res.Entries[i].ID != id {
					t.Errorf("entry[%d] = %d, want %d", i, res.Entries[i].ID, id)
				}
			}
		})
	}

	res, err := ledger.Query(ctx, audit.Filter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Total != 5 || res.Page != 2 || res.PageSize != 2 {
		t.Errorf("paging = total %d page %d size %d, want 5/2/2", res.Total, res.Page, res.PageSize)
	}
}

func TestLedger_PageClamp(t *testing.T) {
	f := testutil.NewFixture(t)
	ledger := audit.NewLedger(f.DB, 10, 20)

	res, err := ledger.Query(context.Background(), audit.Filter{PageSize: 500, Page: -3})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.PageSize != 20 || res.Page != 1 {
		t.Errorf("clamped to page %d size %d, want 1/20", res.Page, res.PageSize)
	}
	if res.Entries == nil {
		t.Error("Entries should be an empty slice, not nil")
	}

	res, err = ledger.Query(context.Background(), audit.Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.PageSize != 10 {
		t.Errorf("default page size = %d, want 10", res.PageSize)
	}
}

func TestLedger_AppendRollsBackWithTransaction(t *testing.T) {
	ledger, f := newLedger(t)
	ctx := context.Background()

	errAbort := context.Canceled
	err := f.DB.WithTx(ctx, func(q database.Querier) error {
		if err := ledger.WithTx(q).Append(ctx, &audit.Entry{Action: audit.ActionVerify}); err != nil {
			return err
		}
		return errAbort
	})
	if err != errAbort {
		t.Fatalf("WithTx() error = %v", err)
	}

	res, err := ledger.Query(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if res.Total != 0 {
		t.Errorf("rolled back append left %d rows", res.Total)
	}
}
