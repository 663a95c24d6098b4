// Package testutil builds migrated SQLite databases and directory fixtures
// for package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nerrad567/intercom-access/internal/directory"
	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
	_ "github.com/nerrad567/intercom-access/migrations" // registers the embedded schema
)

// OpenDB opens a temporary database with every migration applied.
func OpenDB(t testing.TB) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "intercom-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

// Fixture inserts directory records, failing the test on any error.
type Fixture struct {
	t  testing.TB
	DB *database.DB
	w  *directory.Writer
	n  int
}

// NewFixture opens a fresh database and returns a fixture over it.
func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	db := OpenDB(t)
	return &Fixture{t: t, DB: db, w: directory.NewWriter(db)}
}

// UserType creates a user type with the given code and data access setting.
func (f *Fixture) UserType(code, dataAccess string) int64 {
	f.t.Helper()
	ut := &directory.UserType{Name: code, Code: code, DataAccessControl: dataAccess}
	if err := f.w.CreateUserType(context.Background(), ut); err != nil {
		f.t.Fatalf("creating user type %q: %v", code, err)
	}
	return ut.ID
}

// User creates a user. Zero typeID or createdBy are stored as NULL.
func (f *Fixture) User(typeID, createdBy int64) int64 {
	f.t.Helper()
	f.n++
	u := &directory.User{Username: fmt.Sprintf("user%d", f.n), UserTypeID: ptr(typeID), CreatedBy: ptr(createdBy)}
	if err := f.w.CreateUser(context.Background(), u); err != nil {
		f.t.Fatalf("creating user: %v", err)
	}
	return u.ID
}

// Building creates a building. Zero customerID or createdBy are stored as NULL.
func (f *Fixture) Building(customerID, createdBy int64) int64 {
	f.t.Helper()
	f.n++
	b := &directory.Building{Name: fmt.Sprintf("building%d", f.n), CustomerID: ptr(customerID), CreatedBy: ptr(createdBy)}
	if err := f.w.CreateBuilding(context.Background(), b); err != nil {
		f.t.Fatalf("creating building: %v", err)
	}
	return b.ID
}

// Intercom creates an intercom in buildingID.
func (f *Fixture) Intercom(buildingID int64) int64 {
	f.t.Helper()
	ic := &directory.Intercom{BuildingID: buildingID, Name: "door"}
	if err := f.w.CreateIntercom(context.Background(), ic); err != nil {
		f.t.Fatalf("creating intercom: %v", err)
	}
	return ic.ID
}

// Tenant registers userID as a tenant of buildingID.
func (f *Fixture) Tenant(userID, buildingID int64) int64 {
	f.t.Helper()
	tn := &directory.Tenant{UserID: userID, BuildingID: buildingID}
	if err := f.w.CreateTenant(context.Background(), tn); err != nil {
		f.t.Fatalf("creating tenant: %v", err)
	}
	return tn.ID
}

// Grant gives userID explicit permission on buildingID.
func (f *Fixture) Grant(userID, buildingID int64) {
	f.t.Helper()
	if err := f.w.GrantBuilding(context.Background(), userID, buildingID); err != nil {
		f.t.Fatalf("granting building: %v", err)
	}
}

func ptr(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
