package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(context.Background(), Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "test.db")})
		if err == nil {
			t.Fatal("Open() with cancelled context should fail")
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE tx_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	t.Run("commits on nil", func(t *testing.T) {
		err := db.WithTx(ctx, func(q Querier) error {
			_, err := q.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "committed")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
		if n := countRows(t, db, "committed"); n != 1 {
			t.Errorf("expected 1 committed row, got %d", n)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(q Querier) error {
			if _, err := q.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "rolled_back"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx() error = %v, want %v", err, boom)
		}
		if n := countRows(t, db, "rolled_back"); n != 0 {
			t.Errorf("expected 0 rolled back rows, got %d", n)
		}
	})
}

func TestStats(t *testing.T) {
	db := openTestDB(t)

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %v, want 1 (SQLite single writer)", got)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 1, 9, 30, 0, 123456000, time.FixedZone("X", 3600))
	s := FormatTime(in)
	if s != "2026-03-01T08:30:00.123456Z" {
		t.Errorf("FormatTime() = %q", s)
	}
	out, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime() error = %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("ParseTime() = %v, want %v", out, in)
	}

	// Lexical order must match time order across second boundaries.
	a := FormatTime(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	b := FormatTime(time.Date(2026, 1, 1, 0, 0, 0, 999999000, time.UTC))
	if !(b < a) {
		t.Errorf("expected %q < %q", b, a)
	}
}

func TestNullTime(t *testing.T) {
	if ns := NullTime(nil); ns.Valid {
		t.Error("NullTime(nil) should be invalid")
	}
	got, err := ParseNullTime(sql.NullString{})
	if err != nil || got != nil {
		t.Errorf("ParseNullTime(null) = %v, %v", got, err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	got, err = ParseNullTime(NullTime(&now))
	if err != nil {
		t.Fatalf("ParseNullTime() error = %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("ParseNullTime() = %v, want %v", got, now)
	}
}

func countRows(t *testing.T, db *DB, value string) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM tx_test WHERE value = ?", value).Scan(&count); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	return count
}

// openTestDB creates a temporary database for testing.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}
