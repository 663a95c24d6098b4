package directory

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
)

// Seed is a provisioning snapshot of directory records. Records are
// inserted in field order so references resolve.
type Seed struct {
	UserTypes   []UserType           `yaml:"user_types"`
	Users       []User               `yaml:"users"`
	Buildings   []Building           `yaml:"buildings"`
	Intercoms   []Intercom           `yaml:"intercoms"`
	Tenants     []Tenant             `yaml:"tenants"`
	Permissions []BuildingPermission `yaml:"building_permissions"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return &s, nil
}

// Apply inserts every record of the seed in one transaction.
func (s *Seed) Apply(ctx context.Context, db *database.DB) error {
	return db.WithTx(ctx, func(q database.Querier) error {
		w := NewWriter(q)
		for i := range s.UserTypes {
			if err := w.CreateUserType(ctx, &s.UserTypes[i]); err != nil {
				return err
			}
		}
		for i := range s.Users {
			if err := w.CreateUser(ctx, &s.Users[i]); err != nil {
				return err
			}
		}
		for i := range s.Buildings {
			if err := w.CreateBuilding(ctx, &s.Buildings[i]); err != nil {
				return err
			}
		}
		for i := range s.Intercoms {
			if err := w.CreateIntercom(ctx, &s.Intercoms[i]); err != nil {
				return err
			}
		}
		for i := range s.Tenants {
			if err := w.CreateTenant(ctx, &s.Tenants[i]); err != nil {
				return err
			}
		}
		for _, p := range s.Permissions {
			if err := w.GrantBuilding(ctx, p.UserID, p.BuildingID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Writer provisions directory records. A zero ID lets SQLite assign one;
// the assigned id is written back.
type Writer struct {
	q database.Querier
}

// NewWriter creates a Writer over q.
func NewWriter(q database.Querier) *Writer {
	return &Writer{q: q}
}

// CreateUserType inserts a user type.
func (w *Writer) CreateUserType(ctx context.Context, t *UserType) error {
	var dac any
	if t.DataAccessControl != "" {
		dac = t.DataAccessControl
	}
	id, err := w.insert(ctx, "creating user type",
		"INSERT INTO user_types (id, name, code, data_access_control) VALUES (?, ?, ?, ?)",
		zeroAsNull(t.ID), t.Name, t.Code, dac)
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// CreateUser inserts a user.
func (w *Writer) CreateUser(ctx context.Context, u *User) error {
	id, err := w.insert(ctx, "creating user",
		`INSERT INTO users (id, username, display_name, user_type_id, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		zeroAsNull(u.ID), u.Username, u.DisplayName, nullInt64(u.UserTypeID), nullInt64(u.CreatedBy),
		database.FormatTime(time.Now()))
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// CreateBuilding inserts a building.
func (w *Writer) CreateBuilding(ctx context.Context, b *Building) error {
	id, err := w.insert(ctx, "creating building",
		"INSERT INTO buildings (id, name, customer_id, created_by, created_at) VALUES (?, ?, ?, ?, ?)",
		zeroAsNull(b.ID), b.Name, nullInt64(b.CustomerID), nullInt64(b.CreatedBy),
		database.FormatTime(time.Now()))
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

// CreateIntercom inserts an intercom.
func (w *Writer) CreateIntercom(ctx context.Context, ic *Intercom) error {
	id, err := w.insert(ctx, "creating intercom",
		"INSERT INTO intercoms (id, building_id, name) VALUES (?, ?, ?)",
		zeroAsNull(ic.ID), ic.BuildingID, ic.Name)
	if err != nil {
		return err
	}
	ic.ID = id
	return nil
}

// CreateTenant inserts a tenant.
func (w *Writer) CreateTenant(ctx context.Context, t *Tenant) error {
	id, err := w.insert(ctx, "creating tenant",
		"INSERT INTO tenants (id, user_id, building_id, unit) VALUES (?, ?, ?, ?)",
		zeroAsNull(t.ID), t.UserID, t.BuildingID, t.Unit)
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// GrantBuilding gives userID explicit access to buildingID. Granting twice is a no-op.
func (w *Writer) GrantBuilding(ctx context.Context, userID, buildingID int64) error {
	_, err := w.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO building_permissions (user_id, building_id) VALUES (?, ?)",
		userID, buildingID)
	if err != nil {
		return fmt.Errorf("granting building: %w", err)
	}
	return nil
}

func (w *Writer) insert(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := w.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func zeroAsNull(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
