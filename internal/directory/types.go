package directory

import "errors"

// Sentinel errors.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrBuildingNotFound = errors.New("building not found")
	ErrIntercomNotFound = errors.New("intercom not found")
	ErrTenantNotFound   = errors.New("tenant not found")
)

// PropertyManagerTypeCode identifies the user type of a Property Manager.
const PropertyManagerTypeCode = "property_manager"

// maxCreatorDepth bounds the creator-chain walk. Real chains are a handful
// of links long; anything deeper is corrupt data.
const maxCreatorDepth = 64

// UserType is a platform user category carrying the data visibility setting.
type UserType struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Code string `json:"code" yaml:"code"`

	// DataAccessControl is ALL, OWN, PM or empty.
	DataAccessControl string `json:"dataAccessControl,omitempty" yaml:"data_access_control"`
}

// User is a platform account as seen by the access core.
type User struct {
	ID          int64  `json:"id" yaml:"id"`
	Username    string `json:"username" yaml:"username"`
	DisplayName string `json:"displayName" yaml:"display_name"`
	UserTypeID  *int64 `json:"userTypeId,omitempty" yaml:"user_type_id"`
	CreatedBy   *int64 `json:"createdBy,omitempty" yaml:"created_by"`

	// Joined from user_types; empty when the user has no type.
	UserTypeCode      string `json:"userTypeCode,omitempty" yaml:"-"`
	DataAccessControl string `json:"dataAccessControl,omitempty" yaml:"-"`
}

// IsPropertyManager reports whether the user's type is the Property Manager type.
func (u *User) IsPropertyManager() bool {
	return u.UserTypeCode == PropertyManagerTypeCode
}

// Building is a managed property.
type Building struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// CustomerID is the owning Property Manager.
	CustomerID *int64 `json:"customerId,omitempty" yaml:"customer_id"`
	CreatedBy  *int64 `json:"createdBy,omitempty" yaml:"created_by"`
}

// Intercom is a door device installed in a building.
type Intercom struct {
	ID         int64  `json:"id" yaml:"id"`
	BuildingID int64  `json:"buildingId" yaml:"building_id"`
	Name       string `json:"name" yaml:"name"`
}

// Tenant links a user to the building they live in.
type Tenant struct {
	ID         int64  `json:"id" yaml:"id"`
	UserID     int64  `json:"userId" yaml:"user_id"`
	BuildingID int64  `json:"buildingId" yaml:"building_id"`
	Unit       string `json:"unit,omitempty" yaml:"unit"`
}

// BuildingPermission grants a user explicit access to a building.
type BuildingPermission struct {
	UserID     int64 `yaml:"user_id"`
	BuildingID int64 `yaml:"building_id"`
}
