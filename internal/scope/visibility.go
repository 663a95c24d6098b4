package scope

import (
	"slices"
	"strings"
)

// Mode is a user type's data access setting.
type Mode string

const (
	ModeAll Mode = "ALL"
	ModeOwn Mode = "OWN"
	ModePM  Mode = "PM"
)

// ParseMode maps a stored setting to a Mode. Missing or unrecognised
// settings mean ALL.
func ParseMode(s string) Mode {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeOwn:
		return ModeOwn
	case ModePM:
		return ModePM
	default:
		return ModeAll
	}
}

// Owned is implemented by every record that has a creator.
type Owned interface {
	OwnerID() int64
}

// Visibility is the resolved predicate for one user. A nil member list means
// unrestricted; an empty one means nothing is visible.
type Visibility struct {
	Mode    Mode
	UserID  int64
	members []int64
}

// Unrestricted returns a visibility that allows everything.
func Unrestricted() Visibility {
	return Visibility{Mode: ModeAll}
}

// Restricted returns a visibility limited to records owned by members.
func Restricted(mode Mode, userID int64, members []int64) Visibility {
	m := slices.Clone(members)
	if m == nil {
		m = []int64{}
	}
	slices.Sort(m)
	return Visibility{Mode: mode, UserID: userID, members: slices.Compact(m)}
}

// IsUnrestricted reports whether every record is visible.
func (v Visibility) IsUnrestricted() bool {
	return v.members == nil
}

// Members returns the owner ids that are visible, or nil when unrestricted.
func (v Visibility) Members() []int64 {
	return slices.Clone(v.members)
}

// Allows reports whether a record created by ownerID is visible.
func (v Visibility) Allows(ownerID int64) bool {
	if v.members == nil {
		return true
	}
	_, found := slices.BinarySearch(v.members, ownerID)
	return found
}

// SQL returns a WHERE fragment restricting column to the visible owners.
func (v Visibility) SQL(column string) (string, []any) {
	if v.members == nil {
		return "1 = 1", nil
	}
	if len(v.members) == 0 {
		return "1 = 0", nil
	}
	args := make([]any, len(v.members))
	for i, id := range v.members {
		args[i] = id
	}
	return column + " IN (" + placeholders(len(v.members)) + ")", args
}

// Filter returns the items v allows, preserving order.
func Filter[T Owned](v Visibility, items []T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if v.Allows(item.OwnerID()) {
			out = append(out, item)
		}
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
