package types

import (
	"strings"
	"time"
)

// Role is the authorization level of an account.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Roles lists every known role in display order.
var Roles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

// ParseRole normalises a role name, accepting any case.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

func (r Role) String() string {
	return string(r)
}

// User represents an account in the system.
// It contains identity, role, profile and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the unique login of the user. It never changes after registration.
	Email string `json:"email" db:"email"`

	// Name and LastName make up the display name.
	Name     string `json:"name" db:"name"`
	LastName string `json:"last_name" db:"last_name"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// Active is false for deactivated accounts, which cannot log in.
	Active bool `json:"active" db:"active"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Bio is an optional free-text profile description.
	Bio string `json:"bio,omitempty" db:"bio"`

	// AvatarPath is the storage key of the profile photo, if any.
	AvatarPath string `json:"avatar_path,omitempty" db:"avatar_path"`

	// FavoriteSubjectID references the user's favorite subject, if any.
	FavoriteSubjectID *int `json:"favorite_subject_id,omitempty" db:"favorite_subject_id"`

	// RegisteredAt is the timestamp when the user account was created.
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName joins the name parts for display.
func (u User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.LastName)
}

// RoleCounts aggregates accounts per role.
type RoleCounts struct {
	Students int `json:"students"`
	Teachers int `json:"teachers"`
	Admins   int `json:"admins"`
	Total    int `json:"total"`
}

// ProfileChanges lists the profile columns to overwrite. Nil fields keep their
// stored value; ClearFavorite removes the favorite subject.
type ProfileChanges struct {
	Name              *string
	LastName          *string
	Bio               *string
	FavoriteSubjectID *int
	ClearFavorite     bool
}
