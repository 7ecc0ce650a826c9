package types

// Subject is a catalog entry ("materia") grouping resources.
type Subject struct {
	ID          int    `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Icon        string `json:"icon" db:"icon"`
	Active      bool   `json:"active" db:"active"`

	// ResourceCount is the number of active resources in the subject.
	ResourceCount int `json:"resource_count" db:"-"`
}
