package models

import "time"

// App access modes. Mode "none" is reachable by nobody at the gateway,
// including admins; admin catalog visibility is a separate concern.
const (
	AccessPublic = "public"
	AccessGroups = "groups"
	AccessNone   = "none"
)

// App represents a registered protected application.
type App struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Port        int       `json:"port"`
	AccessMode  string    `json:"access_mode"` // public, groups, none
	Groups      []string  `json:"groups,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidAccessMode reports whether mode is one of the recognized access modes.
func ValidAccessMode(mode string) bool {
	switch mode {
	case AccessPublic, AccessGroups, AccessNone:
		return true
	}
	return false
}

// CatalogEntry is an app plus its probed runtime state, as shown on the
// portal dashboard.
type CatalogEntry struct {
	App
	Running bool `json:"running"`
}
