// Package directory resolves the user records the chat core needs: display
// data for message views and the specialist lookup behind POST /chats/start.
// User management itself is owned by an external service.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role is a user's role in the clinic.
type Role string

const (
	RolePatient   Role = "patient"
	RoleDoctor    Role = "doctor"
	RoleClinician Role = "clinician"
)

// ParseRole normalizes s into a known Role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	case RoleClinician:
		return RoleClinician, true
	default:
		return "", false
	}
}

// IsProvider reports whether r can be matched by specialization.
func (r Role) IsProvider() bool { return r == RoleDoctor || r == RoleClinician }

// User is the read-only projection of a user record.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	Specialization string    `json:"specialization,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Sentinel errors.
var (
	ErrNotFound     = errors.New("directory: not found")
	ErrInvalidInput = errors.New("directory: invalid input")
)

// Directory looks up users.
type Directory interface {
	// Get returns one user or ErrNotFound.
	Get(ctx context.Context, id string) (User, error)

	// Lookup returns the users it knows among ids, keyed by id. Unknown ids are omitted.
	Lookup(ctx context.Context, ids []string) (map[string]User, error)

	// FindSpecialist returns the oldest doctor or clinician whose specialization
	// contains specialization (case-insensitive), or ErrNotFound.
	FindSpecialist(ctx context.Context, specialization string) (User, error)
}

// Validate checks the invariants enforced on stored users.
func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.Join(ErrInvalidInput, errors.New("id required"))
	}
	name := strings.TrimSpace(u.Name)
	if name == "" || len([]rune(name)) > 50 {
		return errors.Join(ErrInvalidInput, errors.New("name must be 1..50 characters"))
	}
	if _, ok := ParseRole(string(u.Role)); !ok {
		return errors.Join(ErrInvalidInput, errors.New("role must be either doctor, clinician, or patient"))
	}
	if u.Role.IsProvider() && strings.TrimSpace(u.Specialization) == "" {
		return errors.Join(ErrInvalidInput, errors.New("specialization required for doctor and clinician"))
	}
	if len([]rune(u.Specialization)) > 100 {
		return errors.Join(ErrInvalidInput, errors.New("specialization cannot exceed 100 characters"))
	}
	return nil
}

func matchesSpecialization(have, want string) bool {
	return strings.Contains(strings.ToLower(have), strings.ToLower(strings.TrimSpace(want)))
}
