package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// MemoryDirectory is an in-process Directory, seeded from a JSON file or via Put.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryDirectory constructs a directory holding users.
func NewMemoryDirectory(users ...User) (*MemoryDirectory, error) {
	d := &MemoryDirectory{users: make(map[string]User, len(users))}
	for _, u := range users {
		if err := d.Put(u); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// LoadMemoryDirectory reads a JSON array of users from path.
func LoadMemoryDirectory(path string) (*MemoryDirectory, error) {
	users, err := ReadSeed(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryDirectory(users...)
}

// ReadSeed decodes a JSON array of users. Entries are not validated here.
func ReadSeed(path string) ([]User, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory seed: %w", err)
	}
	var users []User
	if err := json.Unmarshal(b, &users); err != nil {
		return nil, fmt.Errorf("directory seed %s: %w", path, err)
	}
	return users, nil
}

// Put inserts or replaces a user.
func (d *MemoryDirectory) Put(u User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Specialization = strings.TrimSpace(u.Specialization)
	if role, ok := ParseRole(string(u.Role)); ok {
		u.Role = role
	}
	if err := u.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
	return nil
}

func (d *MemoryDirectory) Get(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (d *MemoryDirectory) Lookup(ctx context.Context, ids []string) (map[string]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]User, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (d *MemoryDirectory) FindSpecialist(ctx context.Context, specialization string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(specialization) == "" {
		return User{}, ErrInvalidInput
	}

	d.mu.RLock()
	matches := make([]User, 0, 4)
	for _, u := range d.users {
		if u.Role.IsProvider() && matchesSpecialization(u.Specialization, specialization) {
			matches = append(matches, u)
		}
	}
	d.mu.RUnlock()

	if len(matches) == 0 {
		return User{}, ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	return matches[0], nil
}
