package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func seedUsers() []User {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return []User{
		{ID: "p1", Name: "Pat", Role: RolePatient, CreatedAt: base},
		{ID: "d2", Name: "Dr. Late", Role: RoleDoctor, Specialization: "Cardiology", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "d1", Name: "Dr. Early", Role: RoleClinician, Specialization: "Pediatric Cardiology", CreatedAt: base.Add(time.Hour)},
		{ID: "d3", Name: "Dr. Skin", Role: RoleDoctor, Specialization: "Dermatology", CreatedAt: base},
	}
}

func TestMemoryDirectory_FindSpecialist(t *testing.T) {
	t.Parallel()

	d, err := NewMemoryDirectory(seedUsers()...)
	if err != nil {
		t.Fatalf("NewMemoryDirectory: %v", err)
	}

	cases := []struct {
		name    string
		spec    string
		wantID  string
		wantErr error
	}{
		{name: "oldest match wins", spec: "cardio", wantID: "d1"},
		{name: "case insensitive", spec: "DERMATOLOGY", wantID: "d3"},
		{name: "patients never match", spec: "pat", wantErr: ErrNotFound},
		{name: "no specialist", spec: "Neurology", wantErr: ErrNotFound},
		{name: "blank", spec: "   ", wantErr: ErrInvalidInput},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			u, err := d.FindSpecialist(context.Background(), tc.spec)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err=%v want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindSpecialist: %v", err)
			}
			if u.ID != tc.wantID {
				t.Fatalf("id=%q want %q", u.ID, tc.wantID)
			}
		})
	}
}

func TestMemoryDirectory_LookupOmitsUnknown(t *testing.T) {
	t.Parallel()

	d, err := NewMemoryDirectory(seedUsers()...)
	if err != nil {
		t.Fatalf("NewMemoryDirectory: %v", err)
	}

	got, err := d.Lookup(context.Background(), []string{"p1", "nobody", "d3"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want 2 (%v)", len(got), got)
	}
	if got["p1"].Name != "Pat" || got["d3"].Role != RoleDoctor {
		t.Fatalf("unexpected users: %+v", got)
	}

	if _, err := d.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get unknown err=%v want ErrNotFound", err)
	}
}

func TestUserValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		u    User
		ok   bool
	}{
		{name: "patient", u: User{ID: "1", Name: "A", Role: RolePatient}, ok: true},
		{name: "doctor needs specialization", u: User{ID: "1", Name: "A", Role: RoleDoctor}},
		{name: "unknown role", u: User{ID: "1", Name: "A", Role: "nurse"}},
		{name: "long name", u: User{ID: "1", Name: string(make([]rune, 51)), Role: RolePatient}},
		{name: "missing id", u: User{Name: "A", Role: RolePatient}},
	}
	for _, tc := range cases {
		err := tc.u.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected err %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: err=%v want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestLoadMemoryDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "users.json")
	seed := `[
	  {"id":"p1","name":"Pat","role":"Patient"},
	  {"id":"d1","name":"Dr. Who","role":"doctor","specialization":"General Practice","createdAt":"2025-01-01T00:00:00Z"}
	]`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	d, err := LoadMemoryDirectory(path)
	if err != nil {
		t.Fatalf("LoadMemoryDirectory: %v", err)
	}
	u, err := d.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.Role != RolePatient {
		t.Fatalf("role=%q want normalized patient", u.Role)
	}
	if _, err := d.FindSpecialist(context.Background(), "general"); err != nil {
		t.Fatalf("FindSpecialist: %v", err)
	}
}
