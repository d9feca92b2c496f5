package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads users from <schema>.users.
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresDirectory behavior.
type PostgresOption func(*PostgresDirectory) error

// WithSchema sets the DB schema used by the directory (default: "aura").
func WithSchema(schema string) PostgresOption {
	return func(d *PostgresDirectory) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("directory: empty schema")
		}
		if !pgIdentRE.MatchString(schema) {
			return errors.New("directory: invalid schema identifier")
		}
		d.schema = schema
		return nil
	}
}

// NewPostgresDirectory constructs a directory backed by PostgreSQL.
func NewPostgresDirectory(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{
		pool:   pool,
		schema: "aura",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, errors.New("directory: nil pool")
	}
	return d, nil
}

// Migrate creates the users table if it does not exist.
func (d *PostgresDirectory) Migrate(ctx context.Context) error {
	users := d.table()
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{d.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + users + ` (
		     id             text PRIMARY KEY,
		     name           text NOT NULL CHECK (char_length(name) BETWEEN 1 AND 50),
		     role           text NOT NULL CHECK (role IN ('patient', 'doctor', 'clinician')),
		     specialization text NOT NULL DEFAULT '',
		     created_at     timestamptz NOT NULL DEFAULT now()
		   )`,
		`CREATE INDEX IF NOT EXISTS users_role_created_idx ON ` + users + ` (role, created_at)`,
	}
	for _, q := range stmts {
		if _, err := d.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("directory migrate: %w", err)
		}
	}
	return nil
}

// Upsert inserts or updates a user row.
func (d *PostgresDirectory) Upsert(ctx context.Context, u User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := d.pool.Exec(ctx,
		`INSERT INTO `+d.table()+` (id, name, role, specialization, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, now()))
		 ON CONFLICT (id) DO UPDATE
		    SET name = EXCLUDED.name, role = EXCLUDED.role, specialization = EXCLUDED.specialization`,
		u.ID, strings.TrimSpace(u.Name), string(u.Role), strings.TrimSpace(u.Specialization), nullTime(u),
	)
	return err
}

func (d *PostgresDirectory) Get(ctx context.Context, id string) (User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx,
		`SELECT id, name, role, specialization, created_at FROM `+d.table()+` WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (d *PostgresDirectory) Lookup(ctx context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := d.pool.Query(ctx,
		`SELECT id, name, role, specialization, created_at FROM `+d.table()+` WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (d *PostgresDirectory) FindSpecialist(ctx context.Context, specialization string) (User, error) {
	specialization = strings.TrimSpace(specialization)
	if specialization == "" {
		return User{}, ErrInvalidInput
	}

	u, err := scanUser(d.pool.QueryRow(ctx,
		`SELECT id, name, role, specialization, created_at
		   FROM `+d.table()+`
		  WHERE role IN ('doctor', 'clinician')
		    AND strpos(lower(specialization), lower($1)) > 0
		  ORDER BY created_at ASC, id ASC
		  LIMIT 1`,
		specialization,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (d *PostgresDirectory) table() string {
	return pgx.Identifier{d.schema, "users"}.Sanitize()
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &role, &u.Specialization, &u.CreatedAt); err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func nullTime(u User) any {
	if u.CreatedAt.IsZero() {
		return nil
	}
	return u.CreatedAt.UTC()
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
