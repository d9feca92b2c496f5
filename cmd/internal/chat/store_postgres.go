package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Anix003/aura-seer/cmd/internal/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
// - Appends take a per-room transactional advisory lock so timestamps are
//   strictly increasing within a room under concurrent writers.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	now    func() time.Time
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "aura").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !IsValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed MessageStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "aura",
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Ping checks that a connection can be acquired.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}
	return s.pool.Ping(ctx)
}

// Migrate creates the schema, table and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	messages := PGIdent(s.schema, "messages")
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{s.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + messages + ` (
		     id          text PRIMARY KEY,
		     room_id     text NOT NULL,
		     sender_id   text NOT NULL,
		     receiver_id text NOT NULL,
		     body        text NOT NULL CHECK (char_length(body) BETWEEN 1 AND 1000),
		     ts          timestamptz NOT NULL,
		     seen        boolean NOT NULL DEFAULT false
		   )`,
		`CREATE INDEX IF NOT EXISTS messages_room_ts_idx ON ` + messages + ` (room_id, ts, id)`,
		`CREATE INDEX IF NOT EXISTS messages_receiver_unseen_idx ON ` + messages + ` (receiver_id) WHERE NOT seen`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("chat migrate: %w", err)
		}
	}
	return nil
}

// Append inserts a message with a strictly increasing per-room timestamp.
func (s *PostgresStore) Append(ctx context.Context, in AppendInput) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("chat: nil store")
	}
	in, err := NormalizeAppend("chat.PostgresStore.Append", in)
	if err != nil {
		return Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	messages := PGIdent(s.schema, "messages")

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, in.RoomID); err != nil {
		return Message{}, fmt.Errorf("advisory lock: %w", err)
	}

	var last *time.Time
	if err := tx.QueryRow(ctx,
		`SELECT max(ts) FROM `+messages+` WHERE room_id = $1`,
		in.RoomID,
	).Scan(&last); err != nil {
		return Message{}, err
	}

	var prev time.Time
	if last != nil {
		prev = last.UTC()
	}
	ts := nextTimestamp(s.now().UTC(), prev, time.Microsecond)

	id, err := ids.NewULID(ts)
	if err != nil {
		return Message{}, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+messages+` (id, room_id, sender_id, receiver_id, body, ts, seen)
		 VALUES ($1, $2, $3, $4, $5, $6, false)`,
		id, in.RoomID, in.SenderID, in.ReceiverID, in.Body, ts,
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	return Message{
		ID:         id,
		RoomID:     in.RoomID,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Body:       in.Body,
		Timestamp:  ts,
	}, nil
}

// ListSince returns messages ordered by (ts, id) ASC after the optional cursor.
func (s *PostgresStore) ListSince(ctx context.Context, in ListInput) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if in.RoomID == "" {
		return nil, errors.New("chat: missing room id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := ClampLimit(in.Limit, DefaultPollLimit)

	var (
		afterTS   *time.Time
		afterID   string
		notBefore *time.Time
	)
	if in.After != nil {
		t := in.After.Timestamp.UTC()
		afterTS = &t
		afterID = in.After.ID
	}
	if !in.NotBefore.IsZero() {
		t := in.NotBefore.UTC()
		notBefore = &t
	}

	messages := PGIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT id, room_id, sender_id, receiver_id, body, ts, seen
		   FROM `+messages+`
		  WHERE room_id = $1
		    AND ($2::timestamptz IS NULL OR (ts, id) > ($2::timestamptz, $3::text))
		    AND ($4::timestamptz IS NULL OR ts >= $4::timestamptz)
		  ORDER BY ts ASC, id ASC
		  LIMIT $5`,
		in.RoomID, afterTS, afterID, notBefore, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a message by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("chat: nil store")
	}
	if !ids.IsULID(id) {
		return Message{}, opErr("chat.PostgresStore.Get", ErrNotFound, "message not found")
	}

	messages := PGIdent(s.schema, "messages")
	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT id, room_id, sender_id, receiver_id, body, ts, seen
		   FROM `+messages+`
		  WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, opErr("chat.PostgresStore.Get", ErrNotFound, "message not found")
	}
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// MarkSeen sets seen=true for the given ids and reports how many rows changed.
func (s *PostgresStore) MarkSeen(ctx context.Context, msgIDs []string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("chat: nil store")
	}
	msgIDs = dedupeIDs(msgIDs)
	if len(msgIDs) == 0 {
		return 0, nil
	}

	messages := PGIdent(s.schema, "messages")
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+messages+` SET seen = true WHERE id = ANY($1) AND NOT seen`,
		msgIDs,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.ReceiverID, &m.Body, &m.Timestamp, &m.Seen); err != nil {
		return Message{}, err
	}
	m.Timestamp = m.Timestamp.UTC()
	return m, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsValidPGIdent reports whether s is a plain SQL identifier.
func IsValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

// PGIdent returns a quoted schema-qualified table name.
func PGIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
