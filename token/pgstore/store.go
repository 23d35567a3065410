package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	interrors "github.com/jrsteele09/go-ledger-sync/internal/errors"
	"github.com/jrsteele09/go-ledger-sync/token"
)

// Schema creates the table backing Store.
const Schema = `CREATE TABLE IF NOT EXISTS integration_tokens (
	connection_key TEXT PRIMARY KEY,
	access_token   TEXT NOT NULL,
	refresh_token  TEXT NOT NULL,
	id_token       TEXT NOT NULL DEFAULT '',
	expires_at     TIMESTAMPTZ,
	tenant_scope   TEXT[] NOT NULL DEFAULT '{}',
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ token.Store = (*Store)(nil)

// Store keeps one token record per connection key in Postgres, so a restart can resume a connection.
type Store struct {
	db  DB
	key string
}

func New(db DB, connectionKey string) *Store {
	return &Store{db: db, key: connectionKey}
}

// Migrate creates the backing table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("[pgstore.Migrate] %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context) (*token.Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT access_token, refresh_token, id_token, expires_at, tenant_scope
		 FROM integration_tokens
		 WHERE connection_key = $1`,
		s.key)

	var r token.Record
	var expiresAt *time.Time
	if err := row.Scan(&r.AccessToken, &r.RefreshToken, &r.IDToken, &expiresAt, &r.TenantScope); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interrors.ErrTokenNotFound
		}
		return nil, fmt.Errorf("[pgstore.Get] %w", err)
	}
	if expiresAt != nil {
		r.ExpiresAt = *expiresAt
	}
	return &r, nil
}

func (s *Store) Set(ctx context.Context, record *token.Record) error {
	if record == nil || record.AccessToken == "" {
		return interrors.ErrInvalidTokenRecord
	}
	var expiresAt any
	if !record.ExpiresAt.IsZero() {
		expiresAt = record.ExpiresAt
	}
	scope := record.TenantScope
	if scope == nil {
		scope = []string{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO integration_tokens (connection_key, access_token, refresh_token, id_token, expires_at, tenant_scope, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (connection_key) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   id_token = EXCLUDED.id_token,
		   expires_at = EXCLUDED.expires_at,
		   tenant_scope = EXCLUDED.tenant_scope,
		   updated_at = NOW()`,
		s.key, record.AccessToken, record.RefreshToken, record.IDToken, expiresAt, scope,
	)
	if err != nil {
		return fmt.Errorf("[pgstore.Set] %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM integration_tokens WHERE connection_key = $1", s.key); err != nil {
		return fmt.Errorf("[pgstore.Clear] %w", err)
	}
	return nil
}
