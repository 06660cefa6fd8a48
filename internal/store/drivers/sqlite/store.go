package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/graphconnect/internal/store"
	"github.com/aussiebroadwan/graphconnect/pkg/cryptox"
	"github.com/aussiebroadwan/graphconnect/pkg/graphsdk"
	_ "modernc.org/sqlite"
)

// Store keeps credentials in a SQLite file. Tokens are sealed when a
// Sealer is supplied.
type Store struct {
	db     *sql.DB
	sealer *cryptox.Sealer
}

var (
	_ store.Credentials = (*Store)(nil)
	_ store.Pinger      = (*Store)(nil)
)

func NewStore(dsn string, sealer *cryptox.Sealer) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer at a time; SQLite serialises anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, sealer: sealer}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Load(ctx context.Context, key string) (graphsdk.Credentials, error) {
	var (
		token       []byte
		expiresAt   sql.NullInt64
		permissions string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, expires_at, permissions FROM credentials WHERE app_key = ?`, key,
	).Scan(&token, &expiresAt, &permissions)
	if err != nil {
		return graphsdk.Credentials{}, mapNotFound(err)
	}

	if s.sealer != nil {
		token, err = s.sealer.Open(token)
		if err != nil {
			return graphsdk.Credentials{}, err
		}
	}

	return graphsdk.Credentials{
		AccessToken: string(token),
		ExpiresAt:   mapNullUnix(expiresAt),
		Permissions: splitAndFilter(permissions),
	}, nil
}

func (s *Store) Save(ctx context.Context, key string, c graphsdk.Credentials) error {
	if c.AccessToken == "" {
		return s.Delete(ctx, key)
	}

	token := []byte(c.AccessToken)
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(token)
		if err != nil {
			return err
		}
		token = sealed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (app_key, token, expires_at, permissions, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(app_key) DO UPDATE SET
			token = excluded.token,
			expires_at = excluded.expires_at,
			permissions = excluded.permissions,
			updated_at = excluded.updated_at`,
		key, token, mapUnixNull(c.ExpiresAt), strings.Join(c.Permissions, " "), time.Now().Unix(),
	)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE app_key = ?`, key)
	return err
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapNullUnix(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(n.Int64, 0)
}

func mapUnixNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func splitAndFilter(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
