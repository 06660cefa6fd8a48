package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/graphconnect/pkg/graphsdk"
)

var ErrNotFound = errors.New("store: not found")

// Credentials persists session credentials per app key. Drivers (sqlite,
// keyring, redis) implement this. The session core never touches disk
// itself; Bind connects the two.
type Credentials interface {
	// Load returns the stored credentials for key or ErrNotFound.
	Load(ctx context.Context, key string) (graphsdk.Credentials, error)

	// Save replaces the credentials for key. Saving credentials without a
	// token is equivalent to Delete.
	Save(ctx context.Context, key string, c graphsdk.Credentials) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any underlying resources.
	Close() error
}

// Pinger is implemented by stores that hold a connection which can fail
// independently of any single call.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Key returns the storage key for a session: its redirect scheme, which is
// unique per app id and local app id.
func Key(s *graphsdk.Session) string {
	return s.RedirectScheme()
}

// Bind restores s from cs and keeps cs in sync with every later change.
// A store implementing Pinger is checked first.
// Expired credentials found at startup are discarded. Save failures after
// binding are logged, not returned, since they happen inside callbacks.
func Bind(ctx context.Context, s *graphsdk.Session, cs Credentials, logger *slog.Logger) error {
	if p, ok := cs.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("store unreachable: %w", err)
		}
	}
	key := Key(s)

	creds, err := cs.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	case creds.AccessToken != "" && !creds.Valid(time.Now()):
		logger.Info("stored credentials expired, discarding", "key", key)
		if err := cs.Delete(ctx, key); err != nil {
			return err
		}
	default:
		s.Restore(creds)
		logger.Debug("credentials restored", "key", key, "expires_at", creds.ExpiresAt)
	}

	s.OnChange(func(c graphsdk.Credentials) {
		// Detached from ctx: the bind context is usually gone by the time
		// a login or logout lands.
		if err := cs.Save(context.WithoutCancel(ctx), key, c); err != nil {
			logger.Error("persist credentials failed", "key", key, "error", err)
		}
	})
	return nil
}
