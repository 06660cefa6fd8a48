// Package keyring stores credentials in the operating system keychain
// through 99designs/keyring, falling back to its encrypted file backend
// on headless machines.
package keyring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/99designs/keyring"

	"github.com/aussiebroadwan/graphconnect/internal/store"
	"github.com/aussiebroadwan/graphconnect/pkg/graphsdk"
)

const ServiceName = "graphctl"

// openKeyring can be replaced in tests to use an in-memory keyring.
var openKeyring = func(cfg keyring.Config) (keyring.Keyring, error) {
	return keyring.Open(cfg)
}

// SetOpenKeyring replaces the keyring opener for testing and returns a
// function that restores the original.
func SetOpenKeyring(fn func(keyring.Config) (keyring.Keyring, error)) func() {
	original := openKeyring
	openKeyring = fn
	return func() { openKeyring = original }
}

type Config struct {
	// FileDir is where the file backend keeps its entries. Defaults to
	// <user config dir>/graphctl/keyring.
	FileDir string

	// Passphrase unlocks the file backend. Required whenever the file
	// backend is selected.
	Passphrase string
}

type Store struct {
	ring keyring.Keyring
}

var _ store.Credentials = (*Store)(nil)

type item struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	Permissions []string  `json:"permissions,omitempty"`
}

func NewStore(cfg Config) (*Store, error) {
	kcfg := keyring.Config{
		ServiceName: ServiceName,
		FileDir:     cfg.FileDir,
		FilePasswordFunc: func(string) (string, error) {
			if cfg.Passphrase == "" {
				return "", errors.New("keyring: file backend needs a passphrase")
			}
			return cfg.Passphrase, nil
		},
	}
	if kcfg.FileDir == "" {
		kcfg.FileDir = defaultFileDir()
	}

	// Headless Linux has no secret service to talk to.
	if runtime.GOOS == "linux" && strings.TrimSpace(os.Getenv("DBUS_SESSION_BUS_ADDRESS")) == "" {
		kcfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}

	ring, err := openKeyring(kcfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

func (s *Store) Load(_ context.Context, key string) (graphsdk.Credentials, error) {
	raw, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return graphsdk.Credentials{}, store.ErrNotFound
	}
	if err != nil {
		return graphsdk.Credentials{}, err
	}

	var it item
	if err := json.Unmarshal(raw.Data, &it); err != nil {
		return graphsdk.Credentials{}, fmt.Errorf("keyring: decode %q: %w", key, err)
	}
	return graphsdk.Credentials{
		AccessToken: it.AccessToken,
		ExpiresAt:   it.ExpiresAt,
		Permissions: it.Permissions,
	}, nil
}

func (s *Store) Save(ctx context.Context, key string, c graphsdk.Credentials) error {
	if c.AccessToken == "" {
		return s.Delete(ctx, key)
	}

	data, err := json.Marshal(item{
		AccessToken: c.AccessToken,
		ExpiresAt:   c.ExpiresAt,
		Permissions: c.Permissions,
	})
	if err != nil {
		return err
	}
	return s.ring.Set(keyring.Item{
		Key:         key,
		Data:        data,
		Label:       ServiceName + " " + key,
		Description: "Graph API access token",
	})
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

func defaultFileDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, ServiceName, "keyring")
	}
	return filepath.Join(os.TempDir(), ServiceName, "keyring")
}
