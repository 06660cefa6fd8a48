package app

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/graphconnect/internal/loopback"
	"github.com/aussiebroadwan/graphconnect/pkg/graphsdk"
)

// browserHandoff starts the loopback server on first use, so commands
// that never log in do not open a port.
type browserHandoff struct {
	addr        string
	logger      *slog.Logger
	out         io.Writer
	openBrowser func(string) error
	target      loopback.Target

	mu  sync.Mutex
	srv *loopback.Server
}

func (h *browserHandoff) Open(ctx context.Context, req graphsdk.HandoffRequest) (bool, error) {
	srv, err := h.server()
	if err != nil {
		return false, err
	}
	return srv.Open(ctx, req)
}

func (h *browserHandoff) server() (*loopback.Server, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.srv != nil {
		return h.srv, nil
	}

	srv, err := loopback.New(loopback.Config{
		Addr:        h.addr,
		Logger:      h.logger,
		Out:         h.out,
		OpenBrowser: h.openBrowser,
	})
	if err != nil {
		return nil, err
	}
	srv.Attach(h.target)
	h.srv = srv
	return srv, nil
}

func (h *browserHandoff) Close() error {
	h.mu.Lock()
	srv := h.srv
	h.srv = nil
	h.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}
