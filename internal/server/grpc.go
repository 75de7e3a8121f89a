package server

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// GRPC serves a gRPC server on a TCP address.
type GRPC struct {
	name   string
	addr   string
	srv    *grpc.Server
	logger *slog.Logger

	mu    sync.Mutex
	bound net.Addr
}

// NewGRPC wraps srv. Services must be registered before Start.
func NewGRPC(name, addr string, srv *grpc.Server, logger *slog.Logger) *GRPC {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPC{name: name, addr: addr, srv: srv, logger: logger}
}

func (g *GRPC) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailable, "server: %s cannot listen on %s", g.name, g.addr)
	}
	g.mu.Lock()
	g.bound = ln.Addr()
	g.mu.Unlock()

	go func() {
		if err := g.srv.Serve(ln); err != nil {
			g.logger.Error("server: serve failed", "listener", g.name, "error", err)
		}
	}()
	g.logger.InfoContext(ctx, "server: listening", "listener", g.name, "addr", ln.Addr().String())
	return nil
}

// Stop waits for open RPCs to finish, and cuts them off when ctx ends
// first.
func (g *GRPC) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.srv.Stop()
		<-done
		return sserr.Wrapf(ctx.Err(), sserr.CodeTimeout, "server: %s did not drain", g.name)
	}
}

// Addr returns the bound address, or nil before Start.
func (g *GRPC) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bound
}
