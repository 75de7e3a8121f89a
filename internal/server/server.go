// Package server runs the binaries' listeners as lifecycle hooks.
//
//	group := server.Group{server.NewHTTP("api", cfg.Addr, handler, logger)}
//	svc, err := lifecycle.NewServiceBuilder("gateway", version).
//	    WithOnStart(group.Start).
//	    WithOnStop(group.Stop).
//	    Build()
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/lifecycle"
)

// Config is the listener and process surface every binary shares.
type Config struct {
	Addr              string        `env:"ADDR" yaml:"addr" json:"addr"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level" json:"log_level"`
}

// Validate fills Addr with defaultAddr when unset and checks the rest.
func (c *Config) Validate(defaultAddr string) error {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return sserr.Newf(sserr.CodeValidationFormat, "server: ADDR %q is not host:port", c.Addr)
	}
	if c.ShutdownTimeout <= 0 {
		return sserr.Validation("server: SHUTDOWN_TIMEOUT must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to a slog level. Empty is
// info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, sserr.Newf(sserr.CodeValidationFormat, "server: unknown log level %q", s)
	}
	return l, nil
}

// NewLogger returns a JSON logger on stdout tagged with the service name.
func NewLogger(service, level string) *slog.Logger {
	l, err := ParseLevel(level)
	if err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})).
		With("service", service)
}

// Component is anything the lifecycle starts and stops.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Group starts components in order and stops them in reverse.
type Group []Component

// Start starts every component. When one fails, the ones already started
// are stopped again before the error is returned.
func (g Group) Start(ctx context.Context) error {
	for i, c := range g {
		if err := c.Start(ctx); err != nil {
			_ = g[:i].Stop(context.WithoutCancel(ctx))
			return err
		}
	}
	return nil
}

// Stop stops every component, even after a failure, and joins the errors.
func (g Group) Stop(ctx context.Context) error {
	var errs []error
	for i := len(g) - 1; i >= 0; i-- {
		if err := g[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closer adapts a cleanup function, such as a pool's Close, to a Component
// that does nothing on start.
type Closer func()

func (Closer) Start(context.Context) error { return nil }

func (c Closer) Stop(context.Context) error {
	c()
	return nil
}

// HTTP serves a handler on a TCP address.
type HTTP struct {
	name   string
	srv    *http.Server
	logger *slog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewHTTP returns a server for h on addr. Nothing listens until Start.
func NewHTTP(name, addr string, h http.Handler, readHeaderTimeout time.Duration, logger *slog.Logger) *HTTP {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{
		name:   name,
		logger: logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: readHeaderTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
	}
}

// Start binds the address and serves in the background. A bind failure is
// returned here rather than logged later.
func (s *HTTP) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailable, "server: %s cannot listen on %s", s.name, s.srv.Addr)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server: serve failed", "listener", s.name, "error", err)
		}
	}()
	s.logger.InfoContext(ctx, "server: listening", "listener", s.name, "addr", ln.Addr().String())
	return nil
}

// Stop drains in-flight requests until ctx ends.
func (s *HTTP) Stop(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return sserr.Wrapf(err, sserr.CodeTimeout, "server: %s did not drain", s.name)
	}
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *HTTP) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run builds a lifecycle service around group and runs it until SIGINT,
// SIGTERM or the end of ctx.
func Run(ctx context.Context, name, version string, cfg Config, logger *slog.Logger, group Group) error {
	svc, err := lifecycle.NewServiceBuilder(name, version).
		WithLogger(logger).
		WithOnStart(group.Start).
		WithOnStop(group.Stop).
		OnStateChange(func(from, to lifecycle.State) {
			logger.Debug("state change", "from", from.String(), "to", to.String())
		}).
		Build()
	if err != nil {
		return err
	}
	return lifecycle.Run(ctx, svc, cfg.ShutdownTimeout)
}
