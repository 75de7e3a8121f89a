// Command gateway is the public edge. It validates bearer tokens, rewrites
// the trusted identity headers and proxies to the backend services.
// Prometheus metrics are served on a separate admin listener.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bytebites/bytebites-core/internal/server"
	"github.com/bytebites/bytebites-core/pkg/auth"
	"github.com/bytebites/bytebites-core/pkg/config"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/gateway"
	"github.com/bytebites/bytebites-core/pkg/validator"
)

const serviceName = "gateway"

var version = "dev"

// Config is the gateway configuration, read from GATEWAY_-prefixed
// environment variables.
type Config struct {
	Server    server.Config    `yaml:"server" json:"server"`
	AdminAddr string           `env:"ADMIN_ADDR" envDefault:":9090" yaml:"admin_addr" json:"admin_addr"`
	Gateway   gateway.Config   `yaml:"gateway" json:"gateway"`
	Validator validator.Config `yaml:"validator" json:"validator"`
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(":8080"); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(c.AdminAddr); err != nil {
		return sserr.Newf(sserr.CodeValidationFormat, "gateway: ADMIN_ADDR %q is not host:port", c.AdminAddr)
	}
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	return c.Validator.Validate()
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func loadConfig(args []string, lookup func(string) (string, bool)) (*Config, error) {
	fs := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	var cfg Config
	if err := config.New().WithEnvPrefix("GATEWAY").WithLookup(lookup).WithFlags(fs).Load(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool)) error {
	cfg, err := loadConfig(args, lookup)
	if err != nil {
		return err
	}
	logger := server.NewLogger(serviceName, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	v, err := validator.New(cfg.Validator, validator.WithLogger(logger))
	if err != nil {
		return err
	}
	handler, err := gateway.New(cfg.Gateway, v, gateway.NewTransport(cfg.Gateway),
		gateway.WithLogger(logger),
		gateway.WithMetrics(gateway.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	admin := http.NewServeMux()
	admin.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	probes := server.Probes(cfg.Server.ReadHeaderTimeout, nil)
	admin.Handle(server.PathLive, probes)
	admin.Handle(server.PathReady, probes)

	group := server.Group{
		keyWarmer{v: v, logger: logger},
		server.NewHTTP("admin", cfg.AdminAddr, admin, cfg.Server.ReadHeaderTimeout, logger),
		server.NewHTTP("api", cfg.Server.Addr, handler, cfg.Server.ReadHeaderTimeout, logger),
	}
	return server.Run(ctx, serviceName, version, cfg.Server, logger, group)
}

// keyWarmer fetches the key set before the public listener opens. A failed
// fetch is not fatal: protected requests are rejected until a later fetch
// succeeds.
type keyWarmer struct {
	v      auth.TokenValidator
	logger *slog.Logger
}

func (w keyWarmer) Start(ctx context.Context) error {
	warm, ok := w.v.(interface{ Warm(context.Context) error })
	if !ok {
		return nil
	}
	if err := warm.Warm(ctx); err != nil {
		w.logger.WarnContext(ctx, "key set not reachable at startup, protected routes reject until it is",
			"code", string(sserr.GetCode(err)), "error", err)
	}
	return nil
}

func (keyWarmer) Stop(context.Context) error { return nil }
