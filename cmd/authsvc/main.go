// Command authsvc issues bearer tokens. It registers and logs in users and
// publishes its verification key at /.well-known/jwks.json.
//
// Configuration comes from AUTH_-prefixed environment variables and an
// optional --config file:
//
//	AUTH_JWT_PRIVATE_KEY=$(...) AUTH_DATABASE_URI=postgres://... authsvc
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/bytebites/bytebites-core/internal/server"
	"github.com/bytebites/bytebites-core/pkg/clients/postgres"
	"github.com/bytebites/bytebites-core/pkg/clients/redis"
	"github.com/bytebites/bytebites-core/pkg/config"
	"github.com/bytebites/bytebites-core/pkg/issuer"
	"github.com/bytebites/bytebites-core/pkg/keys"
	"github.com/bytebites/bytebites-core/pkg/ratelimit"
	"github.com/bytebites/bytebites-core/pkg/users"
)

const serviceName = "authsvc"

var version = "dev"

// Config is the auth service configuration. Postgres and Redis are
// optional; without them users and login counters live in memory.
type Config struct {
	Server    server.Config    `yaml:"server" json:"server"`
	Keys      keys.Config      `yaml:"keys" json:"keys"`
	Issuer    issuer.Config    `yaml:"issuer" json:"issuer"`
	RateLimit ratelimit.Config `yaml:"rate_limit" json:"rate_limit"`
	Postgres  postgres.Config  `env:"DATABASE" yaml:"database" json:"database"`
	Redis     redis.Config     `env:"REDIS" yaml:"redis" json:"redis"`
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(":8081"); err != nil {
		return err
	}
	if err := c.Issuer.Validate(); err != nil {
		return err
	}
	return c.RateLimit.Validate()
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
	if err := config.New().WithEnvPrefix("AUTH").WithLookup(lookup).WithFlags(fs).Load(&cfg); err != nil {
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

	// Bad key material stops the process here.
	provider, err := keys.NewProvider(cfg.Keys)
	if err != nil {
		return err
	}
	logger.Info("signing key loaded", "kid", provider.KeyID())

	var group server.Group
	checks := map[string]server.Check{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler, err := assemble(ctx, cfg, provider, reg, logger, &group, checks)
	if err != nil {
		return err
	}

	handler = server.WithProbes(handler, server.Probes(cfg.Server.ReadHeaderTimeout, checks))
	group = append(group, server.NewHTTP("api", cfg.Server.Addr, handler, cfg.Server.ReadHeaderTimeout, logger))
	return server.Run(ctx, serviceName, version, cfg.Server, logger, group)
}

// assemble opens the user store and limiter and builds the API handler.
// Clients it opens are appended to group. When any step fails, everything
// in group is stopped before the error is returned.
func assemble(ctx context.Context, cfg *Config, provider *keys.Provider, reg *prometheus.Registry, logger *slog.Logger, group *server.Group, checks map[string]server.Check) (_ http.Handler, err error) {
	defer func() {
		if err != nil {
			if stopErr := group.Stop(context.WithoutCancel(ctx)); stopErr != nil {
				logger.Warn("cleanup after failed startup", "error", stopErr)
			}
		}
	}()

	store, err := openUserStore(ctx, cfg.Postgres, logger, group, checks)
	if err != nil {
		return nil, err
	}
	limiter, err := openLimiter(ctx, cfg, logger, group, checks)
	if err != nil {
		return nil, err
	}
	tokens, err := issuer.NewTokenIssuer(provider, cfg.Issuer, time.Now)
	if err != nil {
		return nil, err
	}
	verifier, err := issuer.NewCredentialVerifier(store, cfg.Issuer.BcryptCost)
	if err != nil {
		return nil, err
	}
	svc := issuer.NewService(issuer.Deps{
		Tokens:    tokens,
		Verifier:  verifier,
		Registrar: issuer.NewRegistrar(store, cfg.Issuer.BcryptCost, time.Now),
		Limiter:   limiter,
		Metrics:   issuer.NewMetrics(reg),
		Logger:    logger,
	})
	return issuer.NewHandler(svc, provider, cfg.Issuer, reg)
}

func openUserStore(ctx context.Context, cfg postgres.Config, logger *slog.Logger, group *server.Group, checks map[string]server.Check) (users.Store, error) {
	if !cfg.Enabled() {
		logger.Warn("AUTH_DATABASE_URI is not set, users are kept in memory")
		return users.NewMemoryStore(), nil
	}
	client, err := postgres.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	*group = append(*group, server.Closer(client.Close))
	checks["postgres"] = client.Health
	store := users.NewPostgresStore(client)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func openLimiter(ctx context.Context, cfg *Config, logger *slog.Logger, group *server.Group, checks map[string]server.Check) (ratelimit.Limiter, error) {
	if cfg.RateLimit.Limit <= 0 {
		return nil, nil
	}
	if !cfg.Redis.Enabled() {
		return ratelimit.NewMemoryLimiter(cfg.RateLimit, time.Now), nil
	}
	client, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	*group = append(*group, server.Closer(func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}))
	checks["redis"] = client.Health
	return ratelimit.NewRedisLimiter(client, cfg.RateLimit, time.Now), nil
}
