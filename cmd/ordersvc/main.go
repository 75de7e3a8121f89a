// Command ordersvc serves the order endpoints behind the gateway. It trusts
// the identity headers the gateway sets and never sees bearer tokens.
//
// Prices and restaurant ownership come from the restaurant service when
// ORDERS_RESTAURANT_SERVICE_URL is set, or from a catalog section in the
// --config file:
//
//	catalog:
//	  - id: r-100
//	    name: Burger Barn
//	    owner_email: bob@example.com
//	    menu:
//	      - {id: m-burger, name: Classic Burger, price_cents: 899}
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/bytebites/bytebites-core/internal/server"
	"github.com/bytebites/bytebites-core/pkg/clients/postgres"
	"github.com/bytebites/bytebites-core/pkg/config"
	"github.com/bytebites/bytebites-core/pkg/downstream"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/orders"
)

const serviceName = "order-service"

var version = "dev"

// Config is the order service configuration, read from ORDERS_-prefixed
// environment variables.
type Config struct {
	Server   server.Config   `yaml:"server" json:"server"`
	GRPCAddr string          `env:"GRPC_ADDR" yaml:"grpc_addr" json:"grpc_addr,omitempty"`
	Postgres postgres.Config `env:"DATABASE" yaml:"database" json:"database"`

	RestaurantServiceURL string        `env:"RESTAURANT_SERVICE_URL" yaml:"restaurant_service_url" json:"restaurant_service_url,omitempty"`
	CatalogTimeout       time.Duration `env:"CATALOG_TIMEOUT" envDefault:"5s" yaml:"catalog_timeout" json:"catalog_timeout"`

	// Catalog is only read from the config file.
	Catalog []orders.RestaurantSeed `yaml:"catalog" json:"catalog,omitempty"`
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(":8082"); err != nil {
		return err
	}
	if c.GRPCAddr != "" {
		if _, _, err := net.SplitHostPort(c.GRPCAddr); err != nil {
			return sserr.Newf(sserr.CodeValidationFormat, "orders: GRPC_ADDR %q is not host:port", c.GRPCAddr)
		}
	}
	switch {
	case c.RestaurantServiceURL != "" && len(c.Catalog) > 0:
		return sserr.Validation("orders: set either RESTAURANT_SERVICE_URL or a catalog, not both")
	case c.RestaurantServiceURL == "" && len(c.Catalog) == 0:
		return sserr.New(sserr.CodeValidationRequired, "orders: RESTAURANT_SERVICE_URL or a catalog is required")
	}
	if c.CatalogTimeout <= 0 {
		return sserr.Validation("orders: CATALOG_TIMEOUT must be positive")
	}
	return nil
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
	if err := config.New().WithEnvPrefix("ORDERS").WithLookup(lookup).WithFlags(fs).Load(&cfg); err != nil {
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

	catalog, err := newCatalog(cfg)
	if err != nil {
		return err
	}

	var group server.Group
	checks := map[string]server.Check{}
	store, err := openStore(ctx, cfg.Postgres, logger, &group, checks)
	if err != nil {
		return err
	}

	svc := orders.NewService(store, catalog, time.Now, logger)
	handler := server.WithProbes(orders.NewHandler(svc, logger), server.Probes(cfg.Server.ReadHeaderTimeout, checks))
	group = append(group, server.NewHTTP("api", cfg.Server.Addr, handler, cfg.Server.ReadHeaderTimeout, logger))
	if cfg.GRPCAddr != "" {
		group = append(group, newHealthServer(cfg.GRPCAddr, logger))
	}
	return server.Run(ctx, serviceName, version, cfg.Server, logger, group)
}

// newCatalog prefers the restaurant service. Its client forwards the
// caller's identity so the restaurant service applies the same role rules.
func newCatalog(cfg *Config) (orders.Catalog, error) {
	if cfg.RestaurantServiceURL == "" {
		return orders.NewMemoryCatalog(cfg.Catalog...)
	}
	return orders.NewHTTPCatalog(cfg.RestaurantServiceURL, &http.Client{
		Timeout:   cfg.CatalogTimeout,
		Transport: downstream.NewPropagatingRoundTripper(serviceName, nil),
	})
}

func openStore(ctx context.Context, cfg postgres.Config, logger *slog.Logger, group *server.Group, checks map[string]server.Check) (orders.Store, error) {
	if !cfg.Enabled() {
		logger.Warn("ORDERS_DATABASE_URI is not set, orders are kept in memory")
		return orders.NewMemoryStore(), nil
	}
	client, err := postgres.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	*group = append(*group, server.Closer(client.Close))
	checks["postgres"] = client.Health
	store := orders.NewPostgresStore(client)
	if err := store.Migrate(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return store, nil
}

// healthServer is the gRPC listener. It carries only the health service;
// the identity interceptors are installed so that services added later
// read callers the same way the HTTP handler does.
type healthServer struct {
	*server.GRPC
	health *health.Server
}

func newHealthServer(addr string, logger *slog.Logger) *healthServer {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(downstream.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(downstream.StreamServerInterceptor()),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return &healthServer{GRPC: server.NewGRPC("grpc", addr, srv, logger), health: hs}
}

func (h *healthServer) Start(ctx context.Context) error {
	if err := h.GRPC.Start(ctx); err != nil {
		return err
	}
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return nil
}

func (h *healthServer) Stop(ctx context.Context) error {
	h.health.Shutdown()
	return h.GRPC.Stop(ctx)
}
