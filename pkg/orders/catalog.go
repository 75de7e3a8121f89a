package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Restaurant is the part of a restaurant the order service needs.
type Restaurant struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	OwnerEmail string `json:"ownerEmail" yaml:"owner_email"`
}

// MenuItem is a priced menu entry.
type MenuItem struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	PriceCents int64  `json:"priceCents" yaml:"price_cents"`
}

// Catalog resolves restaurants and menu prices. Missing entries are NF_001.
type Catalog interface {
	Restaurant(ctx context.Context, id string) (*Restaurant, error)
	MenuItem(ctx context.Context, restaurantID, itemID string) (*MenuItem, error)
}

// RestaurantSeed is a restaurant with its menu, as written in config files.
type RestaurantSeed struct {
	Restaurant `yaml:",inline"`
	Menu       []MenuItem `yaml:"menu"`
}

// MemoryCatalog is a fixed Catalog. It is read-only after construction.
type MemoryCatalog struct {
	restaurants map[string]Restaurant
	menus       map[string]map[string]MenuItem
}

// NewMemoryCatalog indexes seeds. Seeds without an id, duplicate ids and
// menu items without a positive price are rejected.
func NewMemoryCatalog(seeds ...RestaurantSeed) (*MemoryCatalog, error) {
	c := &MemoryCatalog{
		restaurants: make(map[string]Restaurant, len(seeds)),
		menus:       make(map[string]map[string]MenuItem, len(seeds)),
	}
	for _, s := range seeds {
		if s.ID == "" {
			return nil, sserr.New(sserr.CodeValidationRequired, "catalog: restaurant id is required")
		}
		if _, dup := c.restaurants[s.ID]; dup {
			return nil, sserr.Newf(sserr.CodeValidation, "catalog: duplicate restaurant %q", s.ID)
		}
		menu := make(map[string]MenuItem, len(s.Menu))
		for _, m := range s.Menu {
			if m.ID == "" || m.PriceCents <= 0 {
				return nil, sserr.Newf(sserr.CodeValidation, "catalog: restaurant %q has an invalid menu item %q", s.ID, m.ID)
			}
			menu[m.ID] = m
		}
		c.restaurants[s.ID] = s.Restaurant
		c.menus[s.ID] = menu
	}
	return c, nil
}

func (c *MemoryCatalog) Restaurant(_ context.Context, id string) (*Restaurant, error) {
	r, ok := c.restaurants[id]
	if !ok {
		return nil, sserr.Newf(sserr.CodeNotFound, "restaurant not found with id: %s", id)
	}
	return &r, nil
}

func (c *MemoryCatalog) MenuItem(_ context.Context, restaurantID, itemID string) (*MenuItem, error) {
	m, ok := c.menus[restaurantID][itemID]
	if !ok {
		return nil, sserr.Newf(sserr.CodeNotFound, "menu item not found with id: %s", itemID)
	}
	return &m, nil
}

// HTTPCatalog reads the catalog from the restaurant service. Responses use
// the service envelope:
//
//	GET {base}/api/restaurants/{id}                        → data: Restaurant
//	GET {base}/api/restaurants/{id}/menu-items/{itemId}    → data: MenuItem
//
// The client should carry a downstream.PropagatingRoundTripper so that the
// restaurant service sees the caller's identity.
type HTTPCatalog struct {
	base   *url.URL
	client *http.Client
	tracer trace.Tracer
}

// NewHTTPCatalog returns a catalog rooted at baseURL. A nil client uses
// http.DefaultClient.
func NewHTTPCatalog(baseURL string, client *http.Client) (*HTTPCatalog, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, sserr.Newf(sserr.CodeValidationFormat, "catalog: %q is not an absolute http(s) URL", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCatalog{
		base:   u,
		client: client,
		tracer: otel.Tracer("github.com/bytebites/bytebites-core/pkg/orders"),
	}, nil
}

func (c *HTTPCatalog) Restaurant(ctx context.Context, id string) (*Restaurant, error) {
	var r Restaurant
	if err := c.get(ctx, &r, "api", "restaurants", id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *HTTPCatalog) MenuItem(ctx context.Context, restaurantID, itemID string) (*MenuItem, error) {
	var m MenuItem
	if err := c.get(ctx, &m, "api", "restaurants", restaurantID, "menu-items", itemID); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPCatalog) get(ctx context.Context, data any, segments ...string) (err error) {
	target := c.base.JoinPath(segments...)
	ctx, span := c.tracer.Start(ctx, "orders.catalog.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", target.Redacted())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "catalog: build request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "restaurant service unavailable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return sserr.Newf(sserr.CodeNotFound, "not found: %s", strings.Join(segments[2:], "/"))
	case resp.StatusCode != http.StatusOK:
		return sserr.Wrap(fmt.Errorf("status %d", resp.StatusCode), sserr.CodeUnavailableDependency,
			"restaurant service unavailable")
	}

	env := Envelope{Data: data}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "restaurant service sent an invalid response")
	}
	if !env.Success {
		return sserr.Newf(sserr.CodeUnavailableDependency, "restaurant service: %s", env.Message)
	}
	return nil
}
