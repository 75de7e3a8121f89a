package gateway

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// DefaultOpenEndpoints are the paths forwarded without a token, in match
// order. Owner registration is not listed: it needs an ADMIN token like
// any other protected route.
var DefaultOpenEndpoints = []string{
	"/auth/register",
	"/auth/login",
	"/.well-known/jwks.json",
}

// Config configures the interceptor and the route table.
type Config struct {
	// OpenEndpoints are exact request paths that skip token validation.
	OpenEndpoints []string `env:"OPEN_ENDPOINTS" envDefault:"/auth/register,/auth/login,/.well-known/jwks.json" yaml:"open_endpoints" json:"open_endpoints"`

	// Routes maps path prefixes to upstream base URLs as "prefix=url".
	Routes []string `env:"ROUTES" envDefault:"/auth=http://localhost:8081,/.well-known=http://localhost:8081,/api/orders=http://localhost:8082,/api/restaurants=http://localhost:8083" yaml:"routes" json:"routes"`

	// UpstreamTimeout bounds the wait for upstream response headers.
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s" yaml:"upstream_timeout" json:"upstream_timeout"`
}

// Validate checks the open endpoint list and parses the routes.
func (c *Config) Validate() error {
	for _, p := range c.OpenEndpoints {
		if !strings.HasPrefix(p, "/") {
			return sserr.Newf(sserr.CodeValidationFormat, "gateway: open endpoint %q must start with /", p)
		}
	}
	if c.UpstreamTimeout < 0 {
		return sserr.Validation("gateway: upstream timeout must not be negative")
	}
	_, err := ParseRoutes(c.Routes)
	return err
}

// Route sends every request whose path is Prefix or lies below it to
// Target.
type Route struct {
	Prefix string
	Target *url.URL
}

func (r Route) matches(path string) bool {
	if path == r.Prefix {
		return true
	}
	if strings.HasSuffix(r.Prefix, "/") {
		return strings.HasPrefix(path, r.Prefix)
	}
	return strings.HasPrefix(path, r.Prefix+"/")
}

// ParseRoutes parses "prefix=url" entries and returns them longest prefix
// first.
func ParseRoutes(specs []string) ([]Route, error) {
	if len(specs) == 0 {
		return nil, sserr.New(sserr.CodeValidationRequired, "gateway: at least one route is required")
	}
	seen := make(map[string]bool, len(specs))
	routes := make([]Route, 0, len(specs))
	for _, spec := range specs {
		prefix, raw, ok := strings.Cut(spec, "=")
		prefix = strings.TrimSpace(prefix)
		raw = strings.TrimSpace(raw)
		if !ok || prefix == "" || raw == "" {
			return nil, sserr.Newf(sserr.CodeValidationFormat, "gateway: route %q must be prefix=url", spec)
		}
		if !strings.HasPrefix(prefix, "/") {
			return nil, sserr.Newf(sserr.CodeValidationFormat, "gateway: route prefix %q must start with /", prefix)
		}
		if seen[prefix] {
			return nil, sserr.Newf(sserr.CodeValidation, "gateway: duplicate route prefix %q", prefix)
		}
		seen[prefix] = true

		target, err := url.Parse(raw)
		if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
			return nil, sserr.Wrapf(fmt.Errorf("invalid upstream %q", raw), sserr.CodeValidationFormat,
				"gateway: route %q needs an absolute http(s) upstream", prefix)
		}
		routes = append(routes, Route{Prefix: prefix, Target: target})
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].Prefix) > len(routes[j].Prefix)
	})
	return routes, nil
}
