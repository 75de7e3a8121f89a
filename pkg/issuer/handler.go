package issuer

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bytebites/bytebites-core/internal/httpio"
	"github.com/bytebites/bytebites-core/pkg/auth"
	"github.com/bytebites/bytebites-core/pkg/downstream"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/keys"
)

// Routes of the auth service. Everything except PathRegisterOwner is
// public; owner registration needs an ADMIN identity asserted by the
// gateway.
const (
	PathRegister      = "/auth/register"
	PathRegisterOwner = "/auth/register-owner"
	PathLogin         = "/auth/login"
	PathMetrics       = "/metrics"
)

// RegisteredMessage is the body of a successful registration.
const RegisteredMessage = "User registered successfully."

// Credentials is the register and login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NewHandler returns the auth service's HTTP routes: registration, login,
// the JWKS document and, when gatherer is non-nil, /metrics. The key set is
// served with a Cache-Control max-age of cfg.JWKSMaxAge.
//
// The mux sits behind [downstream.Middleware], so owner registration sees
// the identity the gateway asserted for the caller's token. Without one it
// answers 401 (AUTHZ_002); callers without ADMIN get 403 (AUTHZ_001).
func NewHandler(svc *Service, p *keys.Provider, cfg Config, gatherer prometheus.Gatherer) (http.Handler, error) {
	jwks, err := keys.Handler(p, cfg.JWKSMaxAge)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "issuer: failed to encode key set")
	}

	guard := downstream.NewGuard(svc.Logger, httpio.WriteError)
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathRegister, registerHandler(svc, auth.DefaultRole))
	mux.HandleFunc("POST "+PathRegisterOwner,
		guard.Require(registerHandler(svc, auth.RoleRestaurantOwner), auth.RoleAdmin))
	mux.HandleFunc("POST "+PathLogin, loginHandler(svc))
	mux.Handle(keys.JWKSPath, jwks)
	if gatherer != nil {
		mux.Handle("GET "+PathMetrics, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return downstream.Middleware(svc.Logger)(mux), nil
}

func registerHandler(svc *Service, role auth.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Credentials
		if err := httpio.DecodeJSON(r, &req); err != nil {
			httpio.WriteError(w, err)
			return
		}
		if _, err := svc.Register(r.Context(), req.Email, req.Password, role); err != nil {
			httpio.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(RegisteredMessage))
	}
}

func loginHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Credentials
		if err := httpio.DecodeJSON(r, &req); err != nil {
			httpio.WriteError(w, err)
			return
		}
		resp, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			httpio.WriteError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		httpio.WriteJSON(w, http.StatusOK, resp)
	}
}
