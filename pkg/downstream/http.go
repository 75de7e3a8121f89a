package downstream

import (
	"log/slog"
	"net/http"

	"github.com/bytebites/bytebites-core/internal/httpio"
	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Middleware returns HTTP middleware that adopts the gateway-asserted
// identity. A request without both identity headers continues with no
// identity; role-gated handlers then reject it.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id, ok := auth.IdentityFromHeaders(r.Header.Get); ok {
				ctx = auth.ContextWithIdentity(ctx, id)
			} else {
				logger.DebugContext(ctx, "downstream: request without identity", "path", r.URL.Path)
			}
			if caller := r.Header.Get(auth.HeaderCallerService); caller != "" {
				ctx = auth.ContextWithCallerService(ctx, caller)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrorWriter renders an error response.
type ErrorWriter func(w http.ResponseWriter, err error)

// Guard gates handlers on the roles of the identity adopted by
// [Middleware]. It must sit behind Middleware, or every request looks
// anonymous.
//
// Rejections are split by cause:
//   - no identity on the context: 401 with AUTHZ_002
//   - an identity holding none of the required roles: 403 with AUTHZ_001
//
// Both are logged at warn level with the subject and path. A Guard is
// stateless and safe for concurrent use.
type Guard struct {
	logger     *slog.Logger
	writeError ErrorWriter
}

// NewGuard returns a Guard. A nil writeError uses httpio.WriteError.
func NewGuard(logger *slog.Logger, writeError ErrorWriter) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if writeError == nil {
		writeError = httpio.WriteError
	}
	return &Guard{logger: logger, writeError: writeError}
}

// Require runs next only when the identity holds at least one of roles.
// With no identity it answers 401 (AUTHZ_002); with the wrong roles, 403
// (AUTHZ_001).
func (g *Guard) Require(next http.HandlerFunc, roles ...auth.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.RequireRole(r.Context(), roles...); err != nil {
			g.Deny(w, r, err)
			return
		}
		next(w, r)
	}
}

// Deny logs an authorization failure at warn level and writes it.
func (g *Guard) Deny(w http.ResponseWriter, r *http.Request, err error) {
	id, _ := auth.IdentityFromContext(r.Context())
	g.logger.WarnContext(r.Context(), "downstream: request denied",
		"method", r.Method,
		"path", r.URL.Path,
		"subject", id.Subject,
		"code", string(sserr.GetCode(err)),
	)
	g.writeError(w, err)
}
