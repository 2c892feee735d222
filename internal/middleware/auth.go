package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apierrors "licensegate/internal/errors"
)

// AdminAuth guards the admin API behind a static credential supplied either
// as an X-Admin-Key header or an Authorization bearer token. The comparison
// is constant-time so the key cannot be recovered byte-by-byte from
// response timing.
type AdminAuth struct {
	key    []byte
	logger *slog.Logger
}

// NewAdminAuth creates admin-key authentication middleware
func NewAdminAuth(key string, logger *slog.Logger) *AdminAuth {
	return &AdminAuth{
		key:    []byte(key),
		logger: logger.With(slog.String("middleware", "admin_auth")),
	}
}

// Handler rejects requests that do not carry the configured admin key
func (a *AdminAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := extractAdminKey(r)
		if presented == "" {
			a.logger.WarnContext(r.Context(), "admin request without credential",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrUnauthorized))
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), a.key) != 1 {
			a.logger.WarnContext(r.Context(), "admin request with invalid credential",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrForbidden))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractAdminKey pulls the credential from X-Admin-Key or a bearer token
func extractAdminKey(r *http.Request) string {
	if key := r.Header.Get("X-Admin-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
