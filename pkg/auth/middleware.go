package auth

import (
	"net/http"
	"strings"

	apperrors "staybook/pkg/errors"
	httputil "staybook/pkg/http"
	"staybook/pkg/logger"
	"staybook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// Authenticate requires a valid bearer token, or the named cookie when no
// Authorization header is sent, and stores the caller identity on the request.
func Authenticate(verifier *TokenVerifier, cookieName string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.Verify(extractToken(r, cookieName))
			if err != nil {
				log.Warn("Authentication failed",
					"path", r.URL.Path,
					"method", r.Method,
					"error", err,
				)
				if writeErr := httputil.WriteError(w, apperrors.Unauthorized("Authentication required")); writeErr != nil {
					log.Error("failed to write error response", "middleware", "Authenticate", "error", writeErr)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireUserType rejects callers whose type is not listed.
func RequireUserType(log *logger.Logger, allowed ...model.UserType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := FromContext(r.Context())
			if !ok {
				if err := httputil.WriteError(w, apperrors.Unauthorized("Authentication required")); err != nil {
					log.Error("failed to write error response", "middleware", "RequireUserType", "error", err)
				}
				return
			}

			for _, userType := range allowed {
				if identity.UserType == userType {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn("Caller type not allowed",
				"path", r.URL.Path,
				"user_id", identity.ID,
				"user_type", identity.UserType,
			)
			if err := httputil.WriteError(w, apperrors.Forbidden("Insufficient permissions")); err != nil {
				log.Error("failed to write error response", "middleware", "RequireUserType", "error", err)
			}
		})
	}
}

// Guard applies RequireUserType to a single route.
func Guard(log *logger.Logger, next httprouter.Handle, allowed ...model.UserType) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next(w, r, ps)
		})
		RequireUserType(log, allowed...)(inner).ServeHTTP(w, r)
	}
}

func extractToken(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return strings.TrimSpace(header[7:])
		}
		return ""
	}

	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil {
			return cookie.Value
		}
	}
	return ""
}
