package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware requires a bearer credential and attaches the resolved user.
func Middleware(a *Authenticator, lg *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r.Header.Get("Authorization"))
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			u, err := a.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, ErrTokenExpired):
					lg.Debugw("rejected expired token", "path", r.URL.Path)
					unauthorized(w, "token expired")
				case errors.Is(err, ErrTokenInvalid):
					lg.Debugw("rejected invalid token", "path", r.URL.Path, "error", err)
					unauthorized(w, "invalid token")
				case errors.Is(err, ErrUnknownUser):
					lg.Infow("rejected token for unknown user", "path", r.URL.Path, "error", err)
					unauthorized(w, "invalid authentication credentials")
				default:
					lg.Errorw("authentication failed", "path", r.URL.Path, "error", err)
					writeError(w, http.StatusInternalServerError, "authentication error")
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				unauthorized(w, "not authenticated")
				return
			}
			if u.Role != role {
				writeError(w, http.StatusForbidden, "Admins only")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	const bearer = "bearer "
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="reqtrack"`)
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}
