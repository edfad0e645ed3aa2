package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"reqtrack/internal/auth"
	"reqtrack/internal/services"
)

// maxBodyBytes caps JSON and CSV request bodies.
const maxBodyBytes = 10 << 20

func respondJSON(w http.ResponseWriter, v interface{}) {
	respondStatus(w, http.StatusOK, v)
}

func respondStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func respondDetail(w http.ResponseWriter, status int, msg string) {
	respondStatus(w, status, map[string]string{"detail": msg})
}

// respondError maps service and auth errors onto status codes. Anything
// unrecognised is logged and reported as a bare 500.
func respondError(w http.ResponseWriter, r *http.Request, lg *zap.SugaredLogger, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		respondDetail(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), services.ErrValidation.Error()+": "))
	case errors.Is(err, auth.ErrInvalidInput):
		respondDetail(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), auth.ErrInvalidInput.Error()+": "))
	case errors.Is(err, services.ErrNotFound):
		respondDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrForbidden):
		respondDetail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrUnknownUser):
		respondDetail(w, http.StatusUnauthorized, "Invalid authentication credentials")
	default:
		lg.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondDetail(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondDetail(w, http.StatusBadRequest, "invalid id "+strconv.Quote(raw))
		return 0, false
	}
	return uint(id), true
}

// actorFrom builds the acting identity from the authenticated user. RemoteAddr
// carries the proxy-reported client only when proxy headers are trusted.
func actorFrom(r *http.Request) services.Actor {
	u, _ := auth.UserFromContext(r.Context())
	return services.Actor{UserID: u.ID, Email: u.Email, IP: remoteIP(r)}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
