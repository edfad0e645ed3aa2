package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"reqtrack/internal/audit"
	"reqtrack/internal/auth"
	"reqtrack/internal/models"
)

type loginReq struct {
	IDToken string `json:"id_token"`
}

type loginResp struct {
	auth.LoginResult
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Role    string `json:"role"`
}

func Login(a *auth.Authenticator, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if !decodeJSON(w, r, &req) {
			return
		}
		res, err := a.Login(r.Context(), req.IDToken, remoteIP(r))
		if err != nil {
			if errors.Is(err, auth.ErrInvalidInput) {
				respondDetail(w, http.StatusBadRequest, "Missing id_token")
				return
			}
			if errors.Is(err, auth.ErrTokenExpired) || errors.Is(err, auth.ErrTokenInvalid) {
				lg.Infow("login rejected", "ip", remoteIP(r), "error", err)
				respondDetail(w, http.StatusUnauthorized, "Invalid authentication credentials")
				return
			}
			respondError(w, r, lg, err)
			return
		}
		u := res.User
		respondJSON(w, loginResp{LoginResult: res, Email: u.Email, Name: u.Name, Picture: u.Picture, Role: u.Role})
	}
}

type meResp struct {
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Picture   string     `json:"picture"`
	Role      string     `json:"role"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func userView(u models.User) meResp {
	return meResp{Email: u.Email, Name: u.Name, Picture: u.Picture, Role: u.Role, LastLogin: u.LastLogin}
}

func Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := auth.UserFromContext(r.Context())
		if !ok {
			respondDetail(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		respondJSON(w, userView(u))
	}
}

func PublicGoogleClientID(clientID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{"client_id": clientID})
	}
}

type sessionConfigReq struct {
	Duration int64 `json:"duration"`
}

func GetSessionConfig(cfg *auth.SessionConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]int64{"duration": int64(cfg.Duration().Seconds())})
	}
}

// SetSessionConfig changes the lifetime of session tokens issued from now on.
// Tokens already issued keep their expiry. The change is applied only once
// its audit row has committed.
func SetSessionConfig(db *gorm.DB, cfg *auth.SessionConfig, rec *audit.Recorder, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionConfigReq
		if !decodeJSON(w, r, &req) {
			return
		}
		d, err := auth.DurationFromSeconds(req.Duration)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		actor := actorFrom(r)
		old := int64(cfg.Duration() / time.Second)
		err = rec.Transaction(db.WithContext(r.Context()), func(tx *gorm.DB) error {
			return rec.Record(tx, audit.Entry{
				Actor: actor.Email, Action: "update_session_config", IP: actor.IP,
				Details: fmt.Sprintf("Changed session duration from %d to %d seconds", old, req.Duration),
			})
		})
		if err == nil {
			err = cfg.SetDuration(d)
		}
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		lg.Infow("session duration changed", "from_seconds", old, "to_seconds", req.Duration, "by", actor.Email)
		respondJSON(w, map[string]int64{"duration": req.Duration})
	}
}
