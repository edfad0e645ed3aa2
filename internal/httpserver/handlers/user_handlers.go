package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"reqtrack/internal/models"
	"reqtrack/internal/services"
)

type userResp struct {
	ID        uint       `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Picture   string     `json:"picture"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func ListUsers(svc *services.Users, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := svc.List(r.Context())
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		out := make([]userResp, 0, len(users))
		for _, u := range users {
			out = append(out, userResp{ID: u.ID, Email: u.Email, Name: u.Name, Picture: u.Picture, Role: u.Role, CreatedAt: u.CreatedAt, LastLogin: u.LastLogin})
		}
		respondJSON(w, out)
	}
}

type promoteReq struct {
	Email     string `json:"email"`
	MakeAdmin *bool  `json:"make_admin"`
}

func PromoteUser(svc *services.Users, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req promoteReq
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.MakeAdmin == nil {
			respondDetail(w, http.StatusBadRequest, "make_admin is required")
			return
		}
		role := models.RoleNormal
		if *req.MakeAdmin {
			role = models.RoleAdmin
		}
		u, err := svc.SetRole(r.Context(), actorFrom(r), req.Email, role)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, map[string]string{"email": u.Email, "role": u.Role})
	}
}
