package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"reqtrack/internal/models"
	"reqtrack/internal/services"
)

type ownerResp struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Role    string `json:"role"`
}

type documentResp struct {
	ID           uint                         `json:"id"`
	Name         string                       `json:"name"`
	Description  string                       `json:"description"`
	Owner        ownerResp                    `json:"owner"`
	OwnerEmail   string                       `json:"owner_email"`
	CreatedAt    time.Time                    `json:"created_at"`
	UpdatedAt    time.Time                    `json:"updated_at"`
	Requirements []models.DocumentRequirement `json:"requirements"`
}

func documentView(d models.Document) documentResp {
	rows := d.Requirements
	if rows == nil {
		rows = []models.DocumentRequirement{}
	}
	return documentResp{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		Owner:        ownerResp{Email: d.Owner.Email, Name: d.Owner.Name, Picture: d.Owner.Picture, Role: d.Owner.Role},
		OwnerEmail:   d.Owner.Email,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		Requirements: rows,
	}
}

func ListDocuments(svc *services.Documents, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := svc.List(r.Context(), actorFrom(r))
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		out := make([]documentResp, 0, len(docs))
		for _, d := range docs {
			out = append(out, documentView(d))
		}
		respondJSON(w, out)
	}
}

func CreateDocument(svc *services.Documents, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in services.DocumentInput
		if !decodeJSON(w, r, &in) {
			return
		}
		doc, err := svc.Create(r.Context(), actorFrom(r), in)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, documentView(doc))
	}
}

func GetDocument(svc *services.Documents, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		doc, err := svc.Get(r.Context(), actorFrom(r), id)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, documentView(doc))
	}
}

func UpdateDocument(svc *services.Documents, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		var in services.DocumentInput
		if !decodeJSON(w, r, &in) {
			return
		}
		doc, err := svc.Update(r.Context(), actorFrom(r), id, in)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, documentView(doc))
	}
}

type appendReq struct {
	RequirementIDs []uint `json:"requirement_ids"`
}

func AppendDocumentRequirements(svc *services.Documents, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		var req appendReq
		if !decodeJSON(w, r, &req) {
			return
		}
		doc, err := svc.AppendRequirements(r.Context(), actorFrom(r), id, req.RequirementIDs)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, documentView(doc))
	}
}

func CloneDocument(svc *services.Documents, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		doc, err := svc.Clone(r.Context(), actorFrom(r), id)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, documentView(doc))
	}
}

func DeleteDocument(svc *services.Documents, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), actorFrom(r), id); err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, map[string]string{"status": "deleted"})
	}
}
