package handlers

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"reqtrack/internal/models"
	"reqtrack/internal/services"
)

const csvFilename = "sample-requirements.csv"

func ListRequirements(svc *services.Requirements, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqs, err := svc.List(r.Context())
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		if reqs == nil {
			reqs = []models.Requirement{}
		}
		respondJSON(w, reqs)
	}
}

func GetRequirement(svc *services.Requirements, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		req, err := svc.Get(r.Context(), id)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, req)
	}
}

func CreateRequirement(svc *services.Requirements, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in services.RequirementInput
		if !decodeJSON(w, r, &in) {
			return
		}
		req, err := svc.Create(r.Context(), actorFrom(r), in)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, req)
	}
}

func UpdateRequirement(svc *services.Requirements, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		var in services.RequirementInput
		if !decodeJSON(w, r, &in) {
			return
		}
		req, err := svc.Update(r.Context(), actorFrom(r), id, in)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, req)
	}
}

func DeleteRequirement(svc *services.Requirements, lg *zap.SugaredLogger) http.HandlerFunc {
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

// BulkUploadRequirements accepts either a multipart form with a "file" part
// or a raw text/csv body.
func BulkUploadRequirements(svc *services.Requirements, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var src io.Reader = r.Body
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			f, _, err := r.FormFile("file")
			if err != nil {
				if errors.Is(err, http.ErrMissingFile) {
					respondDetail(w, http.StatusBadRequest, "missing file")
					return
				}
				respondDetail(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
				return
			}
			defer f.Close()
			src = f
		}
		n, err := svc.BulkImport(r.Context(), actorFrom(r), src)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, map[string]int{"count": n})
	}
}

type massEditReq struct {
	IDs     []uint            `json:"ids"`
	Updates services.MassEdit `json:"updates"`
}

func MassEditRequirements(svc *services.Requirements, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req massEditReq
		if !decodeJSON(w, r, &req) {
			return
		}
		n, err := svc.MassEdit(r.Context(), actorFrom(r), req.IDs, req.Updates)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, map[string]int64{"updated": n})
	}
}

type massDeleteReq struct {
	IDs []uint `json:"ids"`
}

func MassDeleteRequirements(svc *services.Requirements, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req massDeleteReq
		if !decodeJSON(w, r, &req) {
			return
		}
		n, err := svc.MassDelete(r.Context(), actorFrom(r), req.IDs)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, map[string]int64{"deleted": n})
	}
}

func RequirementsTemplate(lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCSVHeaders(w, csvFilename)
		if err := services.WriteRequirementsCSV(w, nil); err != nil {
			lg.Errorw("write csv template", "error", err)
		}
	}
}

func ExportRequirements(svc *services.Requirements, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := svc.Export(r.Context(), &buf); err != nil {
			respondError(w, r, lg, err)
			return
		}
		setCSVHeaders(w, "requirements.csv")
		_, _ = buf.WriteTo(w)
	}
}

func setCSVHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}
