package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"reqtrack/internal/audit"
	"reqtrack/internal/models"
)

// ListAuditLogs serves the admin audit view. Query: limit, offset,
// start_date, end_date, email, action.
func ListAuditLogs(db *gorm.DB, rec *audit.Recorder, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := audit.Filter{Email: q.Get("email"), Action: q.Get("action")}
		var err error
		if f.Limit, err = queryInt(q.Get("limit"), audit.DefaultLimit); err != nil {
			respondDetail(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if f.Offset, err = queryInt(q.Get("offset"), 0); err != nil || f.Offset < 0 {
			respondDetail(w, http.StatusBadRequest, "invalid offset")
			return
		}
		if f.Start, err = audit.ParseDate(q.Get("start_date"), false); err != nil {
			respondDetail(w, http.StatusBadRequest, "invalid start_date")
			return
		}
		if f.End, err = audit.ParseDate(q.Get("end_date"), true); err != nil {
			respondDetail(w, http.StatusBadRequest, "invalid end_date")
			return
		}
		logs, err := rec.List(r.Context(), db, f)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		if logs == nil {
			logs = []models.AuditLog{}
		}
		respondJSON(w, logs)
	}
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
