package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"reqtrack/internal/database"
)

func Health(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		respondJSON(w, map[string]any{
			"status":         "ok",
			"uptime_seconds": int64(time.Since(started).Seconds()),
			"go_version":     runtime.Version(),
			"platform":       runtime.GOOS + "/" + runtime.GOARCH,
			"goroutines":     runtime.NumGoroutine(),
			"memory_mb":      ms.Alloc / 1024 / 1024,
		})
	}
}

// DBHealth pings the database. Failures are reported in the body with 503.
func DBHealth(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.Ping(ctx, db); err != nil {
			lg.Warnw("db health check failed", "error", err)
			respondStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
			return
		}
		respondJSON(w, map[string]string{"status": "ok"})
	}
}
