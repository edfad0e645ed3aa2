package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"reqtrack/internal/models"
)

var eventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_events_total",
		Help: "Audit records written, by action.",
	},
	[]string{"action"},
)

// Collectors exposes the audit metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{eventsTotal}
}

type Entry struct {
	Actor   string
	Action  string
	Details string
	IP      string
}

// Recorder appends audit rows. Record must be given the transaction of the
// mutation it describes so that both commit or neither does.
//
// Inside Recorder.Transaction the audit_events_total counter and the audit
// log line are deferred until commit; elsewhere they are emitted at once.
type Recorder struct {
	lg  *zap.SugaredLogger
	now func() time.Time
}

func NewRecorder(lg *zap.SugaredLogger) *Recorder {
	return &Recorder{lg: lg, now: time.Now}
}

// WithClock replaces the timestamp source.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

func (r *Recorder) Record(tx *gorm.DB, e Entry) error {
	action := strings.TrimSpace(e.Action)
	if action == "" {
		return errors.New("audit: action is required")
	}
	row := models.AuditLog{
		Timestamp: r.now().UTC(),
		Action:    action,
		Details:   e.Details,
		IPAddress: e.IP,
	}
	if e.Actor != "" {
		actor := e.Actor
		row.UserEmail = &actor
	}
	if err := tx.Create(&row).Error; err != nil {
		return err
	}
	e.Action = action
	if ctx := tx.Statement.Context; ctx != nil {
		if p, ok := ctx.Value(pendingKey{}).(*pending); ok {
			p.entries = append(p.entries, e)
			return nil
		}
	}
	r.emit(e)
	return nil
}

type pendingKey struct{}

type pending struct {
	entries []Entry
}

// Transaction runs fn in a database transaction and emits the entries
// recorded through it only after the commit succeeds.
func (r *Recorder) Transaction(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	p := &pending{}
	if err := db.WithContext(context.WithValue(ctx, pendingKey{}, p)).Transaction(fn); err != nil {
		return err
	}
	for _, e := range p.entries {
		r.emit(e)
	}
	return nil
}

func (r *Recorder) emit(e Entry) {
	eventsTotal.WithLabelValues(e.Action).Inc()
	r.lg.Infow("audit", "type", "audit", "action", e.Action, "user_email", e.Actor, "ip", e.IP, "details", e.Details)
}

type Filter struct {
	Start  *time.Time
	End    *time.Time
	Email  string
	Action string
	Limit  int
	Offset int
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// List returns audit rows newest first.
func (r *Recorder) List(ctx context.Context, db *gorm.DB, f Filter) ([]models.AuditLog, error) {
	q := db.WithContext(ctx).Model(&models.AuditLog{})
	if f.Start != nil {
		q = q.Where("timestamp >= ?", f.Start.UTC())
	}
	if f.End != nil {
		q = q.Where("timestamp <= ?", f.End.UTC())
	}
	if s := strings.TrimSpace(f.Email); s != "" {
		q = q.Where("LOWER(user_email) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if s := strings.TrimSpace(f.Action); s != "" {
		q = q.Where("LOWER(action) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	var logs []models.AuditLog
	err := q.Order("timestamp desc").Order("id desc").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, err
}

// ParseDate accepts RFC3339 or a bare YYYY-MM-DD. A bare date used as an
// upper bound covers the whole day.
func ParseDate(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
