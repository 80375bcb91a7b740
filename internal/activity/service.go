package activity

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mssola/useragent"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/repositories"
	"github.com/itz4blitz/glimmr-api-sub005/internal/safego"
	"github.com/itz4blitz/glimmr-api-sub005/internal/telemetry"
)

// writeTimeout bounds each detached persistence attempt. The request has
// already been answered by then; a slow insert is abandoned, not retried.
const writeTimeout = 5 * time.Second

// DefaultSuspiciousLoginThreshold is the failed-login count above which a
// suspicious_activity_detected record is emitted. The boundary is
// strictly-greater-than: exactly this many failures does not trigger.
const DefaultSuspiciousLoginThreshold = 5

// Store is the persistence surface the service writes to and reads from.
// Implemented by repositories.ActivityRepository.
type Store interface {
	Insert(ctx context.Context, rec *models.ActivityLog) error
	GetByID(ctx context.Context, id string) (*models.ActivityLog, error)
	List(ctx context.Context, filters repositories.ActivityFilters, limit, offset int) ([]*models.ActivityLogWithActor, int64, error)
	Stats(ctx context.Context, since, now time.Time) (*repositories.ActivityStats, error)
	CountLoginFailures(ctx context.Context, userID, ipAddress string, since time.Time) (int64, error)
}

// Service is the single choke point for recording and querying activity.
// Writes are fire-and-forget: Record never blocks on the database and never
// returns an error, because audit logging must not break or delay the request
// that triggered it.
type Service struct {
	store     Store
	shipper   Shipper // optional secondary destination; nil disables shipping
	threshold atomic.Int64
}

// NewService constructs a Service. shipper may be nil.
func NewService(store Store, shipper Shipper, suspiciousLoginThreshold int64) *Service {
	s := &Service{store: store, shipper: shipper}
	s.SetSuspiciousThreshold(suspiciousLoginThreshold)
	return s
}

// SetSuspiciousThreshold updates the failed-login threshold. Safe to call
// while requests are in flight; the config reload hook uses this.
func (s *Service) SetSuspiciousThreshold(n int64) {
	if n <= 0 {
		n = DefaultSuspiciousLoginThreshold
	}
	s.threshold.Store(n)
}

// Entry is one loggable event. Metadata is sanitized at the write boundary;
// callers do not need to pre-redact.
type Entry struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]interface{}
	IPAddress    string
	UserAgent    string
	Success      bool
	ErrorMessage string
}

// Record dispatches an activity write without blocking the caller. The record
// is built and sanitized synchronously so later mutation of the caller's
// metadata map cannot race, then persisted on a detached goroutine with its
// own timeout. Persistence failures surface only in the operational log and
// the write-failure counter.
func (s *Service) Record(entry Entry) {
	rec, ok := s.build(entry)
	if !ok {
		return
	}
	safego.Detach("activity-write", writeTimeout, func(ctx context.Context) error {
		s.persist(ctx, rec)
		return nil
	})
}

// RecordLoginFailure records a failed login and then runs the suspicious
// threshold rule on the same detached goroutine, after the insert has landed.
// Counting only after the write means the attempt being recorded is part of
// its own count, so detection fires on the exact attempt that crossed the
// threshold rather than one attempt late.
func (s *Service) RecordLoginFailure(entry Entry) {
	rec, ok := s.build(entry)
	if !ok {
		return
	}
	safego.Detach("activity-login-failure", writeTimeout, func(ctx context.Context) error {
		s.persist(ctx, rec)
		if entry.UserID != "" {
			s.CheckSuspicious(ctx, entry.UserID, entry.IPAddress)
		}
		return nil
	})
}

// build turns an entry into the persisted record form. Sanitization happens
// here, on the caller's goroutine, so the record is immutable before the
// dispatch returns.
func (s *Service) build(entry Entry) (*models.ActivityLog, bool) {
	if entry.Action == "" {
		slog.Warn("dropping activity record with empty action")
		return nil, false
	}

	rec := &models.ActivityLog{
		Action:       entry.Action,
		UserID:       optional(entry.UserID),
		ResourceType: optional(entry.ResourceType),
		ResourceID:   optional(entry.ResourceID),
		Metadata:     Sanitize(enrichUserAgent(entry.Metadata, entry.UserAgent)),
		IPAddress:    optional(entry.IPAddress),
		UserAgent:    optional(entry.UserAgent),
		Success:      entry.Success,
		ErrorMessage: optional(entry.ErrorMessage),
		CreatedAt:    time.Now().UTC(),
	}

	telemetry.ActivityRecordsTotal.WithLabelValues(strconv.FormatBool(entry.Success)).Inc()
	return rec, true
}

// persist writes the record to the store and the optional shipper. Failures
// surface only in the operational log and the write-failure counter; nothing
// above us wants them.
func (s *Service) persist(ctx context.Context, rec *models.ActivityLog) {
	if err := s.store.Insert(ctx, rec); err != nil {
		telemetry.ActivityWriteFailuresTotal.Inc()
		slog.Error("activity record write failed",
			"action", rec.Action, "error", err)
	}
	if s.shipper != nil {
		if err := s.shipper.Ship(ctx, rec); err != nil {
			slog.Error("activity record ship failed",
				"action", rec.Action, "error", err)
		}
	}
}

// ListOptions are the dashboard listing filters. Range is one of "1h", "24h",
// "7d", "30d"; anything else falls back to 24h.
type ListOptions struct {
	Search       string
	Action       string
	ResourceType string
	Success      *bool
	Range        string
	Limit        int
	Offset       int
}

// List returns paginated activity records with actor display fields joined
// in.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*models.ActivityLogWithActor, int64, error) {
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	filters := repositories.ActivityFilters{
		Search:       opts.Search,
		Action:       opts.Action,
		ResourceType: opts.ResourceType,
		Success:      opts.Success,
		Since:        time.Now().UTC().Add(-RangeDuration(opts.Range)),
	}
	return s.store.List(ctx, filters, opts.Limit, opts.Offset)
}

// Get returns a single activity record, or nil when no record has that id.
func (s *Service) Get(ctx context.Context, id string) (*models.ActivityLog, error) {
	return s.store.GetByID(ctx, id)
}

// Stats returns the aggregate dashboard statistics for the given range.
func (s *Service) Stats(ctx context.Context, rng string) (*repositories.ActivityStats, error) {
	now := time.Now().UTC()
	return s.store.Stats(ctx, now.Add(-RangeDuration(rng)), now)
}

// CheckSuspicious applies the threshold rule after a failed login: when the
// (actor, IP) pair has accumulated strictly more than the threshold of
// auth_login_failed records in the trailing hour, a
// suspicious_activity_detected record is emitted. Returns whether the rule
// fired.
func (s *Service) CheckSuspicious(ctx context.Context, userID, ipAddress string) bool {
	count, err := s.store.CountLoginFailures(ctx, userID, ipAddress, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		slog.Error("suspicious activity check failed", "error", err)
		return false
	}
	if count <= s.threshold.Load() {
		return false
	}

	s.Record(Entry{
		UserID:    userID,
		Action:    "suspicious_activity_detected",
		IPAddress: ipAddress,
		Success:   true,
		Metadata:  map[string]interface{}{"failure_count": count, "window": "1h"},
	})
	return true
}

// RangeDuration maps a relative range bucket to its duration. Unknown values
// default to 24h.
func RangeDuration(rng string) time.Duration {
	switch rng {
	case "1h":
		return time.Hour
	case "24h", "":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "30d":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ClientIP extracts the originating client address: the first
// X-Forwarded-For entry, then X-Real-IP, then the socket remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}

// enrichUserAgent adds parsed browser and OS fields to the metadata when a
// user-agent string is available and the caller has not already set them.
// The caller's map is never written to; enrichment works on a copy.
func enrichUserAgent(metadata map[string]interface{}, rawUA string) map[string]interface{} {
	if rawUA == "" {
		return metadata
	}
	if _, ok := metadata["browser"]; ok {
		return metadata
	}

	out := make(map[string]interface{}, len(metadata)+4)
	for k, v := range metadata {
		out[k] = v
	}
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	if name != "" {
		out["browser"] = name
		if version != "" {
			out["browser_version"] = version
		}
	}
	if os := ua.OS(); os != "" {
		out["os"] = os
	}
	if ua.Bot() {
		out["bot"] = true
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
