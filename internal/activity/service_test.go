package activity

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/repositories"
)

// captureStore is a Store fake that hands inserted records to a channel so
// tests can wait for the detached write without polling.
type captureStore struct {
	inserted      chan *models.ActivityLog
	insertErr     error
	loginFailures int64
	countErr      error
}

func newCaptureStore() *captureStore {
	return &captureStore{inserted: make(chan *models.ActivityLog, 10)}
}

func (s *captureStore) Insert(ctx context.Context, rec *models.ActivityLog) error {
	s.inserted <- rec
	return s.insertErr
}

func (s *captureStore) GetByID(ctx context.Context, id string) (*models.ActivityLog, error) {
	return nil, nil
}

func (s *captureStore) List(ctx context.Context, filters repositories.ActivityFilters, limit, offset int) ([]*models.ActivityLogWithActor, int64, error) {
	return nil, 0, nil
}

func (s *captureStore) Stats(ctx context.Context, since, now time.Time) (*repositories.ActivityStats, error) {
	return &repositories.ActivityStats{}, nil
}

func (s *captureStore) CountLoginFailures(ctx context.Context, userID, ipAddress string, since time.Time) (int64, error) {
	return s.loginFailures, s.countErr
}

func waitForRecord(t *testing.T, store *captureStore) *models.ActivityLog {
	t.Helper()
	select {
	case rec := <-store.inserted:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("no record persisted within timeout")
		return nil
	}
}

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

func TestRecord_PersistsAsynchronously(t *testing.T) {
	store := newCaptureStore()
	svc := NewService(store, nil, 0)

	svc.Record(Entry{
		UserID:       "user-1",
		Action:       "hospital_view",
		ResourceType: "hospital",
		ResourceID:   "h-1",
		IPAddress:    "10.0.0.1",
		Success:      true,
		Metadata:     map[string]interface{}{"duration_ms": 12},
	})

	rec := waitForRecord(t, store)
	if rec.Action != "hospital_view" {
		t.Errorf("Action = %q, want hospital_view", rec.Action)
	}
	if rec.UserID == nil || *rec.UserID != "user-1" {
		t.Errorf("UserID = %v, want user-1", rec.UserID)
	}
	if !rec.Success {
		t.Error("Success = false, want true")
	}
	if rec.ID != "" {
		t.Errorf("ID should be assigned by the store, got %q", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestRecord_SanitizesMetadata(t *testing.T) {
	store := newCaptureStore()
	svc := NewService(store, nil, 0)

	svc.Record(Entry{
		Action:  "auth_login",
		Success: true,
		Metadata: map[string]interface{}{
			"password": "hunter2",
			"body":     map[string]interface{}{"refresh_token": "tok"},
		},
	})

	rec := waitForRecord(t, store)
	if rec.Metadata["password"] != RedactionMarker {
		t.Errorf("password = %v, want redaction marker", rec.Metadata["password"])
	}
	body := rec.Metadata["body"].(map[string]interface{})
	if body["refresh_token"] != RedactionMarker {
		t.Errorf("nested token = %v, want redaction marker", body["refresh_token"])
	}
}

func TestRecord_EmptyFieldsBecomeNil(t *testing.T) {
	store := newCaptureStore()
	svc := NewService(store, nil, 0)

	svc.Record(Entry{Action: "price_view", Success: true})

	rec := waitForRecord(t, store)
	if rec.UserID != nil || rec.ResourceType != nil || rec.IPAddress != nil || rec.ErrorMessage != nil {
		t.Errorf("expected nil optional fields, got %+v", rec)
	}
}

func TestRecord_EmptyActionDropped(t *testing.T) {
	store := newCaptureStore()
	svc := NewService(store, nil, 0)

	svc.Record(Entry{Success: true})

	select {
	case rec := <-store.inserted:
		t.Errorf("unexpected record persisted: %+v", rec)
	case <-time.After(100 * time.Millisecond):
		// nothing written — correct
	}
}

func TestRecord_InsertFailureDoesNotPropagate(t *testing.T) {
	store := newCaptureStore()
	store.insertErr = errors.New("connection refused")
	svc := NewService(store, nil, 0)

	// Record must not panic or block even though every insert fails.
	svc.Record(Entry{Action: "hospital_view", Success: true})
	waitForRecord(t, store)
}

func TestRecord_EnrichesUserAgent(t *testing.T) {
	store := newCaptureStore()
	svc := NewService(store, nil, 0)

	svc.Record(Entry{
		Action:    "hospital_view",
		Success:   true,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	})

	rec := waitForRecord(t, store)
	if rec.Metadata["browser"] != "Chrome" {
		t.Errorf("browser = %v, want Chrome", rec.Metadata["browser"])
	}
	if rec.Metadata["os"] == nil {
		t.Error("expected os metadata from user-agent parse")
	}
}

func TestRecord_DoesNotMutateCallerMetadata(t *testing.T) {
	store := newCaptureStore()
	svc := NewService(store, nil, 0)

	metadata := map[string]interface{}{"status": 200}
	svc.Record(Entry{
		Action:    "hospital_view",
		Success:   true,
		Metadata:  metadata,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	})

	rec := waitForRecord(t, store)
	if rec.Metadata["browser"] != "Chrome" {
		t.Errorf("browser = %v, want Chrome", rec.Metadata["browser"])
	}
	if _, ok := metadata["browser"]; ok {
		t.Error("user-agent enrichment wrote into the caller's metadata map")
	}
	if len(metadata) != 1 {
		t.Errorf("caller's metadata = %v, want the original single key", metadata)
	}
}

// ---------------------------------------------------------------------------
// CheckSuspicious
// ---------------------------------------------------------------------------

func TestCheckSuspicious_AboveThreshold(t *testing.T) {
	store := newCaptureStore()
	store.loginFailures = 6
	svc := NewService(store, nil, 5)

	if !svc.CheckSuspicious(context.Background(), "user-1", "10.0.0.1") {
		t.Fatal("expected rule to fire with 6 failures against threshold 5")
	}

	rec := waitForRecord(t, store)
	if rec.Action != "suspicious_activity_detected" {
		t.Errorf("Action = %q, want suspicious_activity_detected", rec.Action)
	}
	if rec.Metadata["failure_count"] != int64(6) {
		t.Errorf("failure_count = %v, want 6", rec.Metadata["failure_count"])
	}
}

func TestCheckSuspicious_AtThresholdDoesNotFire(t *testing.T) {
	store := newCaptureStore()
	store.loginFailures = 5
	svc := NewService(store, nil, 5)

	if svc.CheckSuspicious(context.Background(), "user-1", "10.0.0.1") {
		t.Error("rule fired at exactly the threshold; boundary is strictly-greater-than")
	}

	select {
	case rec := <-store.inserted:
		t.Errorf("unexpected record persisted: %+v", rec)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCheckSuspicious_CountErrorSwallowed(t *testing.T) {
	store := newCaptureStore()
	store.countErr = errors.New("db down")
	svc := NewService(store, nil, 5)

	if svc.CheckSuspicious(context.Background(), "user-1", "10.0.0.1") {
		t.Error("rule must not fire when the count query fails")
	}
}

// persistedCountStore models a real database's view of the failure count: the
// count reflects only inserts that have actually landed, and inserts take a
// while to land.
type persistedCountStore struct {
	mu        sync.Mutex
	inserted  chan *models.ActivityLog
	persisted int64
	delay     time.Duration
}

func (s *persistedCountStore) Insert(ctx context.Context, rec *models.ActivityLog) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	if rec.Action == "auth_login_failed" {
		s.persisted++
	}
	s.mu.Unlock()
	s.inserted <- rec
	return nil
}

func (s *persistedCountStore) GetByID(ctx context.Context, id string) (*models.ActivityLog, error) {
	return nil, nil
}

func (s *persistedCountStore) List(ctx context.Context, filters repositories.ActivityFilters, limit, offset int) ([]*models.ActivityLogWithActor, int64, error) {
	return nil, 0, nil
}

func (s *persistedCountStore) Stats(ctx context.Context, since, now time.Time) (*repositories.ActivityStats, error) {
	return &repositories.ActivityStats{}, nil
}

func (s *persistedCountStore) CountLoginFailures(ctx context.Context, userID, ipAddress string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted, nil
}

func TestRecordLoginFailure_ThresholdCountsOwnRecord(t *testing.T) {
	// Five failures already persisted; the sixth arrives through a store
	// whose inserts are slow. The rule must still see six, not five: the
	// count runs only after this record's write has landed.
	store := &persistedCountStore{
		inserted:  make(chan *models.ActivityLog, 4),
		persisted: 5,
		delay:     30 * time.Millisecond,
	}
	svc := NewService(store, nil, 5)

	svc.RecordLoginFailure(Entry{
		UserID:       "user-1",
		Action:       "auth_login_failed",
		IPAddress:    "10.0.0.1",
		ErrorMessage: "invalid credentials",
	})

	wait := func(want string) *models.ActivityLog {
		t.Helper()
		select {
		case rec := <-store.inserted:
			if rec.Action != want {
				t.Fatalf("Action = %q, want %q", rec.Action, want)
			}
			return rec
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s record persisted within timeout", want)
			return nil
		}
	}

	wait("auth_login_failed")
	detected := wait("suspicious_activity_detected")
	if detected.Metadata["failure_count"] != int64(6) {
		t.Errorf("failure_count = %v, want 6", detected.Metadata["failure_count"])
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestRangeDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"1h", time.Hour},
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
		{"", 24 * time.Hour},
		{"bogus", 24 * time.Hour},
	}
	for _, tc := range cases {
		if got := RangeDuration(tc.in); got != tc.want {
			t.Errorf("RangeDuration(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/x", nil)
	r.RemoteAddr = "192.0.2.9:4431"

	if got := ClientIP(r); got != "192.0.2.9" {
		t.Errorf("socket fallback = %q, want 192.0.2.9", got)
	}

	r.Header.Set("X-Real-Ip", "203.0.113.5")
	if got := ClientIP(r); got != "203.0.113.5" {
		t.Errorf("x-real-ip = %q, want 203.0.113.5", got)
	}

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := ClientIP(r); got != "198.51.100.7" {
		t.Errorf("x-forwarded-for = %q, want first entry 198.51.100.7", got)
	}
}
