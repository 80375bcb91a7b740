package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/activity"
	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/repositories"
)

// recordingStore captures inserted activity records on a channel so tests can
// wait for the detached write to land.
type recordingStore struct {
	inserted chan *models.ActivityLog
}

func newRecordingStore() *recordingStore {
	return &recordingStore{inserted: make(chan *models.ActivityLog, 8)}
}

func (s *recordingStore) Insert(_ context.Context, rec *models.ActivityLog) error {
	s.inserted <- rec
	return nil
}

func (s *recordingStore) GetByID(context.Context, string) (*models.ActivityLog, error) {
	return nil, nil
}

func (s *recordingStore) List(context.Context, repositories.ActivityFilters, int, int) ([]*models.ActivityLogWithActor, int64, error) {
	return nil, 0, nil
}

func (s *recordingStore) Stats(context.Context, time.Time, time.Time) (*repositories.ActivityStats, error) {
	return &repositories.ActivityStats{}, nil
}

func (s *recordingStore) CountLoginFailures(context.Context, string, string, time.Time) (int64, error) {
	return 0, nil
}

func (s *recordingStore) wait(t *testing.T) *models.ActivityLog {
	t.Helper()
	select {
	case rec := <-s.inserted:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for activity record")
		return nil
	}
}

func (s *recordingStore) expectNone(t *testing.T) {
	t.Helper()
	select {
	case rec := <-s.inserted:
		t.Fatalf("unexpected activity record: %s", rec.Action)
	case <-time.After(100 * time.Millisecond):
	}
}

func newActivityRouter(store *recordingStore, register func(*gin.Engine)) *gin.Engine {
	svc := activity.NewService(store, nil, 5)
	r := gin.New()
	r.Use(ErrorHandler(true))
	r.Use(ActivityMiddleware(svc, func() []string {
		return []string{"/health", "/metrics"}
	}))
	register(r)
	return r
}

// ---------------------------------------------------------------------------
// Recording
// ---------------------------------------------------------------------------

func TestActivityMiddleware_RecordsSuccessfulRequest(t *testing.T) {
	store := newRecordingStore()
	r := newActivityRouter(store, func(r *gin.Engine) {
		r.GET("/api/v1/hospitals/:id", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hospitals/123?state=TX", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	rec := store.wait(t)
	if rec.Action != "hospital_view" {
		t.Errorf("action = %q, want %q", rec.Action, "hospital_view")
	}
	if !rec.Success {
		t.Error("expected success = true")
	}
	if rec.ResourceID == nil || *rec.ResourceID != "123" {
		t.Errorf("resource id = %v, want 123", rec.ResourceID)
	}
	if rec.Metadata["status"] != 200 {
		t.Errorf("metadata status = %v, want 200", rec.Metadata["status"])
	}
	// Sanitization rebuilds nested maps, so query lands as map[string]interface{}.
	query, ok := rec.Metadata["query"].(map[string]interface{})
	if !ok || query["state"] != "TX" {
		t.Errorf("metadata query = %v, want state=TX", rec.Metadata["query"])
	}
}

func TestActivityMiddleware_FailedRequestGetsSuffixAndMessage(t *testing.T) {
	store := newRecordingStore()
	r := newActivityRouter(store, func(r *gin.Engine) {
		r.GET("/api/v1/hospitals/:id", func(c *gin.Context) {
			c.Error(apperr.NotFoundf("HOSPITAL_NOT_FOUND", "Hospital with ID %s not found", c.Param("id")))
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hospitals/999", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	rec := store.wait(t)
	if rec.Action != "hospital_view_failed" {
		t.Errorf("action = %q, want %q", rec.Action, "hospital_view_failed")
	}
	if rec.Success {
		t.Error("expected success = false")
	}
	if rec.ErrorMessage == nil || *rec.ErrorMessage == "" {
		t.Error("expected error message on failed record")
	}
	if rec.Metadata["error_code"] != "HOSPITAL_NOT_FOUND" {
		t.Errorf("error_code = %v, want HOSPITAL_NOT_FOUND", rec.Metadata["error_code"])
	}
}

func TestActivityMiddleware_SanitizesQueryParams(t *testing.T) {
	store := newRecordingStore()
	r := newActivityRouter(store, func(r *gin.Engine) {
		r.GET("/api/v1/hospitals", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hospitals?api_token=abc123&state=TX", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	rec := store.wait(t)
	query, ok := rec.Metadata["query"].(map[string]interface{})
	if !ok {
		t.Fatalf("metadata query = %T, want map[string]interface{}", rec.Metadata["query"])
	}
	if query["api_token"] != activity.RedactionMarker {
		t.Errorf("api_token = %q, want redacted", query["api_token"])
	}
	if query["state"] != "TX" {
		t.Errorf("state = %q, want TX", query["state"])
	}
}

// ---------------------------------------------------------------------------
// Skips and overrides
// ---------------------------------------------------------------------------

func TestActivityMiddleware_SkipListEnforced(t *testing.T) {
	store := newRecordingStore()
	r := newActivityRouter(store, func(r *gin.Engine) {
		r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
		r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	})

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
	}

	store.expectNone(t)
}

func TestActivityMiddleware_SkipActivityLogOverride(t *testing.T) {
	store := newRecordingStore()
	r := newActivityRouter(store, func(r *gin.Engine) {
		r.GET("/api/v1/noisy", SkipActivityLog(), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/noisy", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	store.expectNone(t)
}

func TestActivityMiddleware_ActionAndResourceOverrides(t *testing.T) {
	store := newRecordingStore()
	r := newActivityRouter(store, func(r *gin.Engine) {
		r.POST("/api/v1/rpc", WithAction("price_recalculate"), WithResourceType("price"), func(c *gin.Context) {
			c.Status(http.StatusAccepted)
		})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rpc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	rec := store.wait(t)
	if rec.Action != "price_recalculate" {
		t.Errorf("action = %q, want override", rec.Action)
	}
	if rec.ResourceType == nil || *rec.ResourceType != "price" {
		t.Errorf("resource type = %v, want price", rec.ResourceType)
	}
}

func TestActivityMiddleware_ResponseCompletesBeforeWrite(t *testing.T) {
	store := newRecordingStore()
	block := make(chan struct{})
	slowStore := &blockingStore{recordingStore: store, release: block}

	svc := activity.NewService(slowStore, nil, 5)
	r := gin.New()
	r.Use(ActivityMiddleware(svc, func() []string { return nil }))
	r.GET("/api/v1/hospitals", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hospitals", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// The handler has returned and the response is complete even though the
	// store write is still blocked.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	close(block)
	store.wait(t)
}

type blockingStore struct {
	*recordingStore
	release chan struct{}
}

func (s *blockingStore) Insert(ctx context.Context, rec *models.ActivityLog) error {
	<-s.release
	return s.recordingStore.Insert(ctx, rec)
}
