package pra

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/itz4blitz/glimmr-api-sub005/internal/config"
)

// newTestClient starts a test server and returns a Client pointing at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(config.PRAConfig{BaseURL: srv.URL, APIKey: "test-key"})
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient(t *testing.T) {
	c := NewClient(config.PRAConfig{BaseURL: "https://api.patientrightsadvocate.org/"})
	if c.BaseURL != "https://api.patientrightsadvocate.org" {
		t.Errorf("BaseURL = %q, want no trailing slash", c.BaseURL)
	}
	if c.HTTPClient == nil || c.DownloadClient == nil {
		t.Error("expected both HTTP clients to be constructed")
	}
	if c.HTTPClient.Timeout != 30*time.Second {
		t.Errorf("API timeout = %v, want 30s default", c.HTTPClient.Timeout)
	}
}

// ---------------------------------------------------------------------------
// ListHospitals
// ---------------------------------------------------------------------------

func TestListHospitals(t *testing.T) {
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/hospitals" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer test-key", got)
		}
		if got := r.URL.Query().Get("state"); got != "TX" {
			t.Errorf("state query = %q, want TX", got)
		}
		json.NewEncoder(w).Encode(hospitalListResponse{
			Data: []Hospital{
				{CCN: "450001", Name: "Example Medical Center", State: "TX", City: "Austin"},
			},
			Total: 412,
		})
	})

	hospitals, total, err := c.ListHospitals(context.Background(), "TX", 1, 100)
	if err != nil {
		t.Fatalf("ListHospitals() error: %v", err)
	}
	if total != 412 {
		t.Errorf("total = %d, want 412", total)
	}
	if len(hospitals) != 1 || hospitals[0].CCN != "450001" {
		t.Errorf("hospitals = %+v", hospitals)
	}
}

func TestListHospitals_UpstreamError(t *testing.T) {
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	})

	if _, _, err := c.ListHospitals(context.Background(), "", 1, 100); err == nil {
		t.Error("expected error for upstream 502")
	}
}

// ---------------------------------------------------------------------------
// ListTransparencyFiles
// ---------------------------------------------------------------------------

func TestListTransparencyFiles(t *testing.T) {
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/hospitals/450001/files" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(fileListResponse{
			Data: []TransparencyFile{
				{CCN: "450001", URL: "https://example.org/prices.csv", Format: "csv"},
			},
		})
	})

	files, err := c.ListTransparencyFiles(context.Background(), "450001")
	if err != nil {
		t.Fatalf("ListTransparencyFiles() error: %v", err)
	}
	if len(files) != 1 || files[0].Format != "csv" {
		t.Errorf("files = %+v", files)
	}
}

func TestListTransparencyFiles_NotFoundIsEmpty(t *testing.T) {
	_, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	files, err := c.ListTransparencyFiles(context.Background(), "999999")
	if err != nil {
		t.Fatalf("ListTransparencyFiles() error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("files = %+v, want empty", files)
	}
}

// ---------------------------------------------------------------------------
// DownloadFile
// ---------------------------------------------------------------------------

func TestDownloadFile(t *testing.T) {
	srv, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("code,description\n99213,Office visit\n"))
	})

	body, err := c.DownloadFile(context.Background(), srv.URL+"/prices.csv")
	if err != nil {
		t.Fatalf("DownloadFile() error: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "code,description\n99213,Office visit\n" {
		t.Errorf("body = %q", data)
	}
}

func TestDownloadFile_NonOK(t *testing.T) {
	srv, c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})

	if _, err := c.DownloadFile(context.Background(), srv.URL+"/prices.csv"); err == nil {
		t.Error("expected error for non-200 download")
	}
}
