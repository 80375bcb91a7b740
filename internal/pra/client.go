// Package pra implements a client for the Patient Rights Advocate hospital
// price transparency API: hospital directory enumeration, transparency-file
// discovery, and machine-readable file download.
//
// Two separate HTTP clients are used — one for API calls (short timeout) and
// one for file downloads (10-minute timeout). API calls should fail quickly
// when the upstream is unreachable, while transparency files legitimately run
// to hundreds of megabytes and take minutes on slow links.
package pra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/itz4blitz/glimmr-api-sub005/internal/config"
)

// Client talks to the PRA API.
type Client struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client // API requests
	DownloadClient *http.Client // transparency file downloads
}

// NewClient creates a PRA client from configuration.
func NewClient(cfg config.PRAConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:         cfg.APIKey,
		HTTPClient:     &http.Client{Timeout: timeout},
		DownloadClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Hospital is one directory entry from the PRA hospital listing.
type Hospital struct {
	CCN     string `json:"ccn"`
	Name    string `json:"name"`
	State   string `json:"state"`
	City    string `json:"city"`
	Address string `json:"address"`
	Website string `json:"website"`
}

// TransparencyFile describes a hospital's published machine-readable file.
type TransparencyFile struct {
	CCN         string    `json:"ccn"`
	URL         string    `json:"url"`
	Format      string    `json:"format"` // "csv" or "json"
	SizeBytes   int64     `json:"size_bytes"`
	LastUpdated time.Time `json:"last_updated"`
}

type hospitalListResponse struct {
	Data  []Hospital `json:"data"`
	Total int        `json:"total"`
}

type fileListResponse struct {
	Data []TransparencyFile `json:"data"`
}

// ListHospitals enumerates the hospital directory one page at a time. state
// may be empty to list all states. Returns the page and the directory total.
func (c *Client) ListHospitals(ctx context.Context, state string, page, perPage int) ([]Hospital, int, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	if state != "" {
		query.Set("state", state)
	}

	var resp hospitalListResponse
	if err := c.getJSON(ctx, "/v1/hospitals?"+query.Encode(), &resp); err != nil {
		return nil, 0, err
	}
	return resp.Data, resp.Total, nil
}

// ListTransparencyFiles returns the published files for a hospital. Hospitals
// that have not published return an empty slice, not an error.
func (c *Client) ListTransparencyFiles(ctx context.Context, ccn string) ([]TransparencyFile, error) {
	var resp fileListResponse
	err := c.getJSON(ctx, "/v1/hospitals/"+url.PathEscape(ccn)+"/files", &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.Data, nil
}

// DownloadFile streams a transparency file. The caller must close the reader.
func (c *Client) DownloadFile(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.DownloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", fileURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download %s returned status %d", fileURL, resp.StatusCode)
	}
	return resp.Body, nil
}

// statusError carries the upstream HTTP status for callers that treat 404 as
// an empty result.
type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.url, e.status)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{status: resp.StatusCode, url: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
