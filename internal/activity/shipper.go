package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

// Shipper is an optional secondary destination for activity records, so they
// can reach a SIEM or log aggregator independently of the database. Shipping
// shares the fire-and-forget contract of the write path: failures are logged,
// never propagated.
type Shipper interface {
	// Ship sends one record to the destination.
	Ship(ctx context.Context, rec *models.ActivityLog) error
	// Close cleans up any resources.
	Close() error
}

// ShipperConfig selects and configures one shipping destination.
type ShipperConfig struct {
	Enabled bool           `json:"enabled" mapstructure:"enabled"`
	Type    string         `json:"type" mapstructure:"type"` // "file" or "webhook"
	File    *FileConfig    `json:"file,omitempty" mapstructure:"file"`
	Webhook *WebhookConfig `json:"webhook,omitempty" mapstructure:"webhook"`
}

// FileConfig configures the append-only JSONL file destination.
type FileConfig struct {
	Path string `json:"path" mapstructure:"path"`
	// MaxSizeMB triggers rotation when exceeded; 0 disables rotation.
	MaxSizeMB  int `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int `json:"max_backups" mapstructure:"max_backups"`
}

// WebhookConfig configures the HTTP POST destination.
type WebhookConfig struct {
	URL     string            `json:"url" mapstructure:"url"`
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Timeout time.Duration     `json:"timeout" mapstructure:"timeout"`
}

// NewShipper builds a shipper from configs, skipping disabled entries.
// Returns nil when nothing is enabled, which disables shipping entirely.
func NewShipper(configs []ShipperConfig) (Shipper, error) {
	shippers := make([]Shipper, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		switch cfg.Type {
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			s, err := NewFileShipper(cfg.File)
			if err != nil {
				return nil, fmt.Errorf("failed to create file shipper: %w", err)
			}
			shippers = append(shippers, s)
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shippers = append(shippers, NewWebhookShipper(cfg.Webhook))
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}
	}
	switch len(shippers) {
	case 0:
		return nil, nil
	case 1:
		return shippers[0], nil
	default:
		return &MultiShipper{shippers: shippers}, nil
	}
}

// MultiShipper fans one record out to several destinations. A failing
// destination does not stop delivery to the others.
type MultiShipper struct {
	shippers []Shipper
}

func (ms *MultiShipper) Ship(ctx context.Context, rec *models.ActivityLog) error {
	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, rec); err != nil {
			lastErr = err
			slog.Error("activity shipper error", "error", err)
		}
	}
	return lastErr
}

func (ms *MultiShipper) Close() error {
	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookShipper POSTs each record as JSON to a fixed endpoint.
type WebhookShipper struct {
	cfg    *WebhookConfig
	client *http.Client
}

// NewWebhookShipper creates a webhook shipper with a bounded request timeout.
func NewWebhookShipper(cfg *WebhookConfig) *WebhookShipper {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookShipper{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (ws *WebhookShipper) Ship(ctx context.Context, rec *models.ActivityLog) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal activity record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (ws *WebhookShipper) Close() error { return nil }

// FileShipper appends records to a local file, one JSON object per line, with
// size-based rotation.
type FileShipper struct {
	cfg  *FileConfig
	mu   sync.Mutex
	file *os.File
}

// NewFileShipper opens (or creates) the destination file for appending.
func NewFileShipper(cfg *FileConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log file: %w", err)
	}
	return &FileShipper{cfg: cfg, file: file}, nil
}

func (fs *FileShipper) Ship(ctx context.Context, rec *models.ActivityLog) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		if info, err := fs.file.Stat(); err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				slog.Error("failed to rotate activity log file", "error", err)
			}
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal activity record: %w", err)
	}
	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write activity record: %w", err)
	}
	return nil
}

// rotate shifts path.N backups up by one and restarts the live file.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}
	for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", fs.cfg.Path, i), fmt.Sprintf("%s.%d", fs.cfg.Path, i+1))
	}
	_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")
	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
