// price_update.go downloads each hospital's transparency file and replaces
// that hospital's price rows with the parsed contents.
package jobs

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

// PriceStore is the price persistence the update job needs. Implemented by
// repositories.PriceRepository.
type PriceStore interface {
	ReplaceForHospital(ctx context.Context, hospitalID string, batch []*models.Price) (int, error)
}

// PriceUpdateJob re-imports prices for every hospital with a known
// transparency file. Each hospital's rows are replaced atomically; a download
// or parse failure for one hospital leaves its previous prices in place and
// does not abort the run.
type PriceUpdateJob struct {
	client    PRAClient
	hospitals HospitalStore
	prices    PriceStore
}

// NewPriceUpdateJob creates the price re-import job.
func NewPriceUpdateJob(client PRAClient, hospitals HospitalStore, prices PriceStore) *PriceUpdateJob {
	return &PriceUpdateJob{client: client, hospitals: hospitals, prices: prices}
}

// Name implements Job.
func (j *PriceUpdateJob) Name() string { return models.JobPriceUpdate }

// Run implements Job.
func (j *PriceUpdateJob) Run(ctx context.Context) (Result, error) {
	var result Result

	hospitals, err := j.hospitals.ListWithTransparencyFiles(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list hospitals with files: %w", err)
	}

	for _, h := range hospitals {
		result.Processed++

		n, err := j.importHospital(ctx, h)
		if err != nil {
			slog.Warn("price import failed", "ccn", h.CCN, "error", err)
			continue
		}
		result.Inserted += n

		if err := j.hospitals.TouchLastImported(ctx, h.ID, time.Now().UTC()); err != nil {
			slog.Warn("failed to record import time", "ccn", h.CCN, "error", err)
		}
	}

	return result, nil
}

func (j *PriceUpdateJob) importHospital(ctx context.Context, h *models.Hospital) (int, error) {
	body, err := j.client.DownloadFile(ctx, *h.TransparencyFileURL)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	batch, err := ParsePriceCSV(body, h.ID)
	if err != nil {
		return 0, err
	}

	return j.prices.ReplaceForHospital(ctx, h.ID, batch)
}

// ParsePriceCSV reads a transparency CSV into price rows. The header row maps
// columns by name, so column order does not matter; unknown columns are
// ignored. Rows without a code or description are skipped rather than
// failing the file, because published files are messy.
func ParsePriceCSV(r io.Reader, hospitalID string) ([]*models.Price, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["code"]; !ok {
		return nil, fmt.Errorf("csv has no code column")
	}

	var batch []*models.Price
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}

		p := &models.Price{
			HospitalID:  hospitalID,
			Code:        field(row, col, "code"),
			CodeType:    strings.ToUpper(field(row, col, "code_type")),
			Description: field(row, col, "description"),
		}
		if p.Code == "" || p.Description == "" {
			continue
		}
		if p.CodeType == "" {
			p.CodeType = models.CodeTypeCPT
		}
		p.GrossCharge = money(field(row, col, "gross_charge"))
		p.DiscountedCash = money(field(row, col, "discounted_cash"))
		if v := field(row, col, "payer_name"); v != "" {
			p.PayerName = &v
		}
		if v := field(row, col, "plan_name"); v != "" {
			p.PlanName = &v
		}

		batch = append(batch, p)
	}

	return batch, nil
}

func field(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// money parses a dollar amount, tolerating currency symbols and thousands
// separators. Unparseable values become nil, not zero: absent and free are
// different facts.
func money(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", ""))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
