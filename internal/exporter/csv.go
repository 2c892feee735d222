// Package exporter renders license registry data as CSV for download from
// the admin API.
package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"licensegate/pkg/contracts/domain"
)

// CSVWriter streams registry data as CSV
type CSVWriter struct {
	// BOMPrefix adds a UTF-8 BOM so Excel opens the file correctly
	BOMPrefix bool
}

// NewCSVWriter creates a CSV writer with Excel-friendly defaults
func NewCSVWriter() *CSVWriter {
	return &CSVWriter{BOMPrefix: true}
}

var licenseHeaders = []string{
	"id", "licensee", "domain", "tier", "features", "token",
	"status", "created_at", "expires_at", "revoked_at",
}

// WriteLicenses writes the license registry. Tokens are expected to be
// redacted by the caller before export.
func (w *CSVWriter) WriteLicenses(out io.Writer, recs []*domain.LicenseRecord) error {
	cw, err := w.begin(out, licenseHeaders)
	if err != nil {
		return err
	}
	defer cw.Flush()

	for i, rec := range recs {
		row := []string{
			rec.ID,
			rec.Licensee,
			rec.Domain,
			string(rec.Tier),
			strings.Join(rec.Features, ";"),
			rec.Token,
			string(rec.Status),
			formatTime(rec.CreatedAt),
			formatTime(rec.ExpiresAt),
			formatTimePtr(rec.RevokedAt),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write license %d: %w", i, err)
		}
	}
	return cw.Error()
}

var usageHeaders = []string{
	"domain", "path", "timestamp", "user_agent", "screen_resolution", "timezone",
}

// WriteUsage writes the usage event log
func (w *CSVWriter) WriteUsage(out io.Writer, events []domain.UsageEvent) error {
	cw, err := w.begin(out, usageHeaders)
	if err != nil {
		return err
	}
	defer cw.Flush()

	for i, e := range events {
		row := []string{
			e.Domain, e.Path, formatTime(e.Timestamp),
			e.UserAgent, e.ScreenResolution, e.Timezone,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write usage event %d: %w", i, err)
		}
	}
	return cw.Error()
}

var violationHeaders = []string{
	"domain", "reason", "severity", "timestamp", "user_agent", "ip", "referrer",
}

// WriteViolations writes the violation event log
func (w *CSVWriter) WriteViolations(out io.Writer, events []domain.ViolationEvent) error {
	cw, err := w.begin(out, violationHeaders)
	if err != nil {
		return err
	}
	defer cw.Flush()

	for i, e := range events {
		row := []string{
			e.Domain, e.Reason, e.Severity, formatTime(e.Timestamp),
			e.UserAgent, e.IP, e.Referrer,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write violation event %d: %w", i, err)
		}
	}
	return cw.Error()
}

// begin writes the optional BOM and the header row
func (w *CSVWriter) begin(out io.Writer, headers []string) (*csv.Writer, error) {
	if w.BOMPrefix {
		if _, err := out.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return nil, fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	return cw, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
