package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"licensegate/pkg/contracts/domain"
)

// Outcome classifies a validation attempt. Transport failures are a
// distinct outcome from denial: the gate fails open on the former and
// closed on the latter.
type Outcome int

const (
	// OutcomeValid means the server explicitly confirmed the license
	OutcomeValid Outcome = iota
	// OutcomeInvalid means the server explicitly denied the license
	OutcomeInvalid
	// OutcomeUnknown means no definite answer was obtained (timeout, DNS
	// failure, 5xx, malformed payload)
	OutcomeUnknown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeUnknown:
		return "unknown"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result is the transient product of one validation attempt, consumed
// immediately by the gate.
type Result struct {
	Outcome   Outcome
	Reason    string
	CheckedAt time.Time
}

// RequestContext carries the client-side descriptors sent alongside the key
type RequestContext struct {
	Hostname  string
	UserAgent string
	Referrer  string
}

// Validator validates a license against a remote authority
type Validator interface {
	Validate(ctx context.Context, cfg *Config, reqCtx RequestContext) Result
}

// HTTPValidator validates licenses by posting to the license server's
// validation endpoint.
type HTTPValidator struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPValidator creates a validator using the given HTTP client. A nil
// client gets a default with no global timeout; the per-call timeout comes
// from the gate config instead.
func NewHTTPValidator(client *http.Client, logger *slog.Logger) *HTTPValidator {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPValidator{
		client: client,
		logger: logger.With(slog.String("component", "license_validator")),
	}
}

// Validate posts identity and context to the validation endpoint and
// interprets the structured verdict. Every call is bounded by the
// configured validation timeout.
func (v *HTTPValidator) Validate(ctx context.Context, cfg *Config, reqCtx RequestContext) Result {
	now := time.Now()

	if cfg.ServerURL == "" {
		return Result{
			Outcome:   OutcomeUnknown,
			Reason:    "no license server configured",
			CheckedAt: now,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ValidationTimeout)
	defer cancel()

	payload := domain.ValidateRequest{
		Domain:    reqCtx.Hostname,
		Key:       cfg.Key,
		Timestamp: now,
		UserAgent: reqCtx.UserAgent,
		Referrer:  reqCtx.Referrer,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Outcome: OutcomeUnknown, Reason: "failed to encode request", CheckedAt: now}
	}

	url := cfg.ServerURL + "/api/license/validate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeUnknown, Reason: "failed to build request", CheckedAt: now}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.WarnContext(ctx, "license validation transport failure",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return Result{Outcome: OutcomeUnknown, Reason: "license server unreachable", CheckedAt: now}
	}
	defer resp.Body.Close()

	// 5xx gives no verdict; 4xx other than the verdict body is treated the
	// same way since the server never encodes denial as a bare status code.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		v.logger.WarnContext(ctx, "license validation non-2xx response",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode),
		)
		return Result{
			Outcome:   OutcomeUnknown,
			Reason:    fmt.Sprintf("license server returned status %d", resp.StatusCode),
			CheckedAt: now,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Result{Outcome: OutcomeUnknown, Reason: "failed to read response", CheckedAt: now}
	}

	var verdict domain.ValidateResponse
	if err := json.Unmarshal(data, &verdict); err != nil {
		v.logger.WarnContext(ctx, "license validation malformed payload",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return Result{Outcome: OutcomeUnknown, Reason: "malformed validation response", CheckedAt: now}
	}

	if verdict.Valid {
		return Result{Outcome: OutcomeValid, CheckedAt: now}
	}

	reason := verdict.Reason
	if reason == "" {
		reason = "license rejected"
	}
	return Result{Outcome: OutcomeInvalid, Reason: reason, CheckedAt: now}
}
