package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"licensegate/pkg/contracts/domain"
)

// UsageSnapshot describes one usage observation. Fields beyond Domain and
// Path are coarse client descriptors already visible to any web request.
type UsageSnapshot struct {
	Domain           string
	Path             string
	UserAgent        string
	ScreenResolution string
	Timezone         string
}

// ViolationContext carries the request context attached to a violation alert
type ViolationContext struct {
	Domain    string
	UserAgent string
	IP        string
	Referrer  string
}

// Reporter sends best-effort telemetry to the license server. Every send is
// fire-and-forget: failures are logged at debug level and swallowed, never
// surfaced to the host application. Reporting is a pure side channel and
// plays no part in the gate decision.
type Reporter struct {
	cfg    *Config
	client *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	reported map[string]bool // violation reasons already sent
}

// NewReporter creates a telemetry reporter for the given configuration
func NewReporter(cfg *Config, client *http.Client, logger *slog.Logger) *Reporter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		cfg:      cfg,
		client:   client,
		logger:   logger.With(slog.String("component", "license_telemetry")),
		reported: make(map[string]bool),
	}
}

// Start begins the periodic usage ping loop: one ping shortly after start,
// then one per configured interval until Stop is called or ctx is canceled.
// Calling Start twice is a no-op.
func (t *Reporter) Start(ctx context.Context, snapshot UsageSnapshot) {
	if !t.cfg.Flags.EnableTelemetry {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.pingLoop(ctx, snapshot)
}

// Stop cancels the ping loop and waits for it to exit. Safe to call
// multiple times and before Start.
func (t *Reporter) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// pingLoop fires the initial ping and then ticks at the configured interval
func (t *Reporter) pingLoop(ctx context.Context, snapshot UsageSnapshot) {
	defer close(t.done)

	t.ReportUsage(ctx, snapshot)

	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.ReportUsage(ctx, snapshot)
		}
	}
}

// ReportUsage sends a single usage ping. One best-effort attempt; errors
// are swallowed.
func (t *Reporter) ReportUsage(ctx context.Context, snapshot UsageSnapshot) {
	if !t.cfg.Flags.EnableTelemetry {
		return
	}

	payload := domain.UsagePingRequest{
		Domain:           snapshot.Domain,
		Path:             snapshot.Path,
		Timestamp:        time.Now(),
		UserAgent:        snapshot.UserAgent,
		ScreenResolution: snapshot.ScreenResolution,
		Timezone:         snapshot.Timezone,
	}

	t.post(ctx, "/api/license/usage-ping", payload)
}

// ReportViolation sends a violation alert at most once per reason for the
// life of the process, so a blocked application cannot generate a
// violation storm.
func (t *Reporter) ReportViolation(ctx context.Context, reason string, vctx ViolationContext) {
	if !t.cfg.Flags.EnableTelemetry {
		return
	}

	t.mu.Lock()
	if t.reported[reason] {
		t.mu.Unlock()
		return
	}
	t.reported[reason] = true
	t.mu.Unlock()

	payload := domain.ViolationAlertRequest{
		Domain:    vctx.Domain,
		Reason:    reason,
		Timestamp: time.Now(),
		UserAgent: vctx.UserAgent,
		IP:        vctx.IP,
		Referrer:  vctx.Referrer,
	}

	t.post(ctx, "/api/license/violation-alert", payload)
}

// post performs one best-effort JSON POST. The response is ignored; any
// error is logged at debug and dropped.
func (t *Reporter) post(ctx context.Context, path string, payload interface{}) {
	defer func() {
		// Telemetry must never take down the host, even on a panic from a
		// misbehaving transport.
		if r := recover(); r != nil {
			t.logger.DebugContext(ctx, "telemetry panic suppressed", slog.Any("panic", r))
		}
	}()

	if t.cfg.ServerURL == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		t.logger.DebugContext(ctx, "telemetry encode failed", slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.ServerURL+path, bytes.NewReader(body))
	if err != nil {
		t.logger.DebugContext(ctx, "telemetry request build failed", slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.DebugContext(ctx, "telemetry send failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		t.logger.DebugContext(ctx, "telemetry rejected",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
	}
}
