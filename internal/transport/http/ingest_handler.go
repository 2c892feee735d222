package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/services"
	ws "licensegate/internal/websocket"
	"licensegate/pkg/contracts/domain"
)

// IngestHandler serves the gate-facing endpoints: license validation and
// telemetry ingest. Deployed gates carry no admin credential, so these
// routes are unauthenticated and never echo internals.
type IngestHandler struct {
	service services.DashboardService
	metrics *infrastructure.GateMetrics
	live    *ws.Hub
	logger  *slog.Logger
}

// NewIngestHandler creates an ingest handler. metrics and live may be nil
// in tests.
func NewIngestHandler(service services.DashboardService, metrics *infrastructure.GateMetrics, live *ws.Hub, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{
		service: service,
		metrics: metrics,
		live:    live,
		logger:  logger.With(slog.String("handler", "ingest")),
	}
}

// Routes returns the chi router for the gate-facing API
func (h *IngestHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/validate", h.Validate)
	r.Post("/usage-ping", h.UsagePing)
	r.Post("/violation-alert", h.ViolationAlert)

	return r
}

// Validate handles POST /validate
func (h *IngestHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.ValidateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if req.Key == "" || req.Domain == "" {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.MissingFields("key", "domain")))
		return
	}

	verdict := h.service.ValidateKey(ctx, req)

	if h.metrics != nil {
		outcome := "valid"
		if !verdict.Valid {
			outcome = "invalid"
		}
		h.metrics.Validations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}

	if !verdict.Valid {
		h.logger.InfoContext(ctx, "license validation denied",
			slog.String("domain", req.Domain),
			slog.String("key", domain.RedactToken(req.Key)),
			slog.String("reason", verdict.Reason),
		)
	}

	render.JSON(w, r, verdict)
}

// UsagePing handles POST /usage-ping. The response body is ignored by
// clients; 202 acknowledges receipt.
func (h *IngestHandler) UsagePing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.UsagePingRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if req.Domain == "" {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.MissingFields("domain")))
		return
	}

	event := domain.UsageEvent{
		Domain:           req.Domain,
		Path:             req.Path,
		Timestamp:        req.Timestamp,
		UserAgent:        req.UserAgent,
		ScreenResolution: req.ScreenResolution,
		Timezone:         req.Timezone,
	}
	if err := h.service.IngestUsage(ctx, event); err != nil {
		h.logger.ErrorContext(ctx, "usage ingest failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}

	if h.metrics != nil {
		h.metrics.UsagePings.Add(ctx, 1)
	}
	if h.live != nil {
		h.live.BroadcastEvent(ws.TypeUsage, event)
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "accepted"})
}

// ViolationAlert handles POST /violation-alert
func (h *IngestHandler) ViolationAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.ViolationAlertRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if req.Domain == "" || req.Reason == "" {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.MissingFields("domain", "reason")))
		return
	}

	event := domain.ViolationEvent{
		Domain:    req.Domain,
		Reason:    req.Reason,
		Severity:  req.Severity,
		Timestamp: req.Timestamp,
		UserAgent: req.UserAgent,
		IP:        req.IP,
		Referrer:  req.Referrer,
	}
	if err := h.service.IngestViolation(ctx, event); err != nil {
		h.logger.ErrorContext(ctx, "violation ingest failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}

	if h.metrics != nil {
		h.metrics.Violations.Add(ctx, 1)
	}
	if h.live != nil {
		h.live.BroadcastEvent(ws.TypeViolation, event)
	}

	h.logger.WarnContext(ctx, "violation reported",
		slog.String("domain", req.Domain),
		slog.String("reason", req.Reason),
	)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "accepted"})
}
