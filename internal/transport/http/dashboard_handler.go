package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/exporter"
	"licensegate/internal/gate"
	"licensegate/internal/infrastructure"
	"licensegate/internal/services"
	"licensegate/internal/store"
)

// DashboardHandler serves the admin license registry API
type DashboardHandler struct {
	service services.DashboardService
	metrics *infrastructure.GateMetrics
	logger  *slog.Logger
}

// NewDashboardHandler creates a dashboard handler. metrics may be nil in tests.
func NewDashboardHandler(service services.DashboardService, metrics *infrastructure.GateMetrics, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{
		service: service,
		metrics: metrics,
		logger:  logger.With(slog.String("handler", "dashboard")),
	}
}

// Routes returns the chi router for the admin API. Authentication is applied
// by the caller so tests can mount the routes bare.
func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/dashboard", h.Overview)

	r.Route("/licenses", func(r chi.Router) {
		r.Get("/", h.ListLicenses)
		r.Post("/", h.CreateLicense)
		r.Get("/{id}", h.GetLicense)
		r.Put("/{id}", h.UpdateLicense)
		// DELETE soft-revokes; records are never physically removed
		r.Delete("/{id}", h.RevokeLicense)
	})

	r.Get("/analytics/usage", h.UsageAnalytics)
	r.Get("/violations", h.Violations)
	r.Get("/dmca-template/{domain}", h.DMCATemplate)

	r.Route("/export", func(r chi.Router) {
		r.Get("/licenses.csv", h.ExportLicenses)
		r.Get("/usage.csv", h.ExportUsage)
		r.Get("/violations.csv", h.ExportViolations)
	})

	return r
}

// Overview handles GET /dashboard
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "overview")

	overview, err := h.service.Overview(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, overview)
}

// ListLicenses handles GET /licenses
func (h *DashboardHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "list")

	recs, err := h.service.ListLicenses(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"licenses": recs, "count": len(recs)})
}

// GetLicense handles GET /licenses/{id}
func (h *DashboardHandler) GetLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "get")

	detail, err := h.service.GetLicense(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, detail)
}

// CreateLicense handles POST /licenses
func (h *DashboardHandler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "create")

	var req services.CreateLicenseRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	rec, err := h.service.CreateLicense(ctx, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license issued",
		slog.String("id", rec.ID),
		slog.String("licensee", rec.Licensee),
	)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rec)
}

// UpdateLicense handles PUT /licenses/{id}
func (h *DashboardHandler) UpdateLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "update")

	var req services.UpdateLicenseRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	rec, err := h.service.UpdateLicense(ctx, chi.URLParam(r, "id"), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, rec)
}

// RevokeLicense handles DELETE /licenses/{id}
func (h *DashboardHandler) RevokeLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "revoke")

	rec, err := h.service.RevokeLicense(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, rec)
}

// UsageAnalytics handles GET /analytics/usage?domain=&startDate=&endDate=
func (h *DashboardHandler) UsageAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "analytics")

	filter := services.AnalyticsFilter{
		Domain: gate.NormalizeHost(r.URL.Query().Get("domain")),
	}

	var err error
	if filter.Start, err = parseDate(r.URL.Query().Get("startDate"), false); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if filter.End, err = parseDate(r.URL.Query().Get("endDate"), true); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	analytics, err := h.service.UsageAnalytics(ctx, filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, analytics)
}

// Violations handles GET /violations?domain=&severity=
func (h *DashboardHandler) Violations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "violations")

	report, err := h.service.ViolationReport(ctx, services.ViolationFilter{
		Domain:   gate.NormalizeHost(r.URL.Query().Get("domain")),
		Severity: r.URL.Query().Get("severity"),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}

// DMCATemplate handles GET /dmca-template/{domain}: a plain-text takedown
// notice template with the offending domain filled in.
func (h *DashboardHandler) DMCATemplate(w http.ResponseWriter, r *http.Request) {
	h.countOp(r, "dmca_template")

	domain := chi.URLParam(r, "domain")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, dmcaTemplate, domain, domain, time.Now().Format("2006-01-02"))
}

const dmcaTemplate = `DMCA TAKEDOWN NOTICE

To whom it may concern,

We have identified unauthorized use of our licensed software on the
domain %s. This deployment is not covered by any license issued by us.

We request the immediate removal of the infringing material hosted at
%s pursuant to 17 U.S.C. 512(c).

I have a good faith belief that use of the material in the manner
complained of is not authorized by the copyright owner, its agent, or
the law. The information in this notification is accurate, and under
penalty of perjury, I am authorized to act on behalf of the owner of
the exclusive rights that are allegedly infringed.

Date: %s
`

// ExportLicenses handles GET /export/licenses.csv. Tokens are redacted;
// exports never carry the secret.
func (h *DashboardHandler) ExportLicenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "export_licenses")

	recs, err := h.service.ListLicenses(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	setCSVHeaders(w, "licenses.csv")
	if err := exporter.NewCSVWriter().WriteLicenses(w, recs); err != nil {
		h.logger.ErrorContext(ctx, "license export failed", slog.String("error", err.Error()))
	}
}

// ExportUsage handles GET /export/usage.csv with the same filters as the
// analytics endpoint
func (h *DashboardHandler) ExportUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "export_usage")

	filter := services.AnalyticsFilter{
		Domain: gate.NormalizeHost(r.URL.Query().Get("domain")),
	}

	var err error
	if filter.Start, err = parseDate(r.URL.Query().Get("startDate"), false); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if filter.End, err = parseDate(r.URL.Query().Get("endDate"), true); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	events, err := h.service.UsageEvents(ctx, filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	setCSVHeaders(w, "usage.csv")
	if err := exporter.NewCSVWriter().WriteUsage(w, events); err != nil {
		h.logger.ErrorContext(ctx, "usage export failed", slog.String("error", err.Error()))
	}
}

// ExportViolations handles GET /export/violations.csv
func (h *DashboardHandler) ExportViolations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.countOp(r, "export_violations")

	report, err := h.service.ViolationReport(ctx, services.ViolationFilter{
		Domain:   gate.NormalizeHost(r.URL.Query().Get("domain")),
		Severity: r.URL.Query().Get("severity"),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	setCSVHeaders(w, "violations.csv")
	if err := exporter.NewCSVWriter().WriteViolations(w, report.Violations); err != nil {
		h.logger.ErrorContext(ctx, "violation export failed", slog.String("error", err.Error()))
	}
}

func setCSVHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

// handleError maps service errors to API errors. Store internals are
// logged server-side only; clients get a generic 500.
func (h *DashboardHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var verr *services.ErrValidation
	switch {
	case errors.As(err, &verr):
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.MissingFields(verr.Fields...)))
	case errors.Is(err, store.ErrNotFound):
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrLicenseNotFound))
	default:
		h.logger.ErrorContext(ctx, "dashboard operation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
	}
}

func (h *DashboardHandler) countOp(r *http.Request, op string) {
	if h.metrics != nil {
		h.metrics.AdminOps.Add(r.Context(), 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}

// parseDate accepts YYYY-MM-DD or RFC 3339. endOfDay extends a bare date to
// the last instant of that day so endDate=2026-01-02 includes the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
