// Package services contains the business logic behind the HTTP transport:
// the admin dashboard operations and the server-side license validation
// consumed by deployed gates.
package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"licensegate/internal/gate"
	"licensegate/internal/notify"
	"licensegate/internal/store"
	"licensegate/pkg/contracts/domain"
)

// DefaultDurationDays is the license lifetime applied when a create request
// does not specify one.
const DefaultDurationDays = 365

// tokenPrefix marks issued tokens so support can recognize them on sight
const tokenPrefix = "LIC"

// DashboardService provides the admin-facing license registry operations
// and the validation/ingest operations the gate client drives.
type DashboardService interface {
	// Registry operations
	ListLicenses(ctx context.Context) ([]*domain.LicenseRecord, error)
	GetLicense(ctx context.Context, id string) (*LicenseDetail, error)
	CreateLicense(ctx context.Context, req CreateLicenseRequest) (*domain.LicenseRecord, error)
	UpdateLicense(ctx context.Context, id string, req UpdateLicenseRequest) (*domain.LicenseRecord, error)
	RevokeLicense(ctx context.Context, id string) (*domain.LicenseRecord, error)

	// Reporting
	Overview(ctx context.Context) (*DashboardOverview, error)
	UsageAnalytics(ctx context.Context, f AnalyticsFilter) (*UsageAnalytics, error)
	UsageEvents(ctx context.Context, f AnalyticsFilter) ([]domain.UsageEvent, error)
	ViolationReport(ctx context.Context, f ViolationFilter) (*ViolationReport, error)

	// Gate-facing operations
	ValidateKey(ctx context.Context, req domain.ValidateRequest) domain.ValidateResponse
	IngestUsage(ctx context.Context, e domain.UsageEvent) error
	IngestViolation(ctx context.Context, e domain.ViolationEvent) error
}

// CreateLicenseRequest is the input to CreateLicense. Licensee and Domain
// are required; everything else has defaults.
type CreateLicenseRequest struct {
	Licensee     string             `json:"licensee" validate:"required"`
	Domain       string             `json:"domain" validate:"required,fqdn"`
	Tier         domain.LicenseTier `json:"tier,omitempty"`
	Features     []string           `json:"features,omitempty"`
	DurationDays int                `json:"durationDays,omitempty" validate:"omitempty,min=1,max=3650"`
	Email        string             `json:"email,omitempty" validate:"omitempty,email"`
}

// UpdateLicenseRequest is a partial update; nil fields are left untouched
type UpdateLicenseRequest struct {
	Status   *domain.LicenseStatus `json:"status,omitempty"`
	Tier     *domain.LicenseTier   `json:"tier,omitempty"`
	Features *[]string             `json:"features,omitempty"`
}

// LicenseDetail is a license record joined with its usage statistics
type LicenseDetail struct {
	*domain.LicenseRecord
	IsActive       bool       `json:"is_active"`
	UsageCount     int        `json:"usage_count"`
	ViolationCount int        `json:"violation_count"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
}

// DashboardOverview is the aggregate served by GET /dashboard
type DashboardOverview struct {
	TotalLicenses   int                    `json:"total_licenses"`
	ActiveLicenses  int                    `json:"active_licenses"`
	RevokedLicenses int                    `json:"revoked_licenses"`
	ExpiredLicenses int                    `json:"expired_licenses"`
	TotalUsage      int                    `json:"total_usage"`
	TotalViolations int                    `json:"total_violations"`
	RecentUsage     []domain.UsageEvent    `json:"recent_usage"`
	RecentViolations []domain.ViolationEvent `json:"recent_violations"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// AnalyticsFilter narrows usage analytics
type AnalyticsFilter struct {
	Domain string
	Start  time.Time
	End    time.Time
}

// UsageAnalytics is a pure aggregation over the usage event log
type UsageAnalytics struct {
	TotalUsage    int              `json:"total_usage"`
	UsageByDate   map[string]int   `json:"usage_by_date"`
	TopPaths      []NameCount      `json:"top_paths"`
	TopUserAgents []NameCount      `json:"top_user_agents"`
}

// NameCount is one aggregation bucket
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ViolationFilter narrows the violation report
type ViolationFilter struct {
	Domain   string
	Severity string
}

// ViolationReport summarizes recorded violations
type ViolationReport struct {
	Violations      []domain.ViolationEvent `json:"violations"`
	SummaryByDomain map[string]int          `json:"summary_by_domain"`
	SummaryByReason map[string]int          `json:"summary_by_reason"`
}

// ErrValidation wraps field-level validation failures from CreateLicense
// and UpdateLicense so the transport can answer 400 with the field list.
type ErrValidation struct {
	Fields []string
}

func (e *ErrValidation) Error() string {
	return "invalid or missing fields: " + strings.Join(e.Fields, ", ")
}

// dashboardService implements DashboardService over a Store
type dashboardService struct {
	store    store.Store
	notifier notify.Notifier
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewDashboardService creates the dashboard service. notifier may be nil,
// in which case create never attempts email.
func NewDashboardService(st store.Store, notifier notify.Notifier, logger *slog.Logger) DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &dashboardService{
		store:    st,
		notifier: notifier,
		logger:   logger.With(slog.String("service", "dashboard")),
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *dashboardService) ListLicenses(ctx context.Context) ([]*domain.LicenseRecord, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "license list failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}

	out := make([]*domain.LicenseRecord, len(recs))
	for i, rec := range recs {
		out[i] = rec.Redacted()
	}
	return out, nil
}

func (s *dashboardService) GetLicense(ctx context.Context, id string) (*LicenseDetail, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	usage, err := s.store.Usage(ctx, store.EventFilter{Domain: rec.Domain})
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	violations, err := s.store.Violations(ctx, store.EventFilter{Domain: rec.Domain})
	if err != nil {
		return nil, fmt.Errorf("failed to load violations: %w", err)
	}

	detail := &LicenseDetail{
		LicenseRecord:  rec.Redacted(),
		IsActive:       rec.IsActive(s.now()),
		UsageCount:     len(usage),
		ViolationCount: len(violations),
	}
	for i := range usage {
		if detail.LastUsedAt == nil || usage[i].Timestamp.After(*detail.LastUsedAt) {
			ts := usage[i].Timestamp
			detail.LastUsedAt = &ts
		}
	}
	return detail, nil
}

func (s *dashboardService) CreateLicense(ctx context.Context, req CreateLicenseRequest) (*domain.LicenseRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}

	tier := req.Tier
	if tier == "" {
		tier = domain.TierBasic
	}
	if !tier.Valid() {
		return nil, &ErrValidation{Fields: []string{"tier"}}
	}

	days := req.DurationDays
	if days <= 0 {
		days = DefaultDurationDays
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now()
	rec := &domain.LicenseRecord{
		ID:        uuid.New().String(),
		Licensee:  req.Licensee,
		Domain:    gate.NormalizeHost(req.Domain),
		Tier:      tier,
		Features:  req.Features,
		Token:     token,
		Status:    domain.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.AddDate(0, 0, days),
	}

	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "license create failed",
			slog.String("licensee", req.Licensee),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to save license: %w", err)
	}

	s.logger.InfoContext(ctx, "license created",
		slog.String("id", rec.ID),
		slog.String("licensee", rec.Licensee),
		slog.String("domain", rec.Domain),
		slog.String("tier", string(rec.Tier)),
		slog.String("token", domain.RedactToken(rec.Token)),
	)

	// Notification is best-effort: a mail failure never fails the create
	if s.notifier != nil && req.Email != "" {
		if err := s.notifier.LicenseCreated(ctx, req.Email, rec); err != nil {
			s.logger.WarnContext(ctx, "license notification skipped",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	// The create response is the only place the full token is returned
	return rec, nil
}

func (s *dashboardService) UpdateLicense(ctx context.Context, id string, req UpdateLicenseRequest) (*domain.LicenseRecord, error) {
	if req.Status != nil && *req.Status != domain.StatusActive && *req.Status != domain.StatusRevoked {
		return nil, &ErrValidation{Fields: []string{"status"}}
	}
	if req.Tier != nil && !req.Tier.Valid() {
		return nil, &ErrValidation{Fields: []string{"tier"}}
	}

	rec, err := s.store.Update(ctx, id, func(rec *domain.LicenseRecord) error {
		if req.Status != nil {
			rec.Status = *req.Status
			if *req.Status == domain.StatusRevoked && rec.RevokedAt == nil {
				now := s.now()
				rec.RevokedAt = &now
			}
		}
		if req.Tier != nil {
			rec.Tier = *req.Tier
		}
		if req.Features != nil {
			rec.Features = *req.Features
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "license updated", slog.String("id", id))
	return rec.Redacted(), nil
}

// RevokeLicense flips the record to revoked. Idempotent: revoking an
// already-revoked license returns the same record without error and
// without moving RevokedAt.
func (s *dashboardService) RevokeLicense(ctx context.Context, id string) (*domain.LicenseRecord, error) {
	rec, err := s.store.Update(ctx, id, func(rec *domain.LicenseRecord) error {
		if rec.Status == domain.StatusRevoked {
			return nil
		}
		rec.Status = domain.StatusRevoked
		now := s.now()
		rec.RevokedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "license revoked", slog.String("id", id))
	return rec.Redacted(), nil
}

func (s *dashboardService) Overview(ctx context.Context) (*DashboardOverview, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	usage, err := s.store.Usage(ctx, store.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	violations, err := s.store.Violations(ctx, store.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load violations: %w", err)
	}

	now := s.now()
	overview := &DashboardOverview{
		TotalLicenses:   len(recs),
		TotalUsage:      len(usage),
		TotalViolations: len(violations),
		RecentUsage:     tail(usage, 10),
		RecentViolations: tailViolations(violations, 10),
		GeneratedAt:     now,
	}

	for _, rec := range recs {
		switch {
		case rec.Status == domain.StatusRevoked:
			overview.RevokedLicenses++
		case rec.IsActive(now):
			overview.ActiveLicenses++
		default:
			// Administratively active but past expiry
			overview.ExpiredLicenses++
		}
	}

	return overview, nil
}

func (s *dashboardService) UsageAnalytics(ctx context.Context, f AnalyticsFilter) (*UsageAnalytics, error) {
	events, err := s.store.Usage(ctx, store.EventFilter{
		Domain: f.Domain,
		Start:  f.Start,
		End:    f.End,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	byDate := make(map[string]int)
	byPath := make(map[string]int)
	byAgent := make(map[string]int)
	for _, e := range events {
		byDate[e.Timestamp.UTC().Format("2006-01-02")]++
		if e.Path != "" {
			byPath[e.Path]++
		}
		if e.UserAgent != "" {
			byAgent[e.UserAgent]++
		}
	}

	return &UsageAnalytics{
		TotalUsage:    len(events),
		UsageByDate:   byDate,
		TopPaths:      topN(byPath, 10),
		TopUserAgents: topN(byAgent, 10),
	}, nil
}

// UsageEvents returns the raw usage event log for export
func (s *dashboardService) UsageEvents(ctx context.Context, f AnalyticsFilter) ([]domain.UsageEvent, error) {
	events, err := s.store.Usage(ctx, store.EventFilter{
		Domain: f.Domain,
		Start:  f.Start,
		End:    f.End,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	return events, nil
}

func (s *dashboardService) ViolationReport(ctx context.Context, f ViolationFilter) (*ViolationReport, error) {
	events, err := s.store.Violations(ctx, store.EventFilter{
		Domain:   f.Domain,
		Severity: f.Severity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load violations: %w", err)
	}

	byDomain := make(map[string]int)
	byReason := make(map[string]int)
	for _, e := range events {
		byDomain[e.Domain]++
		byReason[e.Reason]++
	}

	return &ViolationReport{
		Violations:      events,
		SummaryByDomain: byDomain,
		SummaryByReason: byReason,
	}, nil
}

// ValidateKey answers a gate client's validation request. Every denial
// carries a reason; lookups that fail for infrastructure reasons answer
// invalid with a generic reason rather than leaking store internals.
func (s *dashboardService) ValidateKey(ctx context.Context, req domain.ValidateRequest) domain.ValidateResponse {
	rec, err := s.store.FindByToken(ctx, req.Key)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ValidateResponse{Valid: false, Reason: "unknown license key"}
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "validation lookup failed", slog.String("error", err.Error()))
		return domain.ValidateResponse{Valid: false, Reason: "validation unavailable"}
	}

	now := s.now()
	switch {
	case rec.Status == domain.StatusRevoked:
		return domain.ValidateResponse{Valid: false, Reason: "license revoked"}
	case !now.Before(rec.ExpiresAt):
		return domain.ValidateResponse{Valid: false, Reason: "license expired"}
	case !gate.IsDomainAllowed(req.Domain, []string{rec.Domain}):
		return domain.ValidateResponse{Valid: false, Reason: "domain not licensed"}
	}

	return domain.ValidateResponse{Valid: true}
}

func (s *dashboardService) IngestUsage(ctx context.Context, e domain.UsageEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Domain = gate.NormalizeHost(e.Domain)
	return s.store.AppendUsage(ctx, e)
}

func (s *dashboardService) IngestViolation(ctx context.Context, e domain.ViolationEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Domain = gate.NormalizeHost(e.Domain)
	if e.Severity == "" {
		e.Severity = severityFor(e.Reason)
	}
	return s.store.AppendViolation(ctx, e)
}

// severityFor assigns a coarse severity from the violation reason
func severityFor(reason string) string {
	switch {
	case strings.Contains(reason, "domain"):
		return "high"
	case strings.Contains(reason, "revoked"):
		return "high"
	case strings.Contains(reason, "expired"):
		return "medium"
	default:
		return "low"
	}
}

// generateToken creates a fresh opaque license token
func generateToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return tokenPrefix + "-" + token, nil
}

// toValidationError converts validator.ValidationErrors to ErrValidation
func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		return &ErrValidation{Fields: fields}
	}
	return err
}

// topN returns the n highest-count buckets, ties broken by name for
// deterministic output
func topN(counts map[string]int, n int) []NameCount {
	out := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NameCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func tail(events []domain.UsageEvent, n int) []domain.UsageEvent {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}

func tailViolations(events []domain.ViolationEvent, n int) []domain.ViolationEvent {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}
