package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/services"
	"licensegate/internal/store"
	"licensegate/pkg/contracts/domain"
)

func newDashboardTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st := store.NewMemoryStore(0)
	svc := services.NewDashboardService(st, nil, nil)
	handler := NewDashboardHandler(svc, nil, nil)

	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)
	return srv, st
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func createTestLicense(t *testing.T, srv *httptest.Server, licensee, host string) domain.LicenseRecord {
	t.Helper()

	resp := doJSON(t, http.MethodPost, srv.URL+"/licenses", map[string]any{
		"licensee": licensee,
		"domain":   host,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var rec domain.LicenseRecord
	decodeJSON(t, resp, &rec)
	return rec
}

func TestCreateLicenseEndpoint(t *testing.T) {
	srv, _ := newDashboardTestServer(t)

	rec := createTestLicense(t, srv, "Acme Corp", "acme.example.com")
	assert.NotEmpty(t, rec.ID)
	assert.True(t, strings.HasPrefix(rec.Token, "LIC-"), "create response carries the full token")
	assert.Equal(t, domain.StatusActive, rec.Status)
}

func TestCreateLicenseEndpoint_ValidationFailure(t *testing.T) {
	srv, _ := newDashboardTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/licenses", map[string]any{
		"domain": "acme.example.com",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			ErrorCode string `json:"error_code"`
			Details   struct {
				Required []string `json:"required"`
			} `json:"details"`
		} `json:"error"`
	}
	decodeJSON(t, resp, &envelope)
	assert.False(t, envelope.Success)
	assert.Equal(t, "VALIDATION_FAILED", envelope.Error.ErrorCode)
	assert.Contains(t, envelope.Error.Details.Required, "licensee")
}

func TestCreateLicenseEndpoint_MalformedBody(t *testing.T) {
	srv, _ := newDashboardTestServer(t)

	resp, err := http.Post(srv.URL+"/licenses", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListLicensesEndpoint_RedactsTokens(t *testing.T) {
	srv, _ := newDashboardTestServer(t)
	created := createTestLicense(t, srv, "Acme", "acme.example.com")

	resp, err := http.Get(srv.URL + "/licenses")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Licenses []domain.LicenseRecord `json:"licenses"`
		Count    int                    `json:"count"`
	}
	decodeJSON(t, resp, &body)
	require.Equal(t, 1, body.Count)
	assert.NotEqual(t, created.Token, body.Licenses[0].Token)
	assert.True(t, strings.HasPrefix(body.Licenses[0].Token, "..."))
}

func TestGetLicenseEndpoint_NotFound(t *testing.T) {
	srv, _ := newDashboardTestServer(t)

	resp, err := http.Get(srv.URL + "/licenses/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRevokeLicenseEndpoint(t *testing.T) {
	srv, _ := newDashboardTestServer(t)
	created := createTestLicense(t, srv, "Acme", "acme.example.com")

	resp := doJSON(t, http.MethodDelete, srv.URL+"/licenses/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec domain.LicenseRecord
	decodeJSON(t, resp, &rec)
	assert.Equal(t, domain.StatusRevoked, rec.Status)
	assert.NotNil(t, rec.RevokedAt)
}

func TestUpdateLicenseEndpoint(t *testing.T) {
	srv, _ := newDashboardTestServer(t)
	created := createTestLicense(t, srv, "Acme", "acme.example.com")

	resp := doJSON(t, http.MethodPut, srv.URL+"/licenses/"+created.ID, map[string]any{
		"tier": "enterprise",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec domain.LicenseRecord
	decodeJSON(t, resp, &rec)
	assert.Equal(t, domain.TierEnterprise, rec.Tier)
}

func TestOverviewEndpoint(t *testing.T) {
	srv, st := newDashboardTestServer(t)
	createTestLicense(t, srv, "Acme", "acme.example.com")
	require.NoError(t, st.AppendUsage(context.Background(), domain.UsageEvent{
		Domain:    "acme.example.com",
		Timestamp: time.Now().UTC(),
	}))

	resp, err := http.Get(srv.URL + "/dashboard")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var overview services.DashboardOverview
	decodeJSON(t, resp, &overview)
	assert.Equal(t, 1, overview.TotalLicenses)
	assert.Equal(t, 1, overview.ActiveLicenses)
	assert.Equal(t, 1, overview.TotalUsage)
}

func TestUsageAnalyticsEndpoint(t *testing.T) {
	srv, st := newDashboardTestServer(t)
	ts := time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendUsage(context.Background(), domain.UsageEvent{
		Domain: "acme.example.com", Path: "/", Timestamp: ts,
	}))
	require.NoError(t, st.AppendUsage(context.Background(), domain.UsageEvent{
		Domain: "other.example.com", Path: "/", Timestamp: ts,
	}))

	resp, err := http.Get(srv.URL + "/analytics/usage?domain=acme.example.com&startDate=2026-05-01&endDate=2026-05-01")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var analytics services.UsageAnalytics
	decodeJSON(t, resp, &analytics)
	assert.Equal(t, 1, analytics.TotalUsage)
	assert.Equal(t, 1, analytics.UsageByDate["2026-05-01"])
}

func TestUsageAnalyticsEndpoint_BadDate(t *testing.T) {
	srv, _ := newDashboardTestServer(t)

	resp, err := http.Get(srv.URL + "/analytics/usage?startDate=notadate")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestViolationsEndpoint(t *testing.T) {
	srv, st := newDashboardTestServer(t)
	require.NoError(t, st.AppendViolation(context.Background(), domain.ViolationEvent{
		Domain: "pirate.example.com", Reason: "unauthorized domain", Severity: "high", Timestamp: time.Now().UTC(),
	}))

	resp, err := http.Get(srv.URL + "/violations?severity=high")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report services.ViolationReport
	decodeJSON(t, resp, &report)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, 1, report.SummaryByDomain["pirate.example.com"])
}

func TestDMCATemplateEndpoint(t *testing.T) {
	srv, _ := newDashboardTestServer(t)

	resp, err := http.Get(srv.URL + "/dmca-template/pirate.example.com")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	var sb bytes.Buffer
	_, err = sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "pirate.example.com")
	assert.Contains(t, sb.String(), "DMCA TAKEDOWN NOTICE")
}

func TestExportLicensesEndpoint(t *testing.T) {
	srv, _ := newDashboardTestServer(t)
	created := createTestLicense(t, srv, "Acme Corp", "acme.example.com")

	resp, err := http.Get(srv.URL + "/export/licenses.csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "licenses.csv")

	var sb bytes.Buffer
	_, err = sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	body := sb.String()
	assert.Contains(t, body, "Acme Corp")
	assert.NotContains(t, body, created.Token, "export must not carry the full token")
}

func TestExportViolationsEndpoint(t *testing.T) {
	srv, st := newDashboardTestServer(t)
	require.NoError(t, st.AppendViolation(context.Background(), domain.ViolationEvent{
		Domain: "pirate.example.com", Reason: "unauthorized domain", Severity: "high", Timestamp: time.Now().UTC(),
	}))

	resp, err := http.Get(srv.URL + "/export/violations.csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sb bytes.Buffer
	_, err = sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "pirate.example.com")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		endOfDay bool
		want     time.Time
		wantErr  bool
	}{
		{name: "empty", input: "", want: time.Time{}},
		{name: "bare date", input: "2026-05-01", want: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)},
		{
			name:     "bare date end of day",
			input:    "2026-05-01",
			endOfDay: true,
			want:     time.Date(2026, 5, 1, 23, 59, 59, 999999999, time.UTC),
		},
		{
			name:  "rfc3339",
			input: "2026-05-01T10:30:00Z",
			want:  time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC),
		},
		{name: "garbage", input: "notadate", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDate(tt.input, tt.endOfDay)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}
