// Package domain contains the core domain models shared by the gate client,
// the dashboard service, and the HTTP transport layer. These types are the
// Single Source of Truth (SSOT) for the license wire and storage formats.
package domain

import (
	"time"
)

// LicenseTier represents the commercial tier of an issued license
type LicenseTier string

const (
	TierTrial      LicenseTier = "trial"
	TierBasic      LicenseTier = "basic"
	TierPro        LicenseTier = "pro"
	TierEnterprise LicenseTier = "enterprise"
)

// Valid reports whether the tier is one of the known values.
func (t LicenseTier) Valid() bool {
	switch t {
	case TierTrial, TierBasic, TierPro, TierEnterprise:
		return true
	}
	return false
}

// LicenseStatus represents the administrative status of a license record
type LicenseStatus string

const (
	StatusActive  LicenseStatus = "active"
	StatusRevoked LicenseStatus = "revoked"
)

// LicenseRecord is an administratively issued grant of use. Records are never
// physically deleted; revocation flips Status and stamps RevokedAt so the
// audit trail survives.
type LicenseRecord struct {
	ID        string        `json:"id" db:"id"`
	Licensee  string        `json:"licensee" db:"licensee" validate:"required"`
	Domain    string        `json:"domain" db:"domain" validate:"required,hostname_rfc1123"`
	Tier      LicenseTier   `json:"tier" db:"tier"`
	Features  []string      `json:"features" db:"features"`
	Token     string        `json:"token,omitempty" db:"token"`
	Status    LicenseStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	ExpiresAt time.Time     `json:"expires_at" db:"expires_at"`
	RevokedAt *time.Time    `json:"revoked_at,omitempty" db:"revoked_at"`
}

// IsActive reports whether the license is usable right now: administratively
// active and not past its expiry. Expiry overrides stored status for this
// computation but never mutates the record.
func (r *LicenseRecord) IsActive(now time.Time) bool {
	return r.Status == StatusActive && now.Before(r.ExpiresAt)
}

// Redacted returns a copy safe for list views and logs: the token is reduced
// to its last 8 characters. The full secret is only ever returned once, from
// the create call.
func (r *LicenseRecord) Redacted() *LicenseRecord {
	cp := *r
	cp.Token = RedactToken(r.Token)
	return &cp
}

// RedactToken reduces an opaque token to at most its last 8 characters.
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "..." + token
	}
	return "..." + token[len(token)-8:]
}

// UsageEvent is an append-only telemetry record describing one usage ping
// from a deployed application.
type UsageEvent struct {
	Domain           string    `json:"domain"`
	Path             string    `json:"path"`
	Timestamp        time.Time `json:"timestamp"`
	UserAgent        string    `json:"user_agent,omitempty"`
	ScreenResolution string    `json:"screen_resolution,omitempty"`
	Timezone         string    `json:"timezone,omitempty"`
}

// ViolationEvent is an append-only telemetry record describing one detected
// license violation (domain mismatch, failed validation).
type ViolationEvent struct {
	Domain    string    `json:"domain"`
	Reason    string    `json:"reason"`
	Severity  string    `json:"severity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
}

// ValidateRequest is the wire payload the gate client posts to the
// validation endpoint.
type ValidateRequest struct {
	Domain    string    `json:"domain"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"userAgent,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
}

// ValidateResponse is the verdict returned by the validation endpoint.
type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// UsagePingRequest is the wire payload for the usage-ping endpoint.
type UsagePingRequest struct {
	Domain           string    `json:"domain"`
	Path             string    `json:"path"`
	Timestamp        time.Time `json:"timestamp"`
	UserAgent        string    `json:"userAgent,omitempty"`
	ScreenResolution string    `json:"screenResolution,omitempty"`
	Timezone         string    `json:"timezone,omitempty"`
}

// ViolationAlertRequest is the wire payload for the violation-alert endpoint.
type ViolationAlertRequest struct {
	Domain    string    `json:"domain"`
	Reason    string    `json:"reason"`
	Severity  string    `json:"severity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"userAgent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
}
