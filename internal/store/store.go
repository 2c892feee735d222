// Package store defines the persistence interfaces for license records and
// telemetry events, with in-memory and SQLite implementations. Dashboard
// logic is storage-agnostic: it only ever sees these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"licensegate/pkg/contracts/domain"
)

// ErrNotFound is returned when a license ID has no record
var ErrNotFound = errors.New("license not found")

// LicenseStore persists issued license records. Records are never
// physically deleted; revocation is a status change through Update.
type LicenseStore interface {
	// Get returns the record for id, or ErrNotFound
	Get(ctx context.Context, id string) (*domain.LicenseRecord, error)
	// FindByToken returns the record carrying the given token, or ErrNotFound
	FindByToken(ctx context.Context, token string) (*domain.LicenseRecord, error)
	// List returns all records, newest first
	List(ctx context.Context) ([]*domain.LicenseRecord, error)
	// Save inserts a new record
	Save(ctx context.Context, rec *domain.LicenseRecord) error
	// Update applies fn to the stored record under the store's write lock,
	// making read-modify-write sequences race-safe under concurrent admin
	// requests. Returns ErrNotFound if the id does not exist; any error
	// from fn aborts the update.
	Update(ctx context.Context, id string, fn func(*domain.LicenseRecord) error) (*domain.LicenseRecord, error)
}

// EventFilter narrows event queries. Zero values mean "no constraint".
type EventFilter struct {
	Domain   string
	Severity string
	Start    time.Time
	End      time.Time
}

// Matches reports whether a usage event timestamp/domain passes the filter
func (f EventFilter) matchesTime(ts time.Time) bool {
	if !f.Start.IsZero() && ts.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && ts.After(f.End) {
		return false
	}
	return true
}

// MatchesUsage reports whether a usage event passes the filter
func (f EventFilter) MatchesUsage(e domain.UsageEvent) bool {
	if f.Domain != "" && e.Domain != f.Domain {
		return false
	}
	return f.matchesTime(e.Timestamp)
}

// MatchesViolation reports whether a violation event passes the filter
func (f EventFilter) MatchesViolation(e domain.ViolationEvent) bool {
	if f.Domain != "" && e.Domain != f.Domain {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	return f.matchesTime(e.Timestamp)
}

// EventStore persists telemetry events with bounded retention: once the
// configured cap is reached, the oldest events are evicted.
type EventStore interface {
	AppendUsage(ctx context.Context, e domain.UsageEvent) error
	AppendViolation(ctx context.Context, e domain.ViolationEvent) error
	Usage(ctx context.Context, f EventFilter) ([]domain.UsageEvent, error)
	Violations(ctx context.Context, f EventFilter) ([]domain.ViolationEvent, error)
}

// Store bundles both interfaces, as implementations satisfy both
type Store interface {
	LicenseStore
	EventStore
	Close() error
}
