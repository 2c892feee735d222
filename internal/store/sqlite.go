package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"licensegate/pkg/contracts/domain"
)

// SQLiteStore is the durable Store backed by a local SQLite database.
// The schema is created on open; licenses are never deleted, and telemetry
// tables are trimmed to the retention cap on every append.
type SQLiteStore struct {
	db        *sql.DB
	maxEvents int
}

// NewSQLiteStore opens (creating if necessary) the database at path
func NewSQLiteStore(path string, maxEvents int) (*SQLiteStore, error) {
	if maxEvents <= 0 {
		maxEvents = 10000
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, maxEvents: maxEvents}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
      CREATE TABLE IF NOT EXISTS licenses (
          id TEXT PRIMARY KEY,
          licensee TEXT NOT NULL,
          domain TEXT NOT NULL,
          tier TEXT NOT NULL,
          features TEXT NOT NULL DEFAULT '[]',
          token TEXT UNIQUE NOT NULL,
          status TEXT NOT NULL,
          created_at DATETIME NOT NULL,
          expires_at DATETIME NOT NULL,
          revoked_at DATETIME
      );

      CREATE TABLE IF NOT EXISTS usage_events (
          id INTEGER PRIMARY KEY AUTOINCREMENT,
          domain TEXT NOT NULL,
          path TEXT NOT NULL,
          timestamp DATETIME NOT NULL,
          user_agent TEXT,
          screen_resolution TEXT,
          timezone TEXT
      );

      CREATE TABLE IF NOT EXISTS violation_events (
          id INTEGER PRIMARY KEY AUTOINCREMENT,
          domain TEXT NOT NULL,
          reason TEXT NOT NULL,
          severity TEXT,
          timestamp DATETIME NOT NULL,
          user_agent TEXT,
          ip TEXT,
          referrer TEXT
      );

      CREATE INDEX IF NOT EXISTS idx_usage_domain_ts ON usage_events(domain, timestamp);
      CREATE INDEX IF NOT EXISTS idx_violation_domain_ts ON violation_events(domain, timestamp);
      `

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const licenseColumns = `id, licensee, domain, tier, features, token, status, created_at, expires_at, revoked_at`

func scanLicense(row interface{ Scan(...any) error }) (*domain.LicenseRecord, error) {
	var rec domain.LicenseRecord
	var features string
	var revokedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.Licensee,
		&rec.Domain,
		&rec.Tier,
		&features,
		&rec.Token,
		&rec.Status,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(features), &rec.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}

	return &rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.LicenseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE id = ?`, id)

	rec, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) FindByToken(ctx context.Context, token string) (*domain.LicenseRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE token = ?`, token)

	rec, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*domain.LicenseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer rows.Close()

	var out []*domain.LicenseRecord
	for rows.Next() {
		rec, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, rec *domain.LicenseRecord) error {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO licenses (`+licenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Licensee,
		rec.Domain,
		rec.Tier,
		string(features),
		rec.Token,
		rec.Status,
		rec.CreatedAt,
		rec.ExpiresAt,
		nullTime(rec.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save license: %w", err)
	}
	return nil
}

// Update runs the read-modify-write inside a transaction so concurrent
// admin requests serialize on the row rather than clobbering each other.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*domain.LicenseRecord) error) (*domain.LicenseRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE id = ?`, id)

	rec, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := fn(rec); err != nil {
		return nil, err
	}

	features, err := json.Marshal(rec.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to encode features: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE licenses SET licensee = ?, domain = ?, tier = ?, features = ?, status = ?, expires_at = ?, revoked_at = ? WHERE id = ?`,
		rec.Licensee,
		rec.Domain,
		rec.Tier,
		string(features),
		rec.Status,
		rec.ExpiresAt,
		nullTime(rec.RevokedAt),
		rec.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update license: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) AppendUsage(ctx context.Context, e domain.UsageEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (domain, path, timestamp, user_agent, screen_resolution, timezone) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Domain, e.Path, e.Timestamp, e.UserAgent, e.ScreenResolution, e.Timezone)
	if err != nil {
		return fmt.Errorf("failed to append usage event: %w", err)
	}
	return s.trim(ctx, "usage_events")
}

func (s *SQLiteStore) AppendViolation(ctx context.Context, e domain.ViolationEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO violation_events (domain, reason, severity, timestamp, user_agent, ip, referrer) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Domain, e.Reason, e.Severity, e.Timestamp, e.UserAgent, e.IP, e.Referrer)
	if err != nil {
		return fmt.Errorf("failed to append violation event: %w", err)
	}
	return s.trim(ctx, "violation_events")
}

// trim enforces the retention cap by deleting the oldest rows beyond it
func (s *SQLiteStore) trim(ctx context.Context, table string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id NOT IN (SELECT id FROM `+table+` ORDER BY id DESC LIMIT ?)`,
		s.maxEvents)
	return err
}

func (s *SQLiteStore) Usage(ctx context.Context, f EventFilter) ([]domain.UsageEvent, error) {
	query := `SELECT domain, path, timestamp, user_agent, screen_resolution, timezone FROM usage_events WHERE 1=1`
	args := []any{}
	query, args = appendFilter(query, args, f)
	query += ` ORDER BY timestamp`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage events: %w", err)
	}
	defer rows.Close()

	var out []domain.UsageEvent
	for rows.Next() {
		var e domain.UsageEvent
		if err := rows.Scan(&e.Domain, &e.Path, &e.Timestamp, &e.UserAgent, &e.ScreenResolution, &e.Timezone); err != nil {
			return nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Violations(ctx context.Context, f EventFilter) ([]domain.ViolationEvent, error) {
	query := `SELECT domain, reason, severity, timestamp, user_agent, ip, referrer FROM violation_events WHERE 1=1`
	args := []any{}
	query, args = appendFilter(query, args, f)
	if f.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, f.Severity)
	}
	query += ` ORDER BY timestamp`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query violation events: %w", err)
	}
	defer rows.Close()

	var out []domain.ViolationEvent
	for rows.Next() {
		var e domain.ViolationEvent
		if err := rows.Scan(&e.Domain, &e.Reason, &e.Severity, &e.Timestamp, &e.UserAgent, &e.IP, &e.Referrer); err != nil {
			return nil, fmt.Errorf("failed to scan violation event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func appendFilter(query string, args []any, f EventFilter) (string, []any) {
	if f.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, f.Domain)
	}
	if !f.Start.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.Start)
	}
	if !f.End.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, f.End)
	}
	return query, args
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
