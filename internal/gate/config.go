package gate

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"licensegate/pkg/contracts/domain"
)

// UnlicensedKey is the placeholder key used when no license key is
// configured. It never validates remotely but lets the host run through
// the normal gate flow instead of crashing at startup.
const UnlicensedKey = "UNLICENSED"

// defaultTrialExpiry is the expiry assumed when none is configured.
var defaultTrialExpiry = time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)

// FeatureFlags toggles individual gate behaviors
type FeatureFlags struct {
	EnableRemoteCheck bool `envconfig:"ENABLE_REMOTE_CHECK" default:"true"`
	EnableDomainLock  bool `envconfig:"ENABLE_DOMAIN_LOCK" default:"true"`
	EnableTelemetry   bool `envconfig:"ENABLE_TELEMETRY" default:"true"`
	DevMode           bool `envconfig:"DEV_MODE" default:"false"`
}

// Config is the immutable license configuration, assembled once at startup.
// All fields are read-only after Load returns.
type Config struct {
	Key       string             `envconfig:"KEY"`
	Domain    string             `envconfig:"DOMAIN"`
	ExpiresAt time.Time          `envconfig:"EXPIRES_AT"`
	Holder    string             `envconfig:"HOLDER"`
	Tier      domain.LicenseTier `envconfig:"TIER" default:"trial"`
	ServerURL string             `envconfig:"SERVER_URL"`
	Flags     FeatureFlags       `envconfig:"FLAGS"`

	ValidationTimeout time.Duration `envconfig:"VALIDATION_TIMEOUT" default:"8s"`
	PingInterval      time.Duration `envconfig:"PING_INTERVAL" default:"5m"`
}

// LoadConfig resolves the gate configuration from the environment under the
// LICENSE prefix. Unlike the server config, missing values never fail: the
// gate substitutes safe defaults and proceeds to validation, since crashing
// the host application over configuration is worse than running unlicensed.
func LoadConfig() *Config {
	var cfg Config
	// envconfig errors (malformed durations, bad bools) degrade to defaults
	_ = envconfig.Process("LICENSE", &cfg)
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in the safe fallbacks for missing or malformed values
func (c *Config) applyDefaults() {
	if c.Key == "" {
		c.Key = UnlicensedKey
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = defaultTrialExpiry
	}
	if !c.Tier.Valid() {
		c.Tier = domain.TierTrial
	}
	if c.ValidationTimeout <= 0 {
		c.ValidationTimeout = 8 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 5 * time.Minute
	}
}

// RedactedKey returns the key reduced to its displayable suffix. The full
// key is never logged or rendered.
func (c *Config) RedactedKey() string {
	return domain.RedactToken(c.Key)
}

// String implements fmt.Stringer without leaking the key
func (c *Config) String() string {
	return fmt.Sprintf("gate.Config{key: %s, domain: %s, tier: %s, expires: %s}",
		c.RedactedKey(), c.Domain, c.Tier, c.ExpiresAt.Format(time.RFC3339))
}
