package gate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"licensegate/pkg/contracts/domain"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Clear anything the environment might carry
	for _, key := range []string{
		"LICENSE_KEY", "LICENSE_DOMAIN", "LICENSE_TIER", "LICENSE_EXPIRES_AT",
		"LICENSE_SERVER_URL", "LICENSE_VALIDATION_TIMEOUT", "LICENSE_PING_INTERVAL",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, UnlicensedKey, cfg.Key)
	assert.Equal(t, domain.TierTrial, cfg.Tier)
	assert.Equal(t, defaultTrialExpiry, cfg.ExpiresAt)
	assert.Equal(t, 8*time.Second, cfg.ValidationTimeout)
	assert.Equal(t, 5*time.Minute, cfg.PingInterval)
	assert.True(t, cfg.Flags.EnableRemoteCheck)
	assert.True(t, cfg.Flags.EnableDomainLock)
	assert.True(t, cfg.Flags.EnableTelemetry)
	assert.False(t, cfg.Flags.DevMode)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("LICENSE_KEY", "LIC-abcdef1234567890")
	t.Setenv("LICENSE_DOMAIN", "example.org")
	t.Setenv("LICENSE_TIER", "pro")
	t.Setenv("LICENSE_SERVER_URL", "https://license.example.org")
	t.Setenv("LICENSE_VALIDATION_TIMEOUT", "3s")
	t.Setenv("LICENSE_FLAGS_DEV_MODE", "true")

	cfg := LoadConfig()

	assert.Equal(t, "LIC-abcdef1234567890", cfg.Key)
	assert.Equal(t, "example.org", cfg.Domain)
	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "https://license.example.org", cfg.ServerURL)
	assert.Equal(t, 3*time.Second, cfg.ValidationTimeout)
	assert.True(t, cfg.Flags.DevMode)
}

func TestLoadConfig_InvalidTierFallsBack(t *testing.T) {
	t.Setenv("LICENSE_KEY", "LIC-abcdef1234567890")
	t.Setenv("LICENSE_TIER", "platinum")

	cfg := LoadConfig()
	assert.Equal(t, domain.TierTrial, cfg.Tier)
}

func TestConfig_RedactedKey(t *testing.T) {
	cfg := &Config{Key: "LIC-abcdefghij12345678"}
	redacted := cfg.RedactedKey()

	assert.NotEqual(t, cfg.Key, redacted)
	assert.True(t, strings.HasPrefix(redacted, "..."))
	assert.True(t, strings.HasSuffix(cfg.Key, strings.TrimPrefix(redacted, "...")))
}

func TestConfig_StringNeverLeaksKey(t *testing.T) {
	cfg := &Config{
		Key:       "LIC-verysecretkey12345678",
		Domain:    "example.org",
		Tier:      domain.TierBasic,
		ExpiresAt: time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC),
	}

	s := cfg.String()
	assert.NotContains(t, s, cfg.Key)
	assert.Contains(t, s, "example.org")
	assert.Contains(t, s, "basic")
}
