package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubValidator records calls and returns a canned result
type stubValidator struct {
	mu     sync.Mutex
	calls  int
	result Result
}

func (s *stubValidator) Validate(ctx context.Context, cfg *Config, reqCtx RequestContext) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.result.CheckedAt = time.Now()
	return s.result
}

func (s *stubValidator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testConfig() *Config {
	cfg := &Config{
		Key:    "LIC-test-key-0123456789",
		Domain: "example.org",
		Flags: FeatureFlags{
			EnableRemoteCheck: true,
			EnableDomainLock:  true,
			EnableTelemetry:   false, // most gate tests need no reporter
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestGate_DevModeSkipsEverything(t *testing.T) {
	cfg := testConfig()
	cfg.Flags.DevMode = true

	validator := &stubValidator{result: Result{Outcome: OutcomeInvalid, Reason: "should not be called"}}
	g := New(cfg, validator, nil, nil)

	state := g.Run(context.Background(), Environment{Hostname: "totally-wrong.example.com"})

	assert.Equal(t, PhaseAllowed, state.Phase)
	assert.Equal(t, 0, validator.callCount(), "dev mode must make zero network calls")
}

func TestGate_DomainMismatchBlocksBeforeRemoteCall(t *testing.T) {
	cfg := testConfig()
	validator := &stubValidator{result: Result{Outcome: OutcomeValid}}
	g := New(cfg, validator, nil, nil)

	state := g.Run(context.Background(), Environment{Hostname: "pirate.example.com"})

	assert.Equal(t, PhaseBlocked, state.Phase)
	require.NotNil(t, state.LastResult)
	assert.Equal(t, "unauthorized domain", state.LastResult.Reason)
	assert.Equal(t, 0, validator.callCount(), "remote validator must not run after local denial")
}

func TestGate_ValidLicenseAllows(t *testing.T) {
	cfg := testConfig()
	validator := &stubValidator{result: Result{Outcome: OutcomeValid}}
	g := New(cfg, validator, nil, nil)

	state := g.Run(context.Background(), Environment{Hostname: "example.org"})

	assert.Equal(t, PhaseAllowed, state.Phase)
	assert.Equal(t, 1, validator.callCount())
}

func TestGate_ExplicitDenialBlocks(t *testing.T) {
	cfg := testConfig()
	validator := &stubValidator{result: Result{Outcome: OutcomeInvalid, Reason: "expired"}}
	g := New(cfg, validator, nil, nil)

	state := g.Run(context.Background(), Environment{Hostname: "example.org"})

	assert.Equal(t, PhaseBlocked, state.Phase)
	require.NotNil(t, state.LastResult)
	assert.Equal(t, "expired", state.LastResult.Reason)
}

func TestGate_TransportFailureFailsOpen(t *testing.T) {
	cfg := testConfig()
	validator := &stubValidator{result: Result{Outcome: OutcomeUnknown, Reason: "license server unreachable"}}
	g := New(cfg, validator, nil, nil)

	state := g.Run(context.Background(), Environment{Hostname: "example.org"})

	assert.Equal(t, PhaseAllowed, state.Phase,
		"connectivity failure must not take the application down")
	require.NotNil(t, state.LastResult)
	assert.Equal(t, OutcomeUnknown, state.LastResult.Outcome)
}

func TestGate_BlockedIsTerminal(t *testing.T) {
	cfg := testConfig()
	validator := &stubValidator{result: Result{Outcome: OutcomeInvalid, Reason: "revoked"}}
	g := New(cfg, validator, nil, nil)

	first := g.Run(context.Background(), Environment{Hostname: "example.org"})
	require.Equal(t, PhaseBlocked, first.Phase)

	// A second run with a now-happy validator must not heal the gate
	validator.result = Result{Outcome: OutcomeValid}
	second := g.Run(context.Background(), Environment{Hostname: "example.org"})

	assert.Equal(t, PhaseBlocked, second.Phase)
	assert.Equal(t, 1, validator.callCount(), "blocked gate must not revalidate")
}

func TestGate_OnBlockedHookFires(t *testing.T) {
	cfg := testConfig()
	validator := &stubValidator{result: Result{Outcome: OutcomeValid}}

	var gotReason string
	g := New(cfg, validator, nil, nil, WithOnBlocked(func(reason string) {
		gotReason = reason
	}))

	g.Run(context.Background(), Environment{Hostname: "wrong.host.net"})

	assert.Equal(t, "unauthorized domain", gotReason)
}

func TestGate_RemoteCheckDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Flags.EnableRemoteCheck = false
	validator := &stubValidator{result: Result{Outcome: OutcomeInvalid, Reason: "should not be called"}}
	g := New(cfg, validator, nil, nil)

	state := g.Run(context.Background(), Environment{Hostname: "example.org"})

	assert.Equal(t, PhaseAllowed, state.Phase)
	assert.Equal(t, 0, validator.callCount())
}

func TestGate_DomainLockDisabledStillValidatesRemotely(t *testing.T) {
	cfg := testConfig()
	cfg.Flags.EnableDomainLock = false
	validator := &stubValidator{result: Result{Outcome: OutcomeValid}}
	g := New(cfg, validator, nil, nil)

	state := g.Run(context.Background(), Environment{Hostname: "anything.example.net"})

	assert.Equal(t, PhaseAllowed, state.Phase)
	assert.Equal(t, 1, validator.callCount())
}

func TestGate_InitialStateUnknown(t *testing.T) {
	g := New(testConfig(), &stubValidator{}, nil, nil)
	assert.Equal(t, PhaseUnknown, g.State().Phase)
	assert.Nil(t, g.State().LastResult)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "unknown", PhaseUnknown.String())
	assert.Equal(t, "validating", PhaseValidating.String())
	assert.Equal(t, "allowed", PhaseAllowed.String())
	assert.Equal(t, "blocked", PhaseBlocked.String())
}
