package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Phase is the gate's lifecycle phase
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseValidating
	PhaseAllowed
	PhaseBlocked
)

func (p Phase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhaseValidating:
		return "validating"
	case PhaseAllowed:
		return "allowed"
	case PhaseBlocked:
		return "blocked"
	}
	return "invalid"
}

// State is the gate's externally visible state, rendered by the host UI.
// LastResult is nil until the first validation attempt completes.
type State struct {
	Phase      Phase
	LastResult *Result
}

// Environment describes where the host application is running. It stands in
// for the browser/window coupling of a web host so the gate is testable
// without one.
type Environment struct {
	Hostname         string
	Path             string
	UserAgent        string
	Referrer         string
	IP               string
	ScreenResolution string
	Timezone         string
}

// Gate orchestrates the domain check, the remote validator, and the
// telemetry reporter into the license decision for one process. The host
// application constructs exactly one Gate and owns its lifecycle.
type Gate struct {
	cfg       *Config
	validator Validator
	reporter  *Reporter
	logger    *slog.Logger
	onBlocked func(reason string)

	mu    sync.RWMutex
	state State
}

// Option configures optional gate behavior
type Option func(*Gate)

// WithOnBlocked installs a policy hook invoked exactly once when the gate
// enters blocked. What happens next, an error page, a shutdown, a banner,
// is the host's policy, not the gate's.
func WithOnBlocked(fn func(reason string)) Option {
	return func(g *Gate) { g.onBlocked = fn }
}

// New creates a gate. The validator and reporter are injected so hosts and
// tests control all network behavior; nil loggers fall back to the default.
func New(cfg *Config, validator Validator, reporter *Reporter, logger *slog.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		cfg:       cfg,
		validator: validator,
		reporter:  reporter,
		logger:    logger.With(slog.String("component", "license_gate")),
		state:     State{Phase: PhaseUnknown},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns a copy of the current gate state
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Run evaluates the license decision and returns the resulting state.
// The sequence is load-bearing: the local domain check completes before the
// remote validator is ever invoked, so an unauthorized domain costs no
// network round trip. Run is intended to be called once per process;
// a second call on a blocked gate returns the blocked state unchanged.
func (g *Gate) Run(ctx context.Context, env Environment) State {
	if g.State().Phase == PhaseBlocked {
		return g.State()
	}

	// Dev mode: straight to allowed, no network, no telemetry. Local
	// development must never phone home.
	if g.cfg.Flags.DevMode {
		g.logger.InfoContext(ctx, "dev mode enabled, skipping license validation")
		g.setState(State{Phase: PhaseAllowed})
		return g.State()
	}

	g.setState(State{Phase: PhaseValidating})

	if g.cfg.Flags.EnableDomainLock {
		if !IsDomainAllowed(env.Hostname, []string{g.cfg.Domain}) {
			g.logger.WarnContext(ctx, "domain not covered by license",
				slog.String("hostname", env.Hostname),
				slog.String("licensed_domain", g.cfg.Domain),
			)
			g.block(ctx, "unauthorized domain", env)
			return g.State()
		}
	}

	if g.cfg.Flags.EnableRemoteCheck {
		result := g.validator.Validate(ctx, g.cfg, RequestContext{
			Hostname:  env.Hostname,
			UserAgent: env.UserAgent,
			Referrer:  env.Referrer,
		})

		switch result.Outcome {
		case OutcomeInvalid:
			// A definite denial from the server is terminal for the session
			g.logger.WarnContext(ctx, "license denied by server",
				slog.String("reason", result.Reason),
				slog.String("key", g.cfg.RedactedKey()),
			)
			g.blockWithResult(ctx, &result, env)
			return g.State()
		case OutcomeUnknown:
			// Fail open: the product's availability must not depend on the
			// license server's uptime. The next periodic cycle retries.
			g.logger.WarnContext(ctx, "license validation inconclusive, allowing",
				slog.String("reason", result.Reason),
			)
			g.allow(ctx, &result, env)
			return g.State()
		case OutcomeValid:
			g.logger.InfoContext(ctx, "license validated",
				slog.String("key", g.cfg.RedactedKey()),
				slog.String("tier", string(g.cfg.Tier)),
			)
			g.allow(ctx, &result, env)
			return g.State()
		}
	}

	// Remote check disabled: the local checks are the whole decision
	g.allow(ctx, nil, env)
	return g.State()
}

// Shutdown stops the telemetry loop. Call on host teardown so no timer
// outlives the application.
func (g *Gate) Shutdown() {
	if g.reporter != nil {
		g.reporter.Stop()
	}
}

// allow transitions to allowed and starts the usage ping loop
func (g *Gate) allow(ctx context.Context, result *Result, env Environment) {
	g.setState(State{Phase: PhaseAllowed, LastResult: result})

	if g.reporter != nil {
		g.reporter.Start(ctx, UsageSnapshot{
			Domain:           env.Hostname,
			Path:             env.Path,
			UserAgent:        env.UserAgent,
			ScreenResolution: env.ScreenResolution,
			Timezone:         env.Timezone,
		})
	}
}

// block transitions to blocked for a locally detected violation
func (g *Gate) block(ctx context.Context, reason string, env Environment) {
	g.blockWithResult(ctx, &Result{
		Outcome:   OutcomeInvalid,
		Reason:    reason,
		CheckedAt: time.Now(),
	}, env)
}

// blockWithResult records the terminal blocked state, fires exactly one
// violation report, and invokes the host's blocked policy. The ping loop is
// never started for a blocked gate.
func (g *Gate) blockWithResult(ctx context.Context, result *Result, env Environment) {
	g.setState(State{Phase: PhaseBlocked, LastResult: result})

	if g.reporter != nil {
		g.reporter.ReportViolation(ctx, result.Reason, ViolationContext{
			Domain:    env.Hostname,
			UserAgent: env.UserAgent,
			IP:        env.IP,
			Referrer:  env.Referrer,
		})
	}

	if g.onBlocked != nil {
		g.onBlocked(result.Reason)
	}
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}
