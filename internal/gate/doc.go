// Package gate implements license enforcement for a host application.
// It decides, once per process, whether the application is permitted to run
// under the configured license and domain, and reports usage telemetry to
// the central license server.
//
// # Architecture Overview
//
// The gate consists of several components:
//
//	- Config: typed license configuration resolved from the environment
//	- Domain checker: pure, local allow-list check for the current hostname
//	- Validator: remote license validation against the license server
//	- Reporter: best-effort usage pings and violation alerts
//	- Gate: the state machine orchestrating the above
//
// # Validation Flow
//
// The gate moves through a small state machine:
//
//	unknown -> validating -> allowed | blocked
//
// The local domain check always runs first and, on mismatch, blocks without
// touching the network. The remote validator only runs for hosts that pass
// the local check. A definite denial from the server blocks; a transport
// failure does not, so the application's availability never depends on the
// license server's uptime.
//
// Once blocked, the gate stays blocked for the life of the process. There is
// no self-healing transition; recovery requires a restart.
//
// # Construction
//
// The host application constructs and owns exactly one Gate and passes it
// down. The package performs no work at import time.
package gate
