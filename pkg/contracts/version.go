// Package contracts defines the shared wire and domain types exchanged
// between the gate client, the license server, and administrative tooling.
package contracts

// Version is the contracts schema version. Bump on breaking changes to any
// wire type under pkg/contracts.
const Version = "1.0.0"
