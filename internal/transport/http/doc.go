// Package http provides the HTTP transport layer for the license server:
// the authenticated admin dashboard API, the gate-facing validation and
// telemetry ingest endpoints, and health probes. Handlers are thin: they
// bind and validate requests, delegate to the services layer, and render
// structured responses via chi/render.
package http
