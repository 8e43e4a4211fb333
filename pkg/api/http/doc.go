// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Task submission and listing
//   - Status, log, result and execution graph queries
//   - Token budget and stage registry information
//   - Health checks
//   - Prometheus metrics
//
// Errors are returned in a {"error": {"code", "message"}} envelope.
package http
