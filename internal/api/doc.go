// Package api implements the gateway's HTTP API and push channels.
//
// This package provides:
//   - REST endpoints under /api/v1 for devices, countdowns, schedules and sessions
//   - The push hub, a WebSocket every signed-in front-end keeps open
//   - The camera link, an unauthenticated WebSocket the camera board dials
//   - Middleware (request ID, logging, recovery, CORS, body limit, JWT)
//
// # Security
//
// Access tokens are issued by the orchestration service and verified here
// with the shared HS256 secret. They are read from the session cookie, a
// Bearer header or a token query parameter. The push channel checks the
// token before upgrading, so a bad token gets a plain 401.
//
// # Graceful Degradation
//
// With the broker down, reads and push connections keep working; commands
// fail with 503.
package api
