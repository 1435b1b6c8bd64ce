// Package api hosts the status server. Notable routes:
//   - GET /healthz and /readyz for probes; readyz turns 200 after the first tick.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/bookings and /v1/accounts for read-only booking state.
//   - POST /v1/ticks to start a tick without waiting for the interval.
package api
