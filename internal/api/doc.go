// Package api hosts the lead service HTTP server, its middleware and the REST
// handlers behind the lead capture app. Notable routes:
//   - POST /api/leads scores and stores a lead, rate limited per client.
//   - GET/POST /api/keywords lists and extends the interest keyword catalogue.
//   - GET /api/stats returns the page view, submission and qualified lead counters.
//   - GET / and the rest of the embedded app shell.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus scraping.
//
// The middleware and JSON helpers are exported so the edge gateway shares them.
package api
