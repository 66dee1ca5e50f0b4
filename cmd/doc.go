// Package cmd defines the leadcapture CLI.
//
// Architecture overview:
//   - serve: internal/api.Server hosts the landing page, the lead submission endpoint and the keyword
//     catalogue. Submissions are validated, tagged against the keyword catalogue, scored and persisted through
//     a store.LeadRepository (in-memory, or Postgres when db.dsn is set). Submissions are rate limited per client.
//   - edge: internal/edge.Server fronts the lead service for browsers that may lose connectivity. Form posts go
//     through internal/form; when the upstream is unreachable the exact payload is parked in the outbox (SQLite)
//     and replayed by the sync coordinator once the connectivity prober sees the upstream again. Every other
//     request is proxied through internal/router, which serves pages and assets from the generation cache
//     (memory/local/GCS) while offline.
//   - Background sync: registrations for the sync tag are retried with exponential backoff either in process
//     (sync.background=local) or through a Pub/Sub subscription (sync.background=pubsub).
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported on /metrics by both processes; sync passes emit progress events to log and Prometheus
//     sinks; OpenTelemetry spans cover drain passes.
//
// Operational notes:
//   - The outbox never drops entries. Failed deliveries stay queued until a later pass succeeds.
//   - outbox list|count and sync operate on the same outbox file as a running edge; stop the edge first when
//     using them against a non-ephemeral outbox.
//   - Both processes react to SIGINT/SIGTERM by draining HTTP traffic and stopping background loops.
//
// Quick checklist:
//   - Configure env vars: LEADCAPTURE_SERVER_PORT, LEADCAPTURE_EDGE_UPSTREAM_URL, LEADCAPTURE_DB_DSN,
//     LEADCAPTURE_OUTBOX_PATH, LEADCAPTURE_SYNC_BACKGROUND and the pubsub/cache sections as needed.
//   - Run locally: go run . serve, then go run . edge in a second shell.
package cmd
