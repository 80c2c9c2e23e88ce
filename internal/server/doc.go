// Package server exposes the loop console over HTTP.
//
// It serves the embedded browser UI and a small JSON API that drives the
// assignment engine. Commands are applied to local state immediately; the
// worker calls they produce run in the background of the request and their
// results never reach the client.
//
// # Endpoints
//
//   - GET /api/status - merged local and worker-reported loop status
//   - POST /api/command - toggle, off or delay
//   - POST /api/set_volume - per-loop playback volume
//   - GET /api/loops - active role and loop catalog
//   - GET /api/roles - known roles
//   - GET /api/get_config, POST /api/save_config - run configuration
//   - GET /health - liveness
//   - GET /metrics - Prometheus exposition
//   - GET /, GET /config - browser pages
//
// # Config-only mode
//
// A server started with ConfigOnly serves just the configuration page and
// endpoints. The engine is built when a configuration is first saved.
package server
