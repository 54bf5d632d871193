// Package server exposes catalog sync control and album covers over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] and [Recover] are installed by [NewRouter].
//
// The [BasicRouter] implementation uses [http.ServeMux] internally, so routes are method-qualified
// patterns and may carry path wildcards.
//
// # Endpoints
//
//	GET  /api/sync/status       → current run, or the latest one when idle
//	POST /api/sync/trigger      → 202 with the new run id, 409 when a run is active
//	POST /api/sync/cancel       → 202, 404 when nothing is running
//	GET  /api/sync/history      → recent sync records (?limit=N)
//	GET  /api/albums/{id}/cover → cover art URL, fetched and cached on first request
//
// Triggered runs record the client host as their origin.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
