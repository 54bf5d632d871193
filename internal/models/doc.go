// Package models defines domain entities and persistence interfaces for the release catalog.
//
// The package contains two categories of types:
//
// 1. Catalog entities, created and updated by the sync engine
//   - [Artist] : Performing artist, optionally keyed by a Spotify artist id
//   - [Genre] : Genre with an optional single-level alias to a canonical genre
//   - [VocalStyle] : Vocal delivery bucket (clean, harsh, mixed, instrumental, ...)
//   - [Album] : Release keyed by its 22 character Spotify album id
//
// 2. Sync bookkeeping
//   - [SyncOperation] : Live, mutable state of one run, polled by status readers
//   - [SyncRecord] : Write-once historical summary of a finished run
//
// All persistent entities implement the [Model] interface providing ID, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
package models
