// Package repositories implements SQLite persistence for the catalog and its sync runs.
//
// Every repository is bound to a [Querier], so the same code runs against the shared *sql.DB
// or inside the per-row transaction opened by [RunInTx].
//
// Key Implementations:
//   - [ArtistRepository] : artists matched by Spotify artist id or name, with one-time country backfill
//   - [GenreRepository] : case-insensitive unique names, ignored flag and single-level aliases
//   - [VocalStyleRepository] : case-insensitive unique vocal style names
//   - [AlbumRepository] : albums keyed by Spotify album id, genre links, conditional cover/metadata caches
//   - [SyncOperationRepository] : live run state with an atomic single-active-run insert
//   - [SyncRecordRepository] : write-once run summaries
//
// Sequence numbers provide stable, human-readable ordering (e.g. album #42) independent of UUIDs.
// The [NextSequence] function increments per-table counters in dedicated sequence tables.
package repositories
