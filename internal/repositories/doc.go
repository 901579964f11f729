// Package repositories implements SQLite persistence for backup runs.
//
// [RunRepository] implements [models.Repository] for [models.Run]. Per-playlist outcomes live in the
// run_playlists table and are replaced wholesale on every [RunRepository.Update].
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
