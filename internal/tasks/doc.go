// Package tasks runs the playlist backup pipeline.
//
// # Export
//
// [PlaylistExporter] walks the offset-based tracks endpoint of one playlist. The first page reports the
// total; the exporter then requests total/50 more pages, numbers every item from 1 in server order, and
// hands the [Snapshot] to a [SnapshotWriter], which writes <dir>/<name>.json.
//
// # Backup
//
// [BackupOrchestrator] lists the authorized user's playlists, keeps the ones named in the allow-list in
// API order, and exports them one at a time. Listing and page-fetch failures abort the run. Write
// failures are counted and the run continues.
//
// # Progress Reporting
//
// [BackupOrchestrator.Run] reports [ProgressUpdate] values through an optional [ProgressFunc].
// [RunTracker.Observe] turns those updates into persisted run history.
package tasks
