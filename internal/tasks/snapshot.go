package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/spotify-backup/internal/shared"
)

// TrackRecord is one numbered entry of a playlist snapshot.
type TrackRecord struct {
	TrackNumber int    `json:"trackNumber"`
	TrackName   string `json:"trackName"`
	ArtistName  string `json:"artistName"`
	AlbumName   string `json:"albumName"`
}

// Snapshot is the persisted export of a single playlist.
type Snapshot struct {
	Tracks []TrackRecord `json:"tracks"`
}

// WriteError wraps a failure to persist a snapshot with the playlist and target path.
//
// It matches both [shared.ErrFileWrite] and the underlying error with [errors.Is].
type WriteError struct {
	Playlist string
	Path     string
	Err      error
}

func (e *WriteError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%v: %s (%s): %v", shared.ErrFileWrite, e.Playlist, e.Path, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", shared.ErrFileWrite, e.Playlist, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{shared.ErrFileWrite, e.Err}
}

// SnapshotWriter writes snapshots as pretty-printed JSON files into a single directory.
//
// The directory is created on first write. Existing files are overwritten.
type SnapshotWriter struct {
	dir string
}

// NewSnapshotWriter creates a writer targeting dir.
func NewSnapshotWriter(dir string) *SnapshotWriter {
	return &SnapshotWriter{dir: dir}
}

// Dir returns the output directory.
func (w *SnapshotWriter) Dir() string {
	return w.dir
}

// Write stores snap as <dir>/<name>.json and returns the path written.
//
// name must already be sanitized; names that would escape the directory are rejected.
func (w *SnapshotWriter) Write(name string, snap *Snapshot) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", &WriteError{Playlist: name, Err: fmt.Errorf("%w: unusable file name", shared.ErrInvalidInput)}
	}

	path := filepath.Join(w.dir, name+".json")

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", &WriteError{Playlist: name, Path: path, Err: err}
	}

	if snap.Tracks == nil {
		snap.Tracks = []TrackRecord{}
	}

	data, err := shared.MarshalJSON(snap, "    ")
	if err != nil {
		return "", &WriteError{Playlist: name, Path: path, Err: err}
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", &WriteError{Playlist: name, Path: path, Err: err}
	}

	return path, nil
}
