package tasks

import (
	"fmt"

	"github.com/desertthunder/spotify-backup/internal/services"
)

// ProgressUpdate represents a progress event during a backup run.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// ProgressFunc receives progress updates. It is called synchronously from the goroutine running the backup.
type ProgressFunc func(ProgressUpdate)

// Operation phase enumeration
type Phase int

const (
	ListPlaylists Phase = iota
	MatchPlaylists
	ExportPlaylist
	PlaylistExported
	PlaylistFailed
)

func (p Phase) String() string {
	switch p {
	case ListPlaylists:
		return "list_playlists"
	case MatchPlaylists:
		return "match_playlists"
	case ExportPlaylist:
		return "export_playlist"
	case PlaylistExported:
		return "playlist_exported"
	case PlaylistFailed:
		return "playlist_failed"
	default:
		return ""
	}
}

func send(progress ProgressFunc, update ProgressUpdate) {
	if progress != nil {
		progress(update)
	}
}

func listingUpdate(fetched, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListPlaylists,
		Step:    fetched,
		Total:   total,
		Message: fmt.Sprintf("Listed %d of %d playlists", fetched, total),
	}
}

func matchedUpdate(matched []services.Playlist, configured int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MatchPlaylists,
		Step:    len(matched),
		Total:   configured,
		Message: fmt.Sprintf("Matched %d of %d configured playlists", len(matched), configured),
		Data:    matched,
	}
}

func exportingUpdate(step, total int, p services.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Exporting %s", p.Name),
		Data:    p,
	}
}

func outcomeUpdate(step, total int, o PlaylistOutcome) ProgressUpdate {
	if o.Err != nil {
		return ProgressUpdate{
			Phase:   PlaylistFailed,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("Failed to export %s: %v", o.Playlist.Name, o.Err),
			Data:    o,
		}
	}
	return ProgressUpdate{
		Phase:   PlaylistExported,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Exported %s (%d tracks)", o.Playlist.Name, o.Tracks),
		Data:    o,
	}
}
