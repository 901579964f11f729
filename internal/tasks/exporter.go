package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotify-backup/internal/services"
	"github.com/desertthunder/spotify-backup/internal/shared"
	"golang.org/x/oauth2"
)

// maxPrealloc caps the snapshot capacity taken from a server-reported total.
const maxPrealloc = 10 * services.PageSize

// PageFetcher fetches one page of a playlist's tracks.
type PageFetcher interface {
	PlaylistTracksPage(ctx context.Context, token *oauth2.Token, playlistID string, offset int) (*services.TracksPage, error)
}

// ExportResult is a written snapshot and where it went.
type ExportResult struct {
	Snapshot *Snapshot
	Path     string
}

// PlaylistExporter walks every page of a playlist and writes the assembled snapshot.
type PlaylistExporter struct {
	pages  PageFetcher
	writer *SnapshotWriter
	logger *log.Logger
}

// NewPlaylistExporter creates an exporter reading pages from pages and persisting through writer.
func NewPlaylistExporter(pages PageFetcher, writer *SnapshotWriter, logger *log.Logger) *PlaylistExporter {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PlaylistExporter{pages: pages, writer: writer, logger: logger}
}

// Export collects the playlist's tracks and writes them under the sanitized playlist name.
//
// A page-fetch failure returns an error matching [shared.ErrPageFetch] and nothing is written.
// A write failure returns a [*WriteError].
func (e *PlaylistExporter) Export(ctx context.Context, token *oauth2.Token, name, playlistID string) (*ExportResult, error) {
	snap, err := e.Collect(ctx, token, name, playlistID)
	if err != nil {
		return nil, err
	}

	path, err := e.writer.Write(shared.SanitizeName(name), snap)
	if err != nil {
		return nil, err
	}

	e.logger.Info("snapshot saved", "playlist", name, "path", path, "tracks", len(snap.Tracks))
	return &ExportResult{Snapshot: snap, Path: path}, nil
}

// Collect fetches every page of the playlist in order and numbers the tracks from 1.
//
// The first page reports the total; total/[services.PageSize] further pages are then requested at offsets
// 50, 100, ... When total is an exact multiple of the page size the last request lands one past the end
// and returns no items.
func (e *PlaylistExporter) Collect(ctx context.Context, token *oauth2.Token, name, playlistID string) (*Snapshot, error) {
	first, err := e.fetch(ctx, token, playlistID, 0)
	if err != nil {
		return nil, err
	}

	total := max(first.Total, 0)
	e.logger.Info("exporting playlist", "playlist", name, "total", total)

	snap := &Snapshot{Tracks: make([]TrackRecord, 0, min(total, maxPrealloc))}
	snap.appendPage(first)

	additional := total / services.PageSize
	for n := 1; n <= additional; n++ {
		page, err := e.fetch(ctx, token, playlistID, n*services.PageSize)
		if err != nil {
			return nil, err
		}
		snap.appendPage(page)
	}

	if len(snap.Tracks) != total {
		e.logger.Warn("track count differs from reported total", "playlist", name, "total", total, "collected", len(snap.Tracks))
	}

	return snap, nil
}

func (e *PlaylistExporter) fetch(ctx context.Context, token *oauth2.Token, playlistID string, offset int) (*services.TracksPage, error) {
	e.logger.Debug("fetching page", "playlist_id", playlistID, "offset", offset)

	page, err := e.pages.PlaylistTracksPage(ctx, token, playlistID, offset)
	if err != nil {
		if !errors.Is(err, shared.ErrPageFetch) {
			err = fmt.Errorf("%w: %v", shared.ErrPageFetch, err)
		}
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("%w: playlist %s offset %d: empty response", shared.ErrPageFetch, playlistID, offset)
	}
	return page, nil
}

// appendPage numbers the page's items after the tracks already collected.
func (s *Snapshot) appendPage(page *services.TracksPage) {
	for _, item := range page.Items {
		track := item.Flatten()
		s.Tracks = append(s.Tracks, TrackRecord{
			TrackNumber: len(s.Tracks) + 1,
			TrackName:   track.Title,
			ArtistName:  track.Artist,
			AlbumName:   track.Album,
		})
	}
}
