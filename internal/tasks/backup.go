package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotify-backup/internal/services"
	"github.com/desertthunder/spotify-backup/internal/shared"
	"golang.org/x/oauth2"
)

// PlaylistLister fetches one page of the authorized user's playlists.
type PlaylistLister interface {
	UserPlaylistsPage(ctx context.Context, token *oauth2.Token, offset int) (*services.PlaylistsPage, error)
}

// Exporter exports a single playlist.
type Exporter interface {
	Export(ctx context.Context, token *oauth2.Token, name, playlistID string) (*ExportResult, error)
}

// PlaylistOutcome is the result of exporting one matched playlist.
type PlaylistOutcome struct {
	Playlist services.Playlist
	Path     string
	Tracks   int
	Err      error
}

// BackupResult summarizes a backup run.
type BackupResult struct {
	Configured int                 // Size of the allow-list
	Matched    []services.Playlist // Playlists selected for export, in API order
	Exported   []PlaylistOutcome   // Successful exports
	Failed     []PlaylistOutcome   // Exports that did not complete, including the one that aborted a run
	Missing    []string            // Allow-listed names not found in the account
	Tracks     int                 // Tracks written across all snapshots
}

// BackupOrchestrator enumerates the user's playlists and exports the ones named in the allow-list.
type BackupOrchestrator struct {
	lister    PlaylistLister
	exporter  Exporter
	allowList []string
	logger    *log.Logger
}

// NewBackupOrchestrator creates an orchestrator for the given allow-list. The list is copied.
func NewBackupOrchestrator(lister PlaylistLister, exporter Exporter, allowList []string, logger *log.Logger) *BackupOrchestrator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &BackupOrchestrator{
		lister:    lister,
		exporter:  exporter,
		allowList: slices.Clone(allowList),
		logger:    logger,
	}
}

// Configured returns the number of allow-listed playlist names.
func (o *BackupOrchestrator) Configured() int {
	return len(o.allowList)
}

// Playlists lists every playlist of the authorized user, page by page.
func (o *BackupOrchestrator) Playlists(ctx context.Context, token *oauth2.Token, progress ProgressFunc) ([]services.Playlist, error) {
	first, err := o.list(ctx, token, 0)
	if err != nil {
		return nil, err
	}

	playlists := make([]services.Playlist, 0, max(first.Total, len(first.Items)))
	for _, p := range first.Items {
		playlists = append(playlists, p.Playlist())
	}
	send(progress, listingUpdate(len(playlists), first.Total))

	for offset := services.PageSize; offset < first.Total; offset += services.PageSize {
		page, err := o.list(ctx, token, offset)
		if err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}
		for _, p := range page.Items {
			playlists = append(playlists, p.Playlist())
		}
		send(progress, listingUpdate(len(playlists), first.Total))
	}

	o.logger.Info("listed playlists", "count", len(playlists))
	return playlists, nil
}

func (o *BackupOrchestrator) list(ctx context.Context, token *oauth2.Token, offset int) (*services.PlaylistsPage, error) {
	page, err := o.lister.UserPlaylistsPage(ctx, token, offset)
	if err != nil {
		if !errors.Is(err, shared.ErrPlaylistList) {
			err = fmt.Errorf("%w: %v", shared.ErrPlaylistList, err)
		}
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("%w: offset %d: empty response", shared.ErrPlaylistList, offset)
	}
	return page, nil
}

// Match returns the playlists whose name is allow-listed, in the given order, and the allow-listed names
// that matched nothing. Only the first playlist carrying a given name is kept.
func (o *BackupOrchestrator) Match(playlists []services.Playlist) (matched []services.Playlist, missing []string) {
	seen := make(map[string]bool, len(o.allowList))
	for _, p := range playlists {
		if !slices.Contains(o.allowList, p.Name) {
			continue
		}
		if seen[p.Name] {
			o.logger.Warn("skipping duplicate playlist name", "playlist", p.Name, "id", p.ID)
			continue
		}
		seen[p.Name] = true
		matched = append(matched, p)
	}

	for _, name := range o.allowList {
		if !seen[name] && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
	}

	return matched, missing
}

// Run exports every allow-listed playlist of the authorized user, one at a time in API order.
//
// Listing or page-fetch failures abort the run and are returned with the partial result.
// Snapshot write failures are recorded in [BackupResult.Failed] and the run continues.
func (o *BackupOrchestrator) Run(ctx context.Context, token *oauth2.Token, progress ProgressFunc) (*BackupResult, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token", shared.ErrTokenExchange)
	}

	result := &BackupResult{Configured: len(o.allowList)}

	playlists, err := o.Playlists(ctx, token, progress)
	if err != nil {
		return result, err
	}

	result.Matched, result.Missing = o.Match(playlists)
	send(progress, matchedUpdate(result.Matched, result.Configured))

	for _, name := range result.Missing {
		o.logger.Warn("configured playlist not found", "playlist", name)
	}

	total := len(result.Matched)
	for i, p := range result.Matched {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		o.logger.Info("backing up playlist", "step", fmt.Sprintf("%d/%d", i+1, total), "playlist", p.Name)
		send(progress, exportingUpdate(i+1, total, p))

		exported, err := o.exporter.Export(ctx, token, p.Name, p.ID)
		outcome := PlaylistOutcome{Playlist: p, Err: err}

		switch {
		case err == nil:
			outcome.Path = exported.Path
			outcome.Tracks = len(exported.Snapshot.Tracks)
			result.Exported = append(result.Exported, outcome)
			result.Tracks += outcome.Tracks
		case errors.Is(err, shared.ErrFileWrite):
			o.logger.Error("failed to save snapshot", "playlist", p.Name, "error", err)
			result.Failed = append(result.Failed, outcome)
		default:
			o.logger.Error("export aborted", "playlist", p.Name, "error", err)
			result.Failed = append(result.Failed, outcome)
			send(progress, outcomeUpdate(i+1, total, outcome))
			return result, fmt.Errorf("export %s: %w", p.Name, err)
		}

		send(progress, outcomeUpdate(i+1, total, outcome))
	}

	o.logger.Info("backup complete",
		"exported", len(result.Exported),
		"failed", len(result.Failed),
		"matched", total,
		"configured", result.Configured,
	)

	return result, nil
}
