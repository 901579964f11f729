package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotify-backup/internal/models"
	"github.com/desertthunder/spotify-backup/internal/shared"
)

// RunTracker records the lifecycle of each authorization attempt and the backup it starts.
type RunTracker struct {
	mu     sync.Mutex
	runs   models.Repository[*models.Run]
	logger *log.Logger
}

// NewRunTracker creates a tracker persisting runs through repo.
func NewRunTracker(repo models.Repository[*models.Run], logger *log.Logger) *RunTracker {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RunTracker{runs: repo, logger: logger}
}

// Begin creates a run waiting for the provider callback.
func (t *RunTracker) Begin(ctx context.Context, configured int) (*models.Run, error) {
	run := models.NewRun(configured)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	t.logger.Debug("run created", "run", run.ID, "sequence", run.Sequence)
	return run, nil
}

// Get returns the stored run with the given ID.
func (t *RunTracker) Get(ctx context.Context, id string) (*models.Run, error) {
	return t.runs.Get(ctx, id)
}

// List returns the newest runs first, at most limit when limit > 0.
func (t *RunTracker) List(ctx context.Context, limit int) ([]*models.Run, error) {
	return t.runs.List(ctx, limit)
}

// Advance moves run to state and persists it.
func (t *RunTracker) Advance(ctx context.Context, run *models.Run, state models.RunState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := run.Transition(state); err != nil {
		return err
	}
	return t.save(ctx, run)
}

// Fail marks run failed with err and persists it.
func (t *RunTracker) Fail(ctx context.Context, run *models.Run, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	run.Fail(err)
	t.logger.Error("run failed", "run", run.ID, "error", err)
	return t.save(ctx, run)
}

// Observe returns a [ProgressFunc] that records matched and finished playlists on run as they happen.
//
// Persistence errors are logged and do not interrupt the backup.
func (t *RunTracker) Observe(ctx context.Context, run *models.Run) ProgressFunc {
	return func(update ProgressUpdate) {
		t.mu.Lock()
		defer t.mu.Unlock()

		switch update.Phase {
		case MatchPlaylists:
			run.PlaylistsMatched = update.Step
		case PlaylistExported, PlaylistFailed:
			outcome, ok := update.Data.(PlaylistOutcome)
			if !ok {
				return
			}
			run.AddPlaylist(runPlaylist(outcome))
		default:
			return
		}

		if err := t.save(ctx, run); err != nil {
			t.logger.Warn("failed to record progress", "run", run.ID, "error", err)
		}
	}
}

// Finish records the final outcome of a backup. The run's playlist list is rebuilt from result so it
// matches what was written regardless of which progress updates were observed.
func (t *RunTracker) Finish(ctx context.Context, run *models.Run, result *BackupResult, runErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if result != nil {
		run.PlaylistsMatched = len(result.Matched)
		run.Playlists = nil
		run.PlaylistsExported, run.PlaylistsFailed, run.TracksExported = 0, 0, 0
		for _, outcome := range orderedOutcomes(result) {
			run.AddPlaylist(runPlaylist(outcome))
		}
	}

	if runErr != nil {
		run.Fail(runErr)
		t.logger.Error("backup failed", "run", run.ID, "error", runErr)
	} else if err := run.Transition(models.StateDone); err != nil {
		return err
	}

	return t.save(ctx, run)
}

// Expire fails a run whose authorization state lapsed before the callback arrived.
func (t *RunTracker) Expire(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, err := t.runs.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.State.Terminal() {
		return nil
	}

	run.Fail(fmt.Errorf("%w: authorization state expired", shared.ErrStateMismatch))
	return t.save(ctx, run)
}

func (t *RunTracker) save(ctx context.Context, run *models.Run) error {
	if err := t.runs.Update(ctx, run); err != nil {
		if errors.Is(err, shared.ErrRunNotFound) {
			return err
		}
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	return nil
}

func runPlaylist(o PlaylistOutcome) models.RunPlaylist {
	p := models.RunPlaylist{
		PlaylistID: o.Playlist.ID,
		Name:       o.Playlist.Name,
		Path:       o.Path,
		TrackCount: o.Tracks,
	}
	if o.Err != nil {
		p.Error = o.Err.Error()
	}
	return p
}

// orderedOutcomes merges exported and failed outcomes back into match order.
func orderedOutcomes(result *BackupResult) []PlaylistOutcome {
	byID := make(map[string]PlaylistOutcome, len(result.Exported)+len(result.Failed))
	for _, o := range result.Exported {
		byID[o.Playlist.ID] = o
	}
	for _, o := range result.Failed {
		byID[o.Playlist.ID] = o
	}

	outcomes := make([]PlaylistOutcome, 0, len(byID))
	for _, p := range result.Matched {
		if o, ok := byID[p.ID]; ok {
			outcomes = append(outcomes, o)
		}
	}
	return outcomes
}
