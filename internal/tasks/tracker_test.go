package tasks

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/desertthunder/spotify-backup/internal/models"
	"github.com/desertthunder/spotify-backup/internal/services"
	"github.com/desertthunder/spotify-backup/internal/shared"
	tu "github.com/desertthunder/spotify-backup/internal/testing"
)

func TestRunTracker(t *testing.T) {
	ctx := context.Background()

	newTracker := func() (*RunTracker, *tu.MemoryRunRepository) {
		repo := tu.NewMemoryRunRepository()
		return NewRunTracker(repo, shared.NewLogger(io.Discard)), repo
	}

	t.Run("Begin", func(t *testing.T) {
		tracker, _ := newTracker()

		run, err := tracker.Begin(ctx, 3)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		stored, err := tracker.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("expected stored run, got %v", err)
		}
		if stored.State != models.StateAwaitingCallback || stored.PlaylistsConfigured != 3 {
			t.Errorf("unexpected stored run: %+v", stored)
		}
	})

	t.Run("Begin Persistence Failure", func(t *testing.T) {
		tracker := NewRunTracker(&tu.FailingRunRepository{}, shared.NewLogger(io.Discard))

		if _, err := tracker.Begin(ctx, 1); err == nil {
			t.Error("expected error from failing repository")
		}
	})

	t.Run("Full Backup", func(t *testing.T) {
		tracker, _ := newTracker()
		fake := tu.NewFakeSpotify(
			tu.FakePlaylist{ID: "a", Name: "Alpha", Tracks: tu.MakeTracks(3)},
			tu.FakePlaylist{ID: "b", Name: "B/roken", Tracks: tu.MakeTracks(1)},
		)
		o, _ := newTestOrchestrator(t, fake, "Alpha", "B/roken")

		run, _ := tracker.Begin(ctx, o.Configured())
		if err := tracker.Advance(ctx, run, models.StateExchanging); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := tracker.Advance(ctx, run, models.StateExporting); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		result, runErr := o.Run(ctx, tu.Token(), tracker.Observe(ctx, run))

		stored, _ := tracker.Get(ctx, run.ID)
		if stored.PlaylistsMatched != 2 || len(stored.Playlists) != 2 {
			t.Fatalf("expected progress to be persisted, got %+v", stored)
		}

		if err := tracker.Finish(ctx, run, result, runErr); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		stored, _ = tracker.Get(ctx, run.ID)
		if stored.State != models.StateDone || stored.FinishedAt == nil {
			t.Errorf("expected finished run, got %+v", stored)
		}
		if stored.PlaylistsExported != 1 || stored.PlaylistsFailed != 1 || stored.TracksExported != 3 {
			t.Errorf("unexpected counters: %+v", stored)
		}
		if stored.Playlists[0].Name != "Alpha" || stored.Playlists[1].Error == "" {
			t.Errorf("unexpected playlists: %+v", stored.Playlists)
		}
	})

	t.Run("Finish With Error", func(t *testing.T) {
		tracker, _ := newTracker()
		run, _ := tracker.Begin(ctx, 1)
		_ = tracker.Advance(ctx, run, models.StateExchanging)
		_ = tracker.Advance(ctx, run, models.StateExporting)

		result := &BackupResult{
			Configured: 1,
			Matched:    []services.Playlist{{ID: "a", Name: "Alpha"}},
			Failed:     []PlaylistOutcome{{Playlist: services.Playlist{ID: "a", Name: "Alpha"}, Err: shared.ErrPageFetch}},
		}
		if err := tracker.Finish(ctx, run, result, shared.ErrPageFetch); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		stored, _ := tracker.Get(ctx, run.ID)
		if stored.State != models.StateFailed || stored.Error == "" {
			t.Errorf("expected failed run with error, got %+v", stored)
		}
		if stored.PlaylistsFailed != 1 {
			t.Errorf("expected 1 failed playlist, got %d", stored.PlaylistsFailed)
		}
	})

	t.Run("Invalid Transition", func(t *testing.T) {
		tracker, _ := newTracker()
		run, _ := tracker.Begin(ctx, 1)

		if err := tracker.Advance(ctx, run, models.StateDone); !errors.Is(err, models.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Fail", func(t *testing.T) {
		tracker, _ := newTracker()
		run, _ := tracker.Begin(ctx, 1)

		if err := tracker.Fail(ctx, run, shared.ErrTokenExchange); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		stored, _ := tracker.Get(ctx, run.ID)
		if stored.State != models.StateFailed || stored.Error != shared.ErrTokenExchange.Error() {
			t.Errorf("unexpected run: %+v", stored)
		}
	})

	t.Run("Expire", func(t *testing.T) {
		tracker, _ := newTracker()
		run, _ := tracker.Begin(ctx, 1)

		if err := tracker.Expire(ctx, run.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		stored, _ := tracker.Get(ctx, run.ID)
		if stored.State != models.StateFailed {
			t.Errorf("expected failed run, got %s", stored.State)
		}

		if err := tracker.Expire(ctx, run.ID); err != nil {
			t.Errorf("expected expiring a finished run to be a no-op, got %v", err)
		}
		if err := tracker.Expire(ctx, "missing"); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		tracker, _ := newTracker()
		first, _ := tracker.Begin(ctx, 1)
		second, _ := tracker.Begin(ctx, 1)

		runs, err := tracker.List(ctx, 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(runs) != 2 || runs[0].ID != second.ID || runs[1].ID != first.ID {
			t.Errorf("expected newest first, got %+v", runs)
		}
	})
}
