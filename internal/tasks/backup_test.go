package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"testing"

	"github.com/desertthunder/spotify-backup/internal/shared"
	tu "github.com/desertthunder/spotify-backup/internal/testing"
	"golang.org/x/oauth2"
)

func newTestOrchestrator(t *testing.T, fake *tu.FakeSpotify, allow ...string) (*BackupOrchestrator, string) {
	t.Helper()
	exporter, dir := newTestExporter(t, fake)
	return NewBackupOrchestrator(fake, exporter, allow, shared.NewLogger(io.Discard)), dir
}

func names(outcomes []PlaylistOutcome) []string {
	out := make([]string, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Playlist.Name
	}
	return out
}

func TestBackupOrchestrator(t *testing.T) {
	ctx := context.Background()

	account := func() *tu.FakeSpotify {
		return tu.NewFakeSpotify(
			tu.FakePlaylist{ID: "a", Name: "Alpha", Tracks: tu.MakeTracks(3)},
			tu.FakePlaylist{ID: "b", Name: "Bravo", Tracks: tu.MakeTracks(60)},
			tu.FakePlaylist{ID: "c", Name: "Charlie", Tracks: tu.MakeTracks(1)},
			tu.FakePlaylist{ID: "d", Name: "Delta", Tracks: tu.MakeTracks(0)},
		)
	}

	t.Run("Exports Intersection In API Order", func(t *testing.T) {
		fake := account()
		o, dir := newTestOrchestrator(t, fake, "Delta", "Bravo", "Missing")

		result, err := o.Run(ctx, tu.Token(), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if got := names(result.Exported); !slices.Equal(got, []string{"Bravo", "Delta"}) {
			t.Errorf("expected [Bravo Delta], got %v", got)
		}
		if got := fake.Fetched(); !slices.Equal(got, []string{"b", "d"}) {
			t.Errorf("expected only b and d fetched, got %v", got)
		}
		if !slices.Equal(result.Missing, []string{"Missing"}) {
			t.Errorf("expected [Missing], got %v", result.Missing)
		}
		if result.Configured != 3 || len(result.Matched) != 2 || len(result.Failed) != 0 {
			t.Errorf("unexpected counts: %+v", result)
		}
		if result.Tracks != 60 {
			t.Errorf("expected 60 tracks, got %d", result.Tracks)
		}

		tu.AssertFileExists(t, filepath.Join(dir, "Bravo.json"))
		tu.AssertFileExists(t, filepath.Join(dir, "Delta.json"))
		tu.AssertFileNotExists(t, filepath.Join(dir, "Alpha.json"))
		tu.AssertFileNotExists(t, filepath.Join(dir, "Charlie.json"))
	})

	t.Run("Empty Allow List", func(t *testing.T) {
		fake := account()
		o, _ := newTestOrchestrator(t, fake)

		result, err := o.Run(ctx, tu.Token(), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result.Matched) != 0 || len(fake.Fetched()) != 0 {
			t.Errorf("expected nothing exported, got %+v", result)
		}
	})

	t.Run("Duplicate Names Export Once", func(t *testing.T) {
		fake := tu.NewFakeSpotify(
			tu.FakePlaylist{ID: "first", Name: "Mix", Tracks: tu.MakeTracks(2)},
			tu.FakePlaylist{ID: "second", Name: "Mix", Tracks: tu.MakeTracks(5)},
		)
		o, _ := newTestOrchestrator(t, fake, "Mix")

		result, err := o.Run(ctx, tu.Token(), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result.Exported) != 1 || result.Exported[0].Playlist.ID != "first" {
			t.Errorf("expected only the first Mix exported, got %+v", result.Exported)
		}
		if got := fake.Fetched(); !slices.Equal(got, []string{"first"}) {
			t.Errorf("expected only first fetched, got %v", got)
		}
	})

	t.Run("Write Failure Continues", func(t *testing.T) {
		fake := tu.NewFakeSpotify(
			tu.FakePlaylist{ID: "bad", Name: "AC/DC", Tracks: tu.MakeTracks(1)},
			tu.FakePlaylist{ID: "good", Name: "Good", Tracks: tu.MakeTracks(2)},
		)
		o, dir := newTestOrchestrator(t, fake, "AC/DC", "Good")

		result, err := o.Run(ctx, tu.Token(), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if got := names(result.Failed); !slices.Equal(got, []string{"AC/DC"}) {
			t.Errorf("expected [AC/DC] failed, got %v", got)
		}
		if !errors.Is(result.Failed[0].Err, shared.ErrFileWrite) {
			t.Errorf("expected ErrFileWrite, got %v", result.Failed[0].Err)
		}
		if got := names(result.Exported); !slices.Equal(got, []string{"Good"}) {
			t.Errorf("expected [Good] exported, got %v", got)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "Good.json"))
	})

	t.Run("Page Failure Aborts", func(t *testing.T) {
		fake := account()
		fake.PageErr["a"] = 0
		o, dir := newTestOrchestrator(t, fake, "Alpha", "Bravo")

		result, err := o.Run(ctx, tu.Token(), nil)
		if !errors.Is(err, shared.ErrPageFetch) {
			t.Fatalf("expected ErrPageFetch, got %v", err)
		}

		if got := fake.Fetched(); !slices.Equal(got, []string{"a"}) {
			t.Errorf("expected no export after the failure, got %v", got)
		}
		if len(result.Exported) != 0 || len(result.Failed) != 1 {
			t.Errorf("unexpected result: %+v", result)
		}
		tu.AssertFileNotExists(t, filepath.Join(dir, "Bravo.json"))
	})

	t.Run("Listing Failure Aborts", func(t *testing.T) {
		fake := account()
		fake.ListErr = errors.New("status 401")
		o, _ := newTestOrchestrator(t, fake, "Alpha")

		_, err := o.Run(ctx, tu.Token(), nil)
		if !errors.Is(err, shared.ErrPlaylistList) {
			t.Fatalf("expected ErrPlaylistList, got %v", err)
		}
		if len(fake.Fetched()) != 0 {
			t.Error("expected no track pages fetched")
		}
	})

	t.Run("Missing Token", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, account(), "Alpha")

		for _, token := range []*oauth2.Token{nil, {}} {
			if _, err := o.Run(ctx, token, nil); !errors.Is(err, shared.ErrTokenExchange) {
				t.Errorf("expected ErrTokenExchange, got %v", err)
			}
		}
	})

	t.Run("Canceled Context", func(t *testing.T) {
		fake := account()
		o, _ := newTestOrchestrator(t, fake, "Alpha")

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := o.Run(canceled, tu.Token(), nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(fake.Fetched()) != 0 {
			t.Error("expected no track pages fetched")
		}
	})

	t.Run("Progress", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, account(), "Alpha", "Charlie")

		var phases []Phase
		_, err := o.Run(ctx, tu.Token(), func(u ProgressUpdate) { phases = append(phases, u.Phase) })
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		want := []Phase{ListPlaylists, MatchPlaylists, ExportPlaylist, PlaylistExported, ExportPlaylist, PlaylistExported}
		if !slices.Equal(phases, want) {
			t.Errorf("expected phases %v, got %v", want, phases)
		}
	})

	t.Run("Playlists", func(t *testing.T) {
		t.Run("Paginates", func(t *testing.T) {
			var playlists []tu.FakePlaylist
			for i := range 120 {
				playlists = append(playlists, tu.FakePlaylist{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("List %d", i)})
			}
			fake := tu.NewFakeSpotify(playlists...)
			o, _ := newTestOrchestrator(t, fake)

			got, err := o.Playlists(ctx, tu.Token(), nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(got) != 120 {
				t.Errorf("expected 120 playlists, got %d", len(got))
			}
			if got[119].Name != "List 119" {
				t.Errorf("expected API order, got last %s", got[119].Name)
			}
			if calls := fake.ListCalls(); !slices.Equal(calls, []int{0, 50, 100}) {
				t.Errorf("expected offsets [0 50 100], got %v", calls)
			}
		})

		t.Run("No Playlists", func(t *testing.T) {
			fake := tu.NewFakeSpotify()
			o, _ := newTestOrchestrator(t, fake)

			got, err := o.Playlists(ctx, tu.Token(), nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(got) != 0 || !slices.Equal(fake.ListCalls(), []int{0}) {
				t.Errorf("expected a single empty listing, got %v after %v", got, fake.ListCalls())
			}
		})
	})

	t.Run("Allow List Is Copied", func(t *testing.T) {
		allow := []string{"Alpha"}
		o, _ := newTestOrchestrator(t, account(), allow...)
		allow[0] = "Bravo"

		matched, _ := o.Match(nil)
		if len(matched) != 0 || o.Configured() != 1 {
			t.Fatal("unexpected orchestrator state")
		}

		result, err := o.Run(ctx, tu.Token(), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := names(result.Exported); !slices.Equal(got, []string{"Alpha"}) {
			t.Errorf("expected [Alpha], got %v", got)
		}
	})
}
