package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/spotify-backup/internal/models"
	"github.com/desertthunder/spotify-backup/internal/shared"
	"github.com/desertthunder/spotify-backup/internal/tasks"
	tu "github.com/desertthunder/spotify-backup/internal/testing"
	"golang.org/x/oauth2"
)

type fakeAuth struct {
	mu    sync.Mutex
	codes []string
	token *oauth2.Token
	err   error
}

func (f *fakeAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.test/authorize?" + url.Values{"state": {state}}.Encode()
}

func (f *fakeAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return f.token, f.err
}

func (f *fakeAuth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.codes)
}

type harness struct {
	controller *AuthFlowController
	router     *BasicRouter
	auth       *fakeAuth
	spotify    *tu.FakeSpotify
	tracker    *tasks.RunTracker
	states     *StateStore
	dir        string
}

func newHarness(t *testing.T, random io.Reader) *harness {
	t.Helper()

	logger := shared.NewLogger(io.Discard)
	dir := t.TempDir()
	spotify := tu.NewFakeSpotify(
		tu.FakePlaylist{ID: "a", Name: "Road Trip", Tracks: tu.MakeTracks(3)},
		tu.FakePlaylist{ID: "b", Name: "Other", Tracks: tu.MakeTracks(1)},
	)
	exporter := tasks.NewPlaylistExporter(spotify, tasks.NewSnapshotWriter(dir), logger)
	backup := tasks.NewBackupOrchestrator(spotify, exporter, []string{"Road Trip"}, logger)
	tracker := tasks.NewRunTracker(tu.NewMemoryRunRepository(), logger)
	auth := &fakeAuth{token: tu.Token()}
	states := NewStateStore(DefaultStateTTL)

	controller := NewAuthFlowController(ControllerOpts{
		Auth:    auth,
		Backup:  backup,
		Tracker: tracker,
		States:  states,
		Random:  random,
		Logger:  logger,
	})

	return &harness{
		controller: controller,
		router:     NewRouter(RouterOpts{Controller: controller, Runs: tracker, Logger: logger}),
		auth:       auth,
		spotify:    spotify,
		tracker:    tracker,
		states:     states,
		dir:        dir,
	}
}

func (h *harness) get(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

// begin calls /run and returns the issued state.
func (h *harness) begin(t *testing.T) string {
	t.Helper()

	rec := h.get("/run")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 from /run, got %d", rec.Code)
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid redirect: %v", err)
	}
	return location.Query().Get("state")
}

func (h *harness) onlyRun(t *testing.T) *models.Run {
	t.Helper()

	runs, err := h.tracker.List(context.Background(), 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected exactly one run, got %d (%v)", len(runs), err)
	}
	return runs[0]
}

func assertMismatch(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/#error=state_mismatch" {
		t.Errorf("expected redirect to /#error=state_mismatch, got %s", got)
	}
}

func TestAuthFlowController(t *testing.T) {
	t.Run("BeginAuthorization", func(t *testing.T) {
		t.Run("Deterministic State", func(t *testing.T) {
			h := newHarness(t, tu.FixedReader(0))

			state := h.begin(t)
			if state != "AAAAAAAAAAAAAAAA" {
				t.Errorf("expected 16 A characters, got %q", state)
			}

			run := h.onlyRun(t)
			if run.State != models.StateAwaitingCallback || run.PlaylistsConfigured != 1 {
				t.Errorf("unexpected run: %+v", run)
			}
			if h.states.Len() != 1 {
				t.Errorf("expected 1 pending state, got %d", h.states.Len())
			}
		})

		t.Run("Random State", func(t *testing.T) {
			h := newHarness(t, nil)

			first, second := h.begin(t), h.begin(t)
			if len(first) != shared.StateLength || len(second) != shared.StateLength {
				t.Fatalf("expected states of length %d, got %q and %q", shared.StateLength, first, second)
			}
			if first == second {
				t.Error("expected distinct states")
			}
		})

		t.Run("Random Source Failure", func(t *testing.T) {
			h := newHarness(t, tu.FailingReader{})

			if rec := h.get("/run"); rec.Code != http.StatusInternalServerError {
				t.Errorf("expected 500, got %d", rec.Code)
			}
		})
	})

	t.Run("HandleCallback", func(t *testing.T) {
		t.Run("Missing State", func(t *testing.T) {
			h := newHarness(t, nil)
			h.begin(t)

			assertMismatch(t, h.get("/callback?code=abc"))
			if h.auth.calls() != 0 {
				t.Errorf("expected no exchange, got %d", h.auth.calls())
			}
		})

		t.Run("Unknown State", func(t *testing.T) {
			h := newHarness(t, nil)
			h.begin(t)

			assertMismatch(t, h.get("/callback?code=abc&state=forged"))
			if h.auth.calls() != 0 {
				t.Errorf("expected no exchange, got %d", h.auth.calls())
			}
		})

		t.Run("Success", func(t *testing.T) {
			h := newHarness(t, nil)
			state := h.begin(t)

			rec := h.get("/callback?code=abc&state=" + state)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			var body CallbackResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("expected JSON body, got %v", err)
			}
			if body.Code != "abc" || body.State != state || body.RunState != models.StateExporting || body.RunID == "" {
				t.Errorf("unexpected body: %+v", body)
			}

			h.controller.Wait()

			run, err := h.tracker.Get(context.Background(), body.RunID)
			if err != nil {
				t.Fatalf("expected run, got %v", err)
			}
			if run.State != models.StateDone || run.PlaylistsExported != 1 || run.TracksExported != 3 {
				t.Errorf("unexpected run: %+v", run)
			}

			tu.AssertFileExists(t, filepath.Join(h.dir, "Road Trip.json"))
			tu.AssertFileNotExists(t, filepath.Join(h.dir, "Other.json"))
		})

		t.Run("Reused State", func(t *testing.T) {
			h := newHarness(t, nil)
			state := h.begin(t)

			if rec := h.get("/callback?code=abc&state=" + state); rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			assertMismatch(t, h.get("/callback?code=abc&state="+state))

			h.controller.Wait()
			if h.auth.calls() != 1 {
				t.Errorf("expected a single exchange, got %d", h.auth.calls())
			}
		})

		t.Run("Provider Error", func(t *testing.T) {
			h := newHarness(t, nil)
			state := h.begin(t)

			rec := h.get("/callback?error=access_denied&state=" + state)
			if rec.Code != http.StatusFound {
				t.Fatalf("expected 302, got %d", rec.Code)
			}
			if got := rec.Header().Get("Location"); got != "/#error=access_denied" {
				t.Errorf("expected redirect to /#error=access_denied, got %s", got)
			}

			if h.auth.calls() != 0 {
				t.Errorf("expected no exchange, got %d", h.auth.calls())
			}
			if run := h.onlyRun(t); run.State != models.StateFailed {
				t.Errorf("expected failed run, got %s", run.State)
			}
		})

		t.Run("Missing Code", func(t *testing.T) {
			h := newHarness(t, nil)
			state := h.begin(t)

			rec := h.get("/callback?state=" + state)
			if got := rec.Header().Get("Location"); got != "/#error=missing_code" {
				t.Errorf("expected redirect to /#error=missing_code, got %s", got)
			}
			if h.auth.calls() != 0 {
				t.Errorf("expected no exchange, got %d", h.auth.calls())
			}
		})

		t.Run("Exchange Failure", func(t *testing.T) {
			h := newHarness(t, nil)
			h.auth.token = nil
			h.auth.err = errors.Join(shared.ErrTokenExchange, errors.New("invalid_grant"))
			state := h.begin(t)

			rec := h.get("/callback?code=stale&state=" + state)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}

			var body CallbackResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("expected JSON body, got %v", err)
			}
			if body.RunState != models.StateFailed {
				t.Errorf("expected failed run state, got %s", body.RunState)
			}

			h.controller.Wait()
			if len(h.spotify.ListCalls()) != 0 {
				t.Error("expected no export after a failed exchange")
			}
			if run := h.onlyRun(t); run.State != models.StateFailed || run.Error == "" {
				t.Errorf("unexpected run: %+v", run)
			}
		})

		t.Run("Empty Access Token", func(t *testing.T) {
			h := newHarness(t, nil)
			h.auth.token = &oauth2.Token{}
			state := h.begin(t)

			h.get("/callback?code=abc&state=" + state)
			h.controller.Wait()

			if run := h.onlyRun(t); run.State != models.StateFailed {
				t.Errorf("expected failed run, got %s", run.State)
			}
			if len(h.spotify.ListCalls()) != 0 {
				t.Error("expected no export without an access token")
			}
		})

		t.Run("Backup Failure", func(t *testing.T) {
			h := newHarness(t, nil)
			h.spotify.PageErr["a"] = 0
			state := h.begin(t)

			h.get("/callback?code=abc&state=" + state)
			h.controller.Wait()

			run := h.onlyRun(t)
			if run.State != models.StateFailed || run.PlaylistsFailed != 1 {
				t.Errorf("unexpected run: %+v", run)
			}
		})

		t.Run("Expired State", func(t *testing.T) {
			h := newHarness(t, nil)
			now := time.Now()
			h.states.now = func() time.Time { return now }

			state := h.begin(t)
			now = now.Add(DefaultStateTTL + time.Minute)

			assertMismatch(t, h.get("/callback?code=abc&state="+state))
			if h.auth.calls() != 0 {
				t.Errorf("expected no exchange, got %d", h.auth.calls())
			}
			if run := h.onlyRun(t); run.State != models.StateFailed {
				t.Errorf("expected expired run to fail, got %s", run.State)
			}

			h.begin(t)
			if h.states.Len() != 1 {
				t.Errorf("expected only the new state pending, got %d", h.states.Len())
			}
		})

		t.Run("Lapsed Runs Fail On Next Run", func(t *testing.T) {
			h := newHarness(t, nil)
			now := time.Now()
			h.states.now = func() time.Time { return now }

			h.begin(t)
			first := h.onlyRun(t)
			now = now.Add(DefaultStateTTL + time.Second)
			h.begin(t)

			run, err := h.tracker.Get(context.Background(), first.ID)
			if err != nil {
				t.Fatalf("expected run, got %v", err)
			}
			if run.State != models.StateFailed {
				t.Errorf("expected lapsed run to fail, got %s", run.State)
			}
		})
	})

	t.Run("Routes", func(t *testing.T) {
		h := newHarness(t, nil)
		want := []string{"GET /run", "GET /callback"}
		got := h.controller.Routes()
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("expected %v, got %v", want, got)
		}
	})
}
