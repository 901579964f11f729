package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotify-backup/internal/models"
	"github.com/desertthunder/spotify-backup/internal/shared"
	"github.com/desertthunder/spotify-backup/internal/tasks"
	"golang.org/x/oauth2"
)

// Authorizer builds the provider's consent URL and redeems authorization codes.
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Backup exports the allow-listed playlists of an authorized user.
type Backup interface {
	Run(ctx context.Context, token *oauth2.Token, progress tasks.ProgressFunc) (*tasks.BackupResult, error)
	Configured() int
}

// CallbackResponse is the body of a successful callback.
type CallbackResponse struct {
	Code     string          `json:"code"`
	State    string          `json:"state"`
	RunID    string          `json:"run_id"`
	RunState models.RunState `json:"run_state"`
}

// ControllerOpts holds the collaborators of an [AuthFlowController].
type ControllerOpts struct {
	Auth    Authorizer
	Backup  Backup
	Tracker *tasks.RunTracker
	States  *StateStore
	Random  io.Reader // Source for state tokens; defaults to crypto/rand
	Logger  *log.Logger
}

// AuthFlowController serves /run and /callback, drives the token exchange and starts one background backup
// per successful callback.
type AuthFlowController struct {
	auth    Authorizer
	backup  Backup
	tracker *tasks.RunTracker
	states  *StateStore
	random  io.Reader
	logger  *log.Logger

	randMu sync.Mutex
	wg     sync.WaitGroup
}

// NewAuthFlowController creates a controller from opts.
func NewAuthFlowController(opts ControllerOpts) *AuthFlowController {
	if opts.States == nil {
		opts.States = NewStateStore(DefaultStateTTL)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &AuthFlowController{
		auth:    opts.Auth,
		backup:  opts.Backup,
		tracker: opts.Tracker,
		states:  opts.States,
		random:  opts.Random,
		logger:  opts.Logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (c *AuthFlowController) Routes() []string {
	return []string{"GET /run", "GET /callback"}
}

// ServeHTTP dispatches to the authorization or callback handler.
func (c *AuthFlowController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/run":
		c.BeginAuthorization(w, r)
	case "/callback":
		c.HandleCallback(w, r)
	default:
		http.NotFound(w, r)
	}
}

// Wait blocks until every background backup has finished.
func (c *AuthFlowController) Wait() {
	c.wg.Wait()
}

// BeginAuthorization issues a fresh state, records a pending run and redirects to the provider's consent page.
func (c *AuthFlowController) BeginAuthorization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c.expireStates(ctx)

	state, err := c.newState()
	if err != nil {
		c.logger.Error("failed to generate state", "error", err)
		http.Error(w, "Failed to start authorization", http.StatusInternalServerError)
		return
	}

	run, err := c.tracker.Begin(ctx, c.backup.Configured())
	if err != nil {
		c.logger.Error("failed to record run", "error", err)
		http.Error(w, "Failed to start authorization", http.StatusInternalServerError)
		return
	}

	c.states.Put(state, run.ID)
	c.logger.Info("authorization started", "run", run.ID)

	http.Redirect(w, r, c.auth.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback validates the returned state, exchanges the code and starts the backup.
//
// A missing, unknown, reused or expired state redirects to /#error=state_mismatch without contacting the provider.
// An expired state also fails the run it was issued for.
func (c *AuthFlowController) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	state := query.Get("state")

	if state == "" {
		c.logger.Warn("callback without state", "error", shared.ErrStateMismatch)
		redirectError(w, r, "state_mismatch")
		return
	}

	runID, ok, expired := c.states.Consume(state)
	if expired {
		c.logger.Warn("callback with expired state", "run", runID, "error", shared.ErrStateMismatch)
		c.expire(ctx, runID)
		redirectError(w, r, "state_mismatch")
		return
	}
	if !ok {
		c.logger.Warn("callback with unknown state", "error", shared.ErrStateMismatch)
		redirectError(w, r, "state_mismatch")
		return
	}

	logger := shared.WithLogger(c.logger, "run", runID)

	run, err := c.tracker.Get(ctx, runID)
	if err != nil {
		logger.Error("failed to load run", "error", err)
		http.Error(w, "Run not found", http.StatusInternalServerError)
		return
	}

	if reason := query.Get("error"); reason != "" {
		c.fail(ctx, run, fmt.Errorf("%w: %s", shared.ErrAuthDenied, reason))
		redirectError(w, r, reason)
		return
	}

	code := query.Get("code")
	if code == "" {
		c.fail(ctx, run, fmt.Errorf("%w: no authorization code", shared.ErrAuthDenied))
		redirectError(w, r, "missing_code")
		return
	}

	if err := c.tracker.Advance(ctx, run, models.StateExchanging); err != nil {
		logger.Error("failed to record exchange", "error", err)
	}

	token, err := c.auth.Exchange(ctx, code)
	if err == nil && (token == nil || token.AccessToken == "") {
		err = fmt.Errorf("%w: empty access token", shared.ErrTokenExchange)
	}

	if err != nil {
		c.fail(ctx, run, err)
	} else if err := c.tracker.Advance(ctx, run, models.StateExporting); err != nil {
		logger.Error("failed to record export start", "error", err)
	}

	body := CallbackResponse{Code: code, State: state, RunID: run.ID, RunState: run.State}

	if run.State == models.StateExporting {
		c.start(run, token, logger)
	}

	writeJSON(w, http.StatusOK, body, logger)
}

// start runs the backup in its own goroutine, detached from the request that triggered it.
func (c *AuthFlowController) start(run *models.Run, token *oauth2.Token, logger *log.Logger) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx := context.Background()
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("backup panicked", "panic", rec)
				c.fail(ctx, run, fmt.Errorf("backup panicked: %v", rec))
			}
		}()

		logger.Info("backup started")
		result, err := c.backup.Run(ctx, token, c.tracker.Observe(ctx, run))
		if err := c.tracker.Finish(ctx, run, result, err); err != nil {
			logger.Error("failed to record backup result", "error", err)
		}
	}()
}

func (c *AuthFlowController) fail(ctx context.Context, run *models.Run, err error) {
	if ferr := c.tracker.Fail(ctx, run, err); ferr != nil {
		c.logger.Error("failed to record run failure", "run", run.ID, "error", ferr)
	}
}

func (c *AuthFlowController) newState() (string, error) {
	if c.random == nil {
		return shared.GenerateState()
	}

	c.randMu.Lock()
	defer c.randMu.Unlock()
	return shared.GenerateStateFrom(c.random, shared.StateLength)
}

// expireStates fails the runs whose states lapsed without a callback.
func (c *AuthFlowController) expireStates(ctx context.Context) {
	for _, runID := range c.states.Prune() {
		c.expire(ctx, runID)
	}
}

func (c *AuthFlowController) expire(ctx context.Context, runID string) {
	if err := c.tracker.Expire(ctx, runID); err != nil && !errors.Is(err, shared.ErrRunNotFound) {
		c.logger.Warn("failed to expire run", "run", runID, "error", err)
	}
}

func redirectError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, "/#"+url.Values{"error": {reason}}.Encode(), http.StatusFound)
}
