package models

import (
	"errors"
	"fmt"
	"time"
)

// RunState is a step of the authorization and export state machine.
type RunState string

const (
	StateAwaitingCallback RunState = "awaiting_callback"
	StateExchanging       RunState = "exchanging"
	StateExporting        RunState = "exporting"
	StateDone             RunState = "done"
	StateFailed           RunState = "failed"
)

// ErrInvalidTransition is returned when a run is moved to a state that cannot follow its current one.
var ErrInvalidTransition = errors.New("invalid run state transition")

var transitions = map[RunState][]RunState{
	StateAwaitingCallback: {StateExchanging, StateFailed},
	StateExchanging:       {StateExporting, StateFailed},
	StateExporting:        {StateDone, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Valid reports whether s is a known state.
func (s RunState) Valid() bool {
	switch s {
	case StateAwaitingCallback, StateExchanging, StateExporting, StateDone, StateFailed:
		return true
	}
	return false
}

// CanTransition reports whether a run in state s may move to next.
func (s RunState) CanTransition(next RunState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RunPlaylist is the outcome of exporting one playlist within a run.
type RunPlaylist struct {
	PlaylistID string `json:"playlist_id"`
	Name       string `json:"name"`
	Path       string `json:"path,omitempty"`
	TrackCount int    `json:"track_count"`
	Error      string `json:"error,omitempty"`
}

// Run records one authorization attempt and the backup it triggered.
type Run struct {
	ID                  string        `json:"id"`
	Sequence            int           `json:"sequence"`
	State               RunState      `json:"state"`
	PlaylistsConfigured int           `json:"playlists_configured"`
	PlaylistsMatched    int           `json:"playlists_matched"`
	PlaylistsExported   int           `json:"playlists_exported"`
	PlaylistsFailed     int           `json:"playlists_failed"`
	TracksExported      int           `json:"tracks_exported"`
	Error               string        `json:"error,omitempty"`
	Playlists           []RunPlaylist `json:"playlists,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	FinishedAt          *time.Time    `json:"finished_at,omitempty"`
}

// NewRun creates a run waiting for the provider callback.
func NewRun(configured int) *Run {
	now := time.Now().UTC()
	return &Run{
		State:               StateAwaitingCallback,
		PlaylistsConfigured: configured,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Transition moves the run to next, stamping FinishedAt when next is terminal.
func (r *Run) Transition(next RunState) error {
	if !r.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, next)
	}

	now := time.Now().UTC()
	r.State = next
	r.UpdatedAt = now
	if next.Terminal() {
		r.FinishedAt = &now
	}
	return nil
}

// Fail marks the run failed with err. It is a no-op on runs that already finished.
func (r *Run) Fail(err error) {
	if r.State.Terminal() {
		return
	}
	if err != nil {
		r.Error = err.Error()
	}
	_ = r.Transition(StateFailed)
}

// AddPlaylist appends a playlist outcome and updates the counters.
func (r *Run) AddPlaylist(p RunPlaylist) {
	r.Playlists = append(r.Playlists, p)
	if p.Error != "" {
		r.PlaylistsFailed++
	} else {
		r.PlaylistsExported++
		r.TracksExported += p.TrackCount
	}
	r.UpdatedAt = time.Now().UTC()
}

// Validate checks the run's fields.
func (r *Run) Validate() error {
	if !r.State.Valid() {
		return fmt.Errorf("invalid state %q", r.State)
	}
	if r.PlaylistsConfigured < 0 || r.PlaylistsMatched < 0 {
		return fmt.Errorf("playlist counts must not be negative")
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}
