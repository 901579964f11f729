package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spotify-backup/internal/models"
	"github.com/desertthunder/spotify-backup/internal/shared"
)

const runColumns = `id, sequence, state, playlists_configured, playlists_matched, playlists_exported,
	playlists_failed, tracks_exported, error, created_at, updated_at, finished_at`

// RunRepository implements [models.Repository] for [models.Run] persistence.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new [RunRepository] with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run with a generated ID and sequence
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	run.Sequence = sequence

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.Sequence,
		string(run.State),
		run.PlaylistsConfigured,
		run.PlaylistsMatched,
		run.PlaylistsExported,
		run.PlaylistsFailed,
		run.TracksExported,
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run and its playlist outcomes by ID
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	playlists, err := r.playlists(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Playlists = playlists

	return run, nil
}

// Update writes the run's state and counters and replaces its playlist outcomes
func (r *RunRepository) Update(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE runs
		SET state = ?, playlists_configured = ?, playlists_matched = ?, playlists_exported = ?,
			playlists_failed = ?, tracks_exported = ?, error = ?, updated_at = ?, finished_at = ?
		WHERE id = ?
	`

	result, err := tx.ExecContext(ctx, query,
		string(run.State),
		run.PlaylistsConfigured,
		run.PlaylistsMatched,
		run.PlaylistsExported,
		run.PlaylistsFailed,
		run.TracksExported,
		run.Error,
		run.UpdatedAt,
		nullTime(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, run.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_playlists WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear run playlists: %w", err)
	}

	for i, p := range run.Playlists {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_playlists (run_id, position, playlist_id, name, path, track_count, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, i, p.PlaylistID, p.Name, p.Path, p.TrackCount, p.Error)
		if err != nil {
			return fmt.Errorf("failed to insert run playlist: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run update: %w", err)
	}

	return nil
}

// List retrieves runs newest first, without their playlist outcomes.
//
// A limit of zero or less returns every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY sequence DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

func (r *RunRepository) playlists(ctx context.Context, runID string) ([]models.RunPlaylist, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT playlist_id, name, path, track_count, error
		FROM run_playlists
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run playlists: %w", err)
	}
	defer rows.Close()

	var playlists []models.RunPlaylist
	for rows.Next() {
		var p models.RunPlaylist
		if err := rows.Scan(&p.PlaylistID, &p.Name, &p.Path, &p.TrackCount, &p.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run playlist: %w", err)
		}
		playlists = append(playlists, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a [models.Run]
func scanRun(row scanner) (*models.Run, error) {
	var (
		run        models.Run
		state      string
		finishedAt sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.Sequence,
		&state,
		&run.PlaylistsConfigured,
		&run.PlaylistsMatched,
		&run.PlaylistsExported,
		&run.PlaylistsFailed,
		&run.TracksExported,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.State = models.RunState(state)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	return &run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
