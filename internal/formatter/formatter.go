// package formatter renders run history as styled text tables, CSV or Markdown
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/spotify-backup/internal/models"
	"github.com/desertthunder/spotify-backup/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

// RunsTable renders runs as a bordered table, one row per run.
func RunsTable(runs []*models.Run, p *ui.Palette) string {
	if len(runs) == 0 {
		return p.Help("No runs recorded yet.")
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			strconv.Itoa(run.Sequence),
			run.ID,
			p.State(run.State),
			fmt.Sprintf("%d/%d", run.PlaylistsExported, run.PlaylistsConfigured),
			strconv.Itoa(run.TracksExported),
			run.CreatedAt.Local().Format(timeLayout),
			FormatDuration(runDuration(run)),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "ID", "STATE", "PLAYLISTS", "TRACKS", "STARTED", "DURATION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.Header()
			}
			return p.Cell()
		})

	return t.Render()
}

// RunDetail renders a single run with its playlist outcomes.
func RunDetail(run *models.Run, p *ui.Palette) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", p.Title(fmt.Sprintf("Run #%d", run.Sequence)))
	fmt.Fprintf(&b, "ID:        %s\n", run.ID)
	fmt.Fprintf(&b, "State:     %s\n", p.State(run.State))
	fmt.Fprintf(&b, "Started:   %s\n", run.CreatedAt.Local().Format(timeLayout))
	if run.FinishedAt != nil {
		fmt.Fprintf(&b, "Finished:  %s (%s)\n", run.FinishedAt.Local().Format(timeLayout), FormatDuration(runDuration(run)))
	}
	fmt.Fprintf(&b, "Playlists: %d configured, %d matched, %d exported, %d failed\n",
		run.PlaylistsConfigured, run.PlaylistsMatched, run.PlaylistsExported, run.PlaylistsFailed)
	fmt.Fprintf(&b, "Tracks:    %d\n", run.TracksExported)
	if run.Error != "" {
		fmt.Fprintf(&b, "Error:     %s\n", p.Err(run.Error))
	}

	if len(run.Playlists) > 0 {
		b.WriteString("\n")
		for i, pl := range run.Playlists {
			if pl.Error != "" {
				fmt.Fprintf(&b, "%d. %s %s: %s\n", i+1, p.Err("✗"), pl.Name, pl.Error)
				continue
			}
			fmt.Fprintf(&b, "%d. %s %s (%d tracks) → %s\n", i+1, p.OK("✓"), pl.Name, pl.TrackCount, pl.Path)
		}
	}

	return b.String()
}

// RunsCSV converts runs to CSV with columns: Sequence, ID, State, Configured, Matched, Exported, Failed,
// Tracks, Created, Finished, Error
func RunsCSV(runs []*models.Run) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Sequence", "ID", "State", "Configured", "Matched", "Exported", "Failed", "Tracks", "Created", "Finished", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, run := range runs {
		finished := ""
		if run.FinishedAt != nil {
			finished = run.FinishedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			strconv.Itoa(run.Sequence),
			run.ID,
			string(run.State),
			strconv.Itoa(run.PlaylistsConfigured),
			strconv.Itoa(run.PlaylistsMatched),
			strconv.Itoa(run.PlaylistsExported),
			strconv.Itoa(run.PlaylistsFailed),
			strconv.Itoa(run.TracksExported),
			run.CreatedAt.UTC().Format(time.RFC3339),
			finished,
			run.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// FormatDuration renders d rounded to the second as "1h2m3s"; zero renders as "-".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return "<1s"
	}
	return d.Round(time.Second).String()
}

func runDuration(run *models.Run) time.Duration {
	if run.FinishedAt == nil {
		return 0
	}
	return run.FinishedAt.Sub(run.CreatedAt)
}
