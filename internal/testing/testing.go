// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/desertthunder/spotify-backup/internal/models"
	"github.com/desertthunder/spotify-backup/internal/services"
	"github.com/desertthunder/spotify-backup/internal/shared"
	"golang.org/x/oauth2"
)

// FakePlaylist is a remote playlist served by [FakeSpotify].
type FakePlaylist struct {
	ID     string
	Name   string
	Tracks []services.SpotifyPlaylistTrack
	Total  int // Reported total; len(Tracks) when zero
}

// FakeSpotify serves playlists and pages from memory and records every request.
//
// It satisfies the page fetcher and playlist lister interfaces used by the backup pipeline.
type FakeSpotify struct {
	mu        sync.Mutex
	Playlists []FakePlaylist
	PageErr   map[string]int // playlist ID -> offset that fails
	ListErr   error
	offsets   map[string][]int
	listCalls []int
}

// NewFakeSpotify creates a fake serving playlists in the given order.
func NewFakeSpotify(playlists ...FakePlaylist) *FakeSpotify {
	return &FakeSpotify{Playlists: playlists, PageErr: map[string]int{}, offsets: map[string][]int{}}
}

func (f *FakeSpotify) PlaylistTracksPage(ctx context.Context, token *oauth2.Token, playlistID string, offset int) (*services.TracksPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.offsets[playlistID] = append(f.offsets[playlistID], offset)

	if failAt, ok := f.PageErr[playlistID]; ok && failAt == offset {
		return nil, fmt.Errorf("%w: status 500", shared.ErrPageFetch)
	}

	for _, p := range f.Playlists {
		if p.ID != playlistID {
			continue
		}
		total := p.Total
		if total == 0 {
			total = len(p.Tracks)
		}
		end := min(offset+services.PageSize, len(p.Tracks))
		items := []services.SpotifyPlaylistTrack{}
		if offset < end {
			items = slices.Clone(p.Tracks[offset:end])
		}
		return &services.TracksPage{Items: items, Total: total, Limit: services.PageSize, Offset: offset}, nil
	}

	return nil, fmt.Errorf("%w: status 404", shared.ErrPageFetch)
}

func (f *FakeSpotify) UserPlaylistsPage(ctx context.Context, token *oauth2.Token, offset int) (*services.PlaylistsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls = append(f.listCalls, offset)
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	page := &services.PlaylistsPage{
		Items:  []services.SpotifySimplePlaylist{},
		Total:  len(f.Playlists),
		Limit:  services.PageSize,
		Offset: offset,
	}
	for i := offset; i < min(offset+services.PageSize, len(f.Playlists)); i++ {
		p := f.Playlists[i]
		page.Items = append(page.Items, services.SpotifySimplePlaylist{ID: p.ID, Name: p.Name})
	}
	return page, nil
}

// Offsets returns the offsets requested for playlistID, in request order.
func (f *FakeSpotify) Offsets(playlistID string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.offsets[playlistID])
}

// Fetched returns the IDs of every playlist whose tracks were requested, sorted.
func (f *FakeSpotify) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.offsets))
	for id := range f.offsets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListCalls returns the offsets requested from the playlists endpoint.
func (f *FakeSpotify) ListCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.listCalls)
}

// MakeTracks builds n resolvable playlist entries named "Track 1" through "Track n".
func MakeTracks(n int) []services.SpotifyPlaylistTrack {
	tracks := make([]services.SpotifyPlaylistTrack, n)
	for i := range tracks {
		tracks[i] = services.SpotifyPlaylistTrack{Track: &services.SpotifyTrack{
			ID:      fmt.Sprintf("t%d", i+1),
			Name:    fmt.Sprintf("Track %d", i+1),
			Artists: []services.SpotifyArtist{{Name: fmt.Sprintf("Artist %d", i+1)}},
			Album:   services.SpotifyAlbum{Name: fmt.Sprintf("Album %d", i+1)},
		}}
	}
	return tracks
}

// MemoryRunRepository is an in-memory [models.Repository] for runs. Stored runs are copies.
type MemoryRunRepository struct {
	mu       sync.Mutex
	runs     map[string]models.Run
	sequence int
	Updates  int
}

// NewMemoryRunRepository creates an empty repository.
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: map[string]models.Run{}}
}

func (m *MemoryRunRepository) Create(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequence++
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	run.Sequence = m.sequence
	m.runs[run.ID] = copyRun(run)
	return nil
}

func (m *MemoryRunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, shared.ErrRunNotFound
	}
	c := copyRun(&run)
	return &c, nil
}

func (m *MemoryRunRepository) Update(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; !ok {
		return shared.ErrRunNotFound
	}
	m.runs[run.ID] = copyRun(run)
	m.Updates++
	return nil
}

func (m *MemoryRunRepository) List(ctx context.Context, limit int) ([]*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]*models.Run, 0, len(m.runs))
	for _, r := range m.runs {
		c := copyRun(&r)
		runs = append(runs, &c)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Sequence > runs[j].Sequence })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func copyRun(r *models.Run) models.Run {
	c := *r
	c.Playlists = slices.Clone(r.Playlists)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

// FailingRunRepository rejects every write.
type FailingRunRepository struct {
	MemoryRunRepository
}

func (f *FailingRunRepository) Create(ctx context.Context, run *models.Run) error {
	return errors.New("database is locked")
}

func (f *FailingRunRepository) Update(ctx context.Context, run *models.Run) error {
	return errors.New("database is locked")
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// FixedReader returns the same byte forever.
type FixedReader byte

func (r FixedReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

// FailingReader fails every read.
type FailingReader struct{}

func (FailingReader) Read(p []byte) (int, error) {
	return 0, errors.New("read failed")
}

// Token returns a bearer token usable with the fakes.
func Token() *oauth2.Token {
	return &oauth2.Token{AccessToken: "test_access_token", TokenType: "Bearer"}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("File should not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
