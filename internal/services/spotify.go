// Spotify API implementation of the token exchange and paginated listing endpoints.
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/spotify-backup/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// PageSize is the fixed number of items requested per page from listing endpoints.
const PageSize = 50

// ScopePlaylistReadPrivate is the only scope the backup requests.
const ScopePlaylistReadPrivate = "playlist-read-private"

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	Album   SpotifyAlbum    `json:"album"`
	URI     string          `json:"uri"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
//
// Track is nil for entries Spotify can no longer resolve.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// FirstArtist returns the name of the first credited artist, or "" when there is none.
func (t *SpotifyTrack) FirstArtist() string {
	if t == nil || len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

// Flatten returns the entry as a [Track]. Unresolvable entries produce an empty Track.
func (t SpotifyPlaylistTrack) Flatten() Track {
	if t.Track == nil {
		return Track{}
	}
	return Track{
		ID:     t.Track.ID,
		Title:  t.Track.Name,
		Artist: t.Track.FirstArtist(),
		Album:  t.Track.Album.Name,
	}
}

// TracksPage is one page of the playlist tracks endpoint.
type TracksPage struct {
	Items    []SpotifyPlaylistTrack `json:"items"`
	Total    int                    `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
	Next     *string                `json:"next"`
	Previous *string                `json:"previous"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       Owner               `json:"owner"`
	Public      bool                `json:"public"`
	Tracks      simplePlaylistTrack `json:"tracks"`
	URI         string              `json:"uri"`
}

// Playlist converts the API object to a [Playlist].
func (p SpotifySimplePlaylist) Playlist() Playlist {
	return Playlist{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		TrackCount:  p.Tracks.Total,
		Public:      p.Public,
	}
}

// PlaylistsPage is one page of the current user's playlists.
type PlaylistsPage struct {
	Items    []SpotifySimplePlaylist `json:"items"`
	Total    int                     `json:"total"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
	Next     *string                 `json:"next"`
	Previous *string                 `json:"previous"`
}

// apiError is the error object returned by the Web API.
type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService talks to the Spotify accounts service and Web API.
//
// It holds no token: every API call takes the token obtained by the authorization flow that started it.
type SpotifyService struct {
	config     *oauth2.Config
	apiURL     string
	httpClient *http.Client
}

// NewSpotifyService creates a new Spotify service from the configured credentials.
//
// A nil httpClient uses [http.DefaultClient].
func NewSpotifyService(creds shared.SpotifyConfig, httpClient *http.Client) (*SpotifyService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}
	if creds.RedirectURI == "" {
		creds.RedirectURI = "http://localhost:3000/callback"
	}
	if creds.AuthURL == "" {
		creds.AuthURL = spotifyAuthURL
	}
	if creds.TokenURL == "" {
		creds.TokenURL = spotifyTokenURL
	}
	if creds.APIURL == "" {
		creds.APIURL = spotifyBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{ScopePlaylistReadPrivate},
		Endpoint: oauth2.Endpoint{
			AuthURL:   creds.AuthURL,
			TokenURL:  creds.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	return &SpotifyService{
		config:     config,
		apiURL:     strings.TrimRight(creds.APIURL, "/"),
		httpClient: httpClient,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthCodeURL returns the authorization URL carrying response_type=code, client_id, scope, redirect_uri and state.
func (s *SpotifyService) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token with a single POST to the token endpoint.
//
// Client credentials are sent as HTTP Basic auth. There is no retry. x/oauth2 URL-escapes the client id and
// secret before encoding them, which leaves Spotify's hex credentials unchanged.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", shared.ErrTokenExchange)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenExchange, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access token", shared.ErrTokenExchange)
	}

	return token, nil
}

// PlaylistTracksPage fetches one page of a playlist's tracks starting at offset.
func (s *SpotifyService) PlaylistTracksPage(ctx context.Context, token *oauth2.Token, playlistID string, offset int) (*TracksPage, error) {
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))

	var page TracksPage
	if err := s.doRequest(ctx, token, endpoint, pageQuery(offset), &page); err != nil {
		return nil, fmt.Errorf("%w: playlist %s offset %d: %v", shared.ErrPageFetch, playlistID, offset, err)
	}
	return &page, nil
}

// UserPlaylistsPage fetches one page of the current user's playlists starting at offset.
func (s *SpotifyService) UserPlaylistsPage(ctx context.Context, token *oauth2.Token, offset int) (*PlaylistsPage, error) {
	var page PlaylistsPage
	if err := s.doRequest(ctx, token, "/me/playlists", pageQuery(offset), &page); err != nil {
		return nil, fmt.Errorf("%w: offset %d: %v", shared.ErrPlaylistList, offset, err)
	}
	return &page, nil
}

func pageQuery(offset int) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(PageSize))
	q.Set("offset", strconv.Itoa(offset))
	return q
}

// doRequest performs an authenticated GET against the Web API and decodes the JSON body into result.
func (s *SpotifyService) doRequest(ctx context.Context, token *oauth2.Token, endpoint string, query url.Values, result any) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: no access token", shared.ErrAPIRequest)
	}

	apiURL := s.apiURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("spotify API error: status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("spotify API error: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
