// Package services implements the Spotify side of the backup: the OAuth2 authorization-code exchange and the
// offset-paginated listing endpoints the exporter walks.
//
// # Authorization
//
// [SpotifyService] wraps an [oauth2.Config] whose endpoint uses [oauth2.AuthStyleInHeader], so the token
// request carries the client id and secret as HTTP Basic credentials and a form body with
// grant_type=authorization_code, code and redirect_uri.
//
// # Pagination
//
// [SpotifyService.UserPlaylistsPage] and [SpotifyService.PlaylistTracksPage] each issue exactly one GET with
// limit=[PageSize] and the requested offset. Walking the pages is left to the caller (see package tasks).
//
// # Error Handling
//
// Failures wrap sentinel errors from the shared package:
//   - [shared.ErrTokenExchange] : token endpoint call failed or returned no access token
//   - [shared.ErrPlaylistList] : listing the user's playlists failed
//   - [shared.ErrPageFetch] : fetching a page of playlist tracks failed
//
// Nothing is retried.
package services
