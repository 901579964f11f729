package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authorization flow errors
	ErrStateMismatch = fmt.Errorf("state mismatch")
	ErrAuthDenied    = fmt.Errorf("authorization denied")
	ErrTokenExchange = fmt.Errorf("token exchange failed")

	// API errors
	ErrAPIRequest   = fmt.Errorf("API request failed")
	ErrPlaylistList = fmt.Errorf("playlist listing failed")
	ErrPageFetch    = fmt.Errorf("page fetch failed")

	// Persistence errors
	ErrFileWrite   = fmt.Errorf("snapshot write failed")
	ErrRunNotFound = fmt.Errorf("run not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
