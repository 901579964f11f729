// package services defines the provider types shared by the backup pipeline and the Spotify Web API client.
package services

// Playlist identifies a remote playlist owned or followed by the authorized user.
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Public      bool
}

// Track is the flattened view of a playlist entry used for snapshots.
type Track struct {
	ID     string
	Title  string
	Artist string
	Album  string
}
