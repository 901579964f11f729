package shared

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables read after the TOML file, usually from a .env file.
// playlistsToBackup holds a JSON array of playlist names.
const (
	EnvClientID     = "clientId"
	EnvClientSecret = "clientSecret"
	EnvPlaylists    = "playlistsToBackup"
)

// Config represents the application configuration loaded from a TOML file.
//
// A Config is built once at startup and treated as read-only afterwards.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Backup      BackupConfig      `toml:"backup"`
	Database    DatabaseConfig    `toml:"database"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and endpoints.
//
// The endpoint fields default to the public Spotify URLs and exist so the client
// can be pointed at a test server.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
	APIURL       string `toml:"api_url"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Host      string  `toml:"host"`
	Port      int     `toml:"port"`
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// BackupConfig contains the playlist allow-list and snapshot output settings.
type BackupConfig struct {
	Playlists      []string `toml:"playlists"`
	OutputDir      string   `toml:"output_dir"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration wraps [time.Duration] so it can be written as "30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Address returns the host:port the listener binds to.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BaseURL returns the local URL of the listener.
func (s ServerConfig) BaseURL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// ParsedLevel parses the configured level, falling back to [log.InfoLevel].
func (l LogConfig) ParsedLevel() log.Level {
	level, err := log.ParseLevel(strings.ToLower(l.Level))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// AllowList returns a copy of the configured playlist names.
func (b BackupConfig) AllowList() []string {
	names := make([]string, len(b.Playlists))
	copy(names, b.Playlists)
	return names
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	config.Backup.Playlists = nil
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays credentials and the allow-list from the process environment.
//
// A .env file at envPath is loaded first when it exists; variables already set in the
// environment take precedence over it.
func (c *Config) ApplyEnv(envPath string) error {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, envPath, err)
			}
		}
	}

	if v := os.Getenv(EnvClientID); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv(EnvPlaylists); v != "" {
		var names []string
		if err := json.Unmarshal([]byte(v), &names); err != nil {
			return fmt.Errorf("%w: %s must be a JSON array of strings: %v", ErrInvalidConfig, EnvPlaylists, err)
		}
		c.Backup.Playlists = names
	}

	return nil
}

// Validate checks the settings required to run a backup.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret must be set", ErrMissingCredentials)
	}
	if c.Credentials.Spotify.RedirectURI == "" {
		return fmt.Errorf("%w: spotify redirect_uri must be set", ErrInvalidConfig)
	}
	if len(c.Backup.Playlists) == 0 {
		return fmt.Errorf("%w: backup.playlists is empty", ErrInvalidConfig)
	}
	if c.Backup.OutputDir == "" {
		return fmt.Errorf("%w: backup.output_dir must be set", ErrInvalidConfig)
	}
	return nil
}
