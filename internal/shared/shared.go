// package shared defines shared helpers
package shared

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const stateAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// StateLength is the number of characters in an authorization state token.
const StateLength = 16

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// GenerateState returns a random alphanumeric string of [StateLength] characters read from [crypto/rand].
func GenerateState() (string, error) {
	return GenerateStateFrom(rand.Reader, StateLength)
}

// GenerateStateFrom returns a random string of n characters drawn from [A-Za-z0-9] using bytes from r.
//
// Bytes outside the largest multiple of the alphabet size are discarded so every character is equally likely.
func GenerateStateFrom(r io.Reader, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("%w: state length must be positive", ErrInvalidArgument)
	}

	limit := byte(256 - 256%len(stateAlphabet))
	out := make([]byte, 0, n)
	buf := make([]byte, n)

	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, stateAlphabet[int(b)%len(stateAlphabet)])
			if len(out) == n {
				break
			}
		}
	}

	return string(out), nil
}

// SanitizeName strips every literal ".0" and every single quote from a playlist name so it can be used as a file name.
//
// Removal runs until nothing changes, so inputs like "..00" that produce a new ".0" after one pass still end up clean.
func SanitizeName(name string) string {
	for {
		cleaned := strings.ReplaceAll(strings.ReplaceAll(name, ".0", ""), "'", "")
		if cleaned == name {
			return cleaned
		}
		name = cleaned
	}
}

// MarshalJSON encodes v as JSON, indented with indent when it is non-empty.
//
// HTML escaping is disabled so track names containing & or < are written verbatim.
func MarshalJSON(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
