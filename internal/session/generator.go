package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// SessionIDLength is the length of the random part in bytes
	SessionIDLength = 32
	// SessionIDPrefix is the prefix for session IDs
	SessionIDPrefix = "sess"
)

var (
	timestampPattern = regexp.MustCompile(`^\d+$`)
	randomPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// SessionIDGenerator produces IDs of the form sess.<unix>.<base64url random>.
// The dot separator keeps the ID safe in a query string.
type SessionIDGenerator struct{}

// NewSessionIDGenerator creates a new session ID generator
func NewSessionIDGenerator() *SessionIDGenerator {
	return &SessionIDGenerator{}
}

// Generate creates a new cryptographically secure session ID
func (g *SessionIDGenerator) Generate() (string, error) {
	randomBytes := make([]byte, SessionIDLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", newSessionGenerationError(err)
	}

	return fmt.Sprintf("%s.%d.%s",
		SessionIDPrefix,
		time.Now().Unix(),
		base64.RawURLEncoding.EncodeToString(randomBytes),
	), nil
}

// Validate checks if a session ID has the correct format
func (g *SessionIDGenerator) Validate(sessionID string) error {
	if sessionID == "" {
		return newSessionInvalidError("empty session ID")
	}

	parts := strings.Split(sessionID, ".")
	switch {
	case len(parts) != 3:
		return newSessionInvalidError("invalid session ID format")
	case parts[0] != SessionIDPrefix:
		return newSessionInvalidError("invalid session ID prefix")
	case !timestampPattern.MatchString(parts[1]):
		return newSessionInvalidError("invalid timestamp in session ID")
	case !randomPattern.MatchString(parts[2]):
		return newSessionInvalidError("invalid characters in session ID")
	case len(parts[2]) < base64.RawURLEncoding.EncodedLen(SessionIDLength):
		return newSessionInvalidError("session ID random part too short")
	}

	return nil
}

// ExtractTimestamp extracts the timestamp from a session ID for debugging
func (g *SessionIDGenerator) ExtractTimestamp(sessionID string) (int64, error) {
	if err := g.Validate(sessionID); err != nil {
		return 0, err
	}

	ts, err := strconv.ParseInt(strings.Split(sessionID, ".")[1], 10, 64)
	if err != nil {
		return 0, newSessionInvalidError("failed to parse timestamp")
	}
	return ts, nil
}
