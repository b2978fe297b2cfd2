package services

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"
)

const apiKeyPrefix = "mrk_"

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random v4 UUID (122 random bits).
func NewID() string {
	return uuid.NewString()
}

// NewAPIKey returns a prefixed token carrying 20 random bytes.
func NewAPIKey() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + strings.ToLower(keyEncoding.EncodeToString(buf)), nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// startOfUTCDay is the quota window boundary for t.
func startOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
