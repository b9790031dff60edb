// Package models holds the wire-level types and validation shared by the
// server and the client CLI: API keys, observation payloads, UUIDv7
// identifiers and the query limit policy.
package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/rescrv/brief-measure/internal/shared/apperr"
)

const (
	// APIKeyLength is the size in bytes of the bearer secret.
	APIKeyLength = 32
	// ObservationLength is the exact payload size in characters.
	ObservationLength = 10
)

// APIKey is an opaque 32-byte bearer secret. It is both identity and
// authorization: possession of the exact bytes is the whole auth model.
// Keys compare by value.
type APIKey [APIKeyLength]byte

// GenerateAPIKey draws a fresh key from the system entropy source. A failure
// here is fatal I/O, not a domain error.
func GenerateAPIKey() (APIKey, error) {
	var key APIKey
	if _, err := rand.Read(key[:]); err != nil {
		return APIKey{}, apperr.Internal("entropy source unavailable", err)
	}
	return key, nil
}

// ParseAPIKey decodes the 64-character hex rendering of a key. Surrounding
// whitespace is tolerated. Any malformed input maps to ErrUnauthorized so
// callers cannot tell a bad key from an unknown one.
func ParseAPIKey(s string) (APIKey, error) {
	s = strings.TrimSpace(s)
	if len(s) != APIKeyLength*2 {
		return APIKey{}, apperr.ErrUnauthorized
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return APIKey{}, apperr.ErrUnauthorized
	}
	var key APIKey
	copy(key[:], raw)
	return key, nil
}

// Hex renders the key as 64 lowercase hex characters.
func (k APIKey) Hex() string {
	return hex.EncodeToString(k[:])
}

// Observation is the wire form of one stored record. Field names are part of
// the HTTP contract.
type Observation struct {
	UUIDv7      string `json:"uuidv7"`
	Observation string `json:"observation"`
}

// APIKeyResponse is the body returned by POST /api/v1/keys.
type APIKeyResponse struct {
	APIKey string `json:"api_key"`
}

// ParseUUIDv7 parses a textual UUID and requires version 7. The version-7
// timestamp bits make the raw value sort chronologically, which the store
// relies on for retrieval order, so no other version is accepted.
func ParseUUIDv7(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, apperr.ErrInvalidUUID
	}
	if id.Version() != 7 {
		return uuid.UUID{}, apperr.ErrInvalidUUID
	}
	return id, nil
}

// ParseObservation validates a payload: exactly ObservationLength characters,
// each one of '1' '2' '3' '4'. No trimming, no normalization. The returned
// buffer holds the ASCII bytes verbatim.
func ParseObservation(s string) ([ObservationLength]byte, error) {
	var buf [ObservationLength]byte
	if len(s) != ObservationLength {
		return buf, apperr.ErrInvalidObservation
	}
	for i := 0; i < ObservationLength; i++ {
		c := s[i]
		if c < '1' || c > '4' {
			return buf, apperr.ErrInvalidObservation
		}
		buf[i] = c
	}
	return buf, nil
}

// ApplyLimit normalizes a client-requested result bound. Absent means the
// default; zero, negative, or above-max values are rejected.
func ApplyLimit(limit *int64, defaultLimit, maxLimit int64) (int64, error) {
	if limit == nil {
		return defaultLimit, nil
	}
	if *limit <= 0 || *limit > maxLimit {
		return 0, apperr.ErrInvalidLimit
	}
	return *limit, nil
}
