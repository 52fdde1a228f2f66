package models

import (
	"strconv"
	"time"
)

// KV keys owned by the Fitbit link
const (
	KeyFitbitAccessToken  = "fitbitAccessToken"
	KeyFitbitRefreshToken = "fitbitRefreshToken"
	KeyFitbitTokenExpiry  = "fitbitTokenExpiry" // epoch milliseconds, decimal string
)

// CredentialKeys lists every KV key that makes up an AccessCredential
var CredentialKeys = []string{KeyFitbitAccessToken, KeyFitbitRefreshToken, KeyFitbitTokenExpiry}

// AccessCredential is the persisted Fitbit OAuth2 credential. The KV store is the
// only authority; no in-memory copy survives a restart.
type AccessCredential struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresAtEpochMs int64  `json:"expires_at_epoch_ms,omitempty"`
}

// ExpiresAt returns the expiry as a time, zero when unknown
func (c *AccessCredential) ExpiresAt() time.Time {
	if c.ExpiresAtEpochMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.ExpiresAtEpochMs)
}

// Expired reports whether the expiry is known and in the past at now
func (c *AccessCredential) Expired(now time.Time) bool {
	return c.ExpiresAtEpochMs != 0 && now.UnixMilli() >= c.ExpiresAtEpochMs
}

// FormatEpochMs renders t as the epoch-millisecond string stored under KeyFitbitTokenExpiry
func FormatEpochMs(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ParseEpochMs parses a stored expiry, returning 0 for empty or malformed values
func ParseEpochMs(s string) int64 {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}
