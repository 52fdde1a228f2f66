package common

import (
	"github.com/google/uuid"
)

// NewOAuthState returns an opaque value for the OAuth2 state parameter
func NewOAuthState() string {
	return uuid.New().String()
}

// NewInstanceID identifies a server process, e.g. for websocket clients detecting restarts
func NewInstanceID() string {
	return "srv_" + uuid.New().String()
}
