package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/bloom/internal/models"
)

// ErrConsentCancelled is returned by an AuthSession when the consent page is closed
// or the session ends without reaching the redirect URI
var ErrConsentCancelled = errors.New("consent cancelled")

// DeviceAuthLinker links a Fitbit account and proxies reads against its Web API.
// Failures are logged and surface as false or nil.
type DeviceAuthLinker interface {
	// CheckConnection re-reads the stored access token and updates the connected flag
	CheckConnection(ctx context.Context) bool

	// Connect runs the interactive consent flow and persists the issued credential
	Connect(ctx context.Context) bool

	// ExchangeCodeForToken trades an authorization code for a credential
	ExchangeCodeForToken(ctx context.Context, code string) bool

	// RefreshToken trades the stored refresh token for a new access token
	RefreshToken(ctx context.Context) bool

	// Disconnect removes every stored credential key
	Disconnect(ctx context.Context)

	// IsConnected returns the cached connected flag
	IsConnected() bool

	// Credential returns the stored credential, ErrKeyNotFound when unlinked
	Credential(ctx context.Context) (*models.AccessCredential, error)

	// GetFitbitData performs an authenticated GET against an API-relative endpoint
	GetFitbitData(ctx context.Context, endpoint string) map[string]interface{}

	GetHeartRateData(ctx context.Context, date string) map[string]interface{}
	GetStepsData(ctx context.Context, date string) map[string]interface{}
	GetSleepData(ctx context.Context, date string) map[string]interface{}
	GetWeightData(ctx context.Context, date string) map[string]interface{}
	GetDataForRange(ctx context.Context, endpoint, startDate, endDate string) map[string]interface{}
}

// AuthSession presents the consent page to the user and captures the redirect.
// It returns the full callback URL including its query string.
type AuthSession interface {
	Open(ctx context.Context, authURL string, redirectURI string) (string, error)
}
