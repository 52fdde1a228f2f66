// Package fitbit links a Fitbit account over OAuth2 and proxies reads against the Fitbit Web API.
package fitbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/common"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// maxRefreshRetries bounds how many times a 401 triggers refresh-and-retry per read
const maxRefreshRetries = 1

// maxResponseBytes caps how much of an API response is read
const maxResponseBytes = 10 << 20

// Linker implements interfaces.DeviceAuthLinker against the Fitbit Web API.
// The KV store is the single source of truth for the credential.
type Linker struct {
	config       common.FitbitConfig
	oauth        *oauth2.Config
	kvStorage    interfaces.KeyValueStorage
	session      interfaces.AuthSession
	eventService interfaces.EventService
	httpClient   *http.Client
	limiter      *rate.Limiter
	now          func() time.Time
	newState     func() string
	logger       arbor.ILogger

	connected  atomic.Bool
	connecting atomic.Bool
	refreshMu  sync.Mutex // one refresh at a time; refresh tokens are single-use

	pendingMu      sync.RWMutex // guards pendingURL and lastConnectErr
	pendingURL     string
	lastConnectErr string
}

var _ interfaces.DeviceAuthLinker = (*Linker)(nil)

// Option configures the Linker
type Option func(*Linker)

// WithHTTPClient sets the client used for token and API calls
func WithHTTPClient(client *http.Client) Option {
	return func(l *Linker) {
		l.httpClient = client
	}
}

// WithEventService publishes fitbit.connected and fitbit.disconnected
func WithEventService(eventService interfaces.EventService) Option {
	return func(l *Linker) {
		l.eventService = eventService
	}
}

// WithClock overrides time.Now for default dates and the stored token expiry
func WithClock(now func() time.Time) Option {
	return func(l *Linker) {
		l.now = now
	}
}

// WithStateGenerator overrides the OAuth state value generator
func WithStateGenerator(newState func() string) Option {
	return func(l *Linker) {
		l.newState = newState
	}
}

// NewLinker creates a Linker. clientSecret is resolved by the caller (env, KV or config).
// session may be nil, in which case Connect always fails and codes must be supplied
// through ExchangeCodeForToken.
func NewLinker(config common.FitbitConfig, clientSecret string, kvStorage interfaces.KeyValueStorage, session interfaces.AuthSession, logger arbor.ILogger, opts ...Option) *Linker {
	l := &Linker{
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: clientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		kvStorage: kvStorage,
		session:   session,
		httpClient: &http.Client{
			Timeout: common.ParseDurationOr(config.RequestTimeout, 30*time.Second),
		},
		limiter:  newLimiter(config.RateLimitPerHour),
		now:      time.Now,
		newState: common.NewOAuthState,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func newLimiter(perHour int) *rate.Limiter {
	if perHour <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(perHour)/3600), perHour)
}

// oauthContext carries the linker's HTTP client into the oauth2 package
func (l *Linker) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, l.httpClient)
}

// CheckConnection re-reads the stored access token. No network call is made.
func (l *Linker) CheckConnection(ctx context.Context) bool {
	token, err := l.kvStorage.Get(ctx, models.KeyFitbitAccessToken)
	if err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
		l.logger.Warn().Err(err).Msg("Failed to read Fitbit access token")
	}
	connected := err == nil && token != ""
	l.connected.Store(connected)
	return connected
}

// IsConnected returns the flag from the last check, connect or disconnect
func (l *Linker) IsConnected() bool {
	return l.connected.Load()
}

// IsConnecting reports whether a Connect is waiting on the consent flow
func (l *Linker) IsConnecting() bool {
	return l.connecting.Load()
}

// PendingAuthURL returns the consent URL while a Connect is waiting on the user
func (l *Linker) PendingAuthURL() string {
	l.pendingMu.RLock()
	defer l.pendingMu.RUnlock()
	return l.pendingURL
}

func (l *Linker) setPendingURL(u string) {
	l.pendingMu.Lock()
	l.pendingURL = u
	l.pendingMu.Unlock()
}

// AuthCodeURL builds the consent URL for state
func (l *Linker) AuthCodeURL(state string) string {
	return l.oauth.AuthCodeURL(state)
}

// Connect runs the interactive consent flow. It returns false on cancel, denial,
// state mismatch or a failed exchange, and immediately when another Connect is in flight.
func (l *Linker) Connect(ctx context.Context) bool {
	if !l.claimConnect() {
		return false
	}
	return l.runConnect(ctx)
}

// StartConnect claims the in-flight slot and runs the consent flow in the background.
// It returns false, starting nothing, when a Connect is already in flight. The
// returned channel receives the outcome once.
func (l *Linker) StartConnect(ctx context.Context) (<-chan bool, bool) {
	if !l.claimConnect() {
		return nil, false
	}

	result := make(chan bool, 1)
	common.SafeGo(l.logger, "fitbit-connect", func() {
		ok := false
		defer func() { result <- ok }()
		ok = l.runConnect(ctx)
	})
	return result, true
}

// LastConnectError describes why the most recent Connect failed, empty after a success
func (l *Linker) LastConnectError() string {
	l.pendingMu.RLock()
	defer l.pendingMu.RUnlock()
	return l.lastConnectErr
}

func (l *Linker) claimConnect() bool {
	if !l.connecting.CompareAndSwap(false, true) {
		l.logger.Warn().Msg("Fitbit connect already in progress")
		return false
	}
	return true
}

// runConnect owns the in-flight slot claimed by claimConnect
func (l *Linker) runConnect(ctx context.Context) bool {
	defer l.connecting.Store(false)

	err := l.connect(ctx)

	l.pendingMu.Lock()
	l.lastConnectErr = ""
	if err != nil {
		l.lastConnectErr = err.Error()
	}
	l.pendingMu.Unlock()

	return err == nil
}

func (l *Linker) connect(ctx context.Context) error {
	if l.session == nil {
		l.logger.Error().Msg("No Fitbit auth session configured")
		return errors.New("no auth session configured")
	}
	if l.oauth.ClientID == "" {
		l.logger.Error().Msg("Fitbit client_id is not configured")
		return errors.New("fitbit client_id is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, common.ParseDurationOr(l.config.ConsentTimeout, 5*time.Minute))
	defer cancel()

	state := l.newState()
	authURL := l.AuthCodeURL(state)

	l.setPendingURL(authURL)
	defer l.setPendingURL("")

	l.logger.Info().Str("redirect_uri", l.config.RedirectURI).Msg("Starting Fitbit consent")

	callbackURL, err := l.session.Open(ctx, authURL, l.config.RedirectURI)
	if err != nil {
		if errors.Is(err, interfaces.ErrConsentCancelled) || errors.Is(err, context.DeadlineExceeded) {
			l.logger.Info().Err(err).Msg("Fitbit consent did not complete")
		} else {
			l.logger.Error().Err(err).Msg("Fitbit consent session failed")
		}
		return fmt.Errorf("consent did not complete: %w", err)
	}

	code, err := codeFromCallback(callbackURL, state)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Fitbit consent callback rejected")
		return err
	}

	if !l.ExchangeCodeForToken(ctx, code) {
		return errors.New("code exchange failed")
	}
	return nil
}

// codeFromCallback extracts the authorization code, checking state and provider errors
func codeFromCallback(callbackURL, expectedState string) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", fmt.Errorf("invalid callback URL: %w", err)
	}

	query := u.Query()
	if e := query.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s %s", e, query.Get("error_description"))
	}
	if query.Get("state") != expectedState {
		return "", fmt.Errorf("state mismatch")
	}

	code := query.Get("code")
	if code == "" {
		return "", fmt.Errorf("callback has no code")
	}
	return code, nil
}

// ExchangeCodeForToken trades code for a credential and stores it in one transaction.
// Nothing is written unless the response carries an access token.
func (l *Linker) ExchangeCodeForToken(ctx context.Context, code string) bool {
	if code == "" {
		l.logger.Warn().Msg("Empty authorization code")
		return false
	}

	token, err := l.oauth.Exchange(l.oauthContext(ctx), code)
	if err != nil {
		l.logger.Error().Err(err).Msg("Fitbit code exchange failed")
		return false
	}
	if token.AccessToken == "" {
		l.logger.Error().Msg("Fitbit token response has no access_token")
		return false
	}

	if err := l.storeToken(ctx, token); err != nil {
		l.logger.Error().Err(err).Msg("Failed to store Fitbit credential")
		return false
	}

	l.connected.Store(true)
	l.logger.Info().Bool("has_refresh_token", token.RefreshToken != "").Msg("Fitbit account linked")
	l.publish(ctx, interfaces.EventFitbitConnected, nil)
	return true
}

// RefreshToken trades the stored refresh token for a new access token.
// On failure the stale credential is left in place.
func (l *Linker) RefreshToken(ctx context.Context) bool {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	refreshToken, err := l.kvStorage.Get(ctx, models.KeyFitbitRefreshToken)
	if err != nil || refreshToken == "" {
		if err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
			l.logger.Warn().Err(err).Msg("Failed to read Fitbit refresh token")
		} else {
			l.logger.Warn().Msg("No Fitbit refresh token stored")
		}
		return false
	}

	token, err := l.oauth.TokenSource(l.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		l.logger.Error().Err(err).Msg("Fitbit token refresh failed")
		return false
	}
	if token.AccessToken == "" {
		l.logger.Error().Msg("Fitbit refresh response has no access_token")
		return false
	}

	if err := l.storeToken(ctx, token); err != nil {
		l.logger.Error().Err(err).Msg("Failed to store refreshed Fitbit credential")
		return false
	}

	l.logger.Debug().Msg("Fitbit access token refreshed")
	return true
}

// storeToken writes the access token plus whichever of refresh token and expiry are present
func (l *Linker) storeToken(ctx context.Context, token *oauth2.Token) error {
	values := map[string]string{
		models.KeyFitbitAccessToken: token.AccessToken,
	}
	if token.RefreshToken != "" {
		values[models.KeyFitbitRefreshToken] = token.RefreshToken
	}
	if expiry := l.tokenExpiry(token); !expiry.IsZero() {
		values[models.KeyFitbitTokenExpiry] = models.FormatEpochMs(expiry)
	}
	return l.kvStorage.SetMany(ctx, values, "Fitbit OAuth credential")
}

// tokenExpiry is now + expires_in on the linker clock. The library's Expiry
// is only used when the response carries no usable expires_in.
func (l *Linker) tokenExpiry(token *oauth2.Token) time.Time {
	secs := token.ExpiresIn
	if secs <= 0 {
		secs = expiresIn(token.Extra("expires_in"))
	}
	if secs > 0 {
		return l.now().Add(time.Duration(secs) * time.Second)
	}
	return token.Expiry
}

func expiresIn(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

// Disconnect deletes the stored credential. The token is revoked with Fitbit first
// only when revoke_on_disconnect is set.
func (l *Linker) Disconnect(ctx context.Context) {
	if l.config.RevokeOnDisconnect {
		l.revoke(ctx)
	}

	if err := l.kvStorage.DeleteMany(ctx, models.CredentialKeys); err != nil {
		l.logger.Error().Err(err).Msg("Failed to delete Fitbit credential")
	}

	l.connected.Store(false)
	l.logger.Info().Msg("Fitbit account unlinked")
	l.publish(ctx, interfaces.EventFitbitDisconnected, nil)
}

func (l *Linker) revoke(ctx context.Context) {
	token, err := l.kvStorage.Get(ctx, models.KeyFitbitAccessToken)
	if err != nil || token == "" {
		return
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.config.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to build Fitbit revoke request")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(l.oauth.ClientID), url.QueryEscape(l.oauth.ClientSecret))

	resp, err := l.httpClient.Do(req)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Fitbit token revoke failed")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		l.logger.Warn().Int("status", resp.StatusCode).Msg("Fitbit token revoke rejected")
	}
}

// Credential returns the stored credential, ErrKeyNotFound when no access token is stored
func (l *Linker) Credential(ctx context.Context) (*models.AccessCredential, error) {
	access, err := l.kvStorage.Get(ctx, models.KeyFitbitAccessToken)
	if err != nil {
		return nil, err
	}

	cred := &models.AccessCredential{AccessToken: access}
	if refresh, err := l.kvStorage.Get(ctx, models.KeyFitbitRefreshToken); err == nil {
		cred.RefreshToken = refresh
	}
	if expiry, err := l.kvStorage.Get(ctx, models.KeyFitbitTokenExpiry); err == nil {
		cred.ExpiresAtEpochMs = models.ParseEpochMs(expiry)
	}
	return cred, nil
}

// GetFitbitData performs an authenticated GET on an API-relative endpoint and returns
// the decoded JSON object. A 401 triggers one refresh and one retry; any other
// failure yields nil.
func (l *Linker) GetFitbitData(ctx context.Context, endpoint string) map[string]interface{} {
	for attempt := 0; ; attempt++ {
		token, err := l.kvStorage.Get(ctx, models.KeyFitbitAccessToken)
		if err != nil || token == "" {
			l.logger.Debug().Str("endpoint", endpoint).Msg("Fitbit not linked, skipping request")
			return nil
		}

		status, body, err := l.get(ctx, endpoint, token)
		if err != nil {
			l.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Fitbit request failed")
			return nil
		}

		switch {
		case status == http.StatusOK:
			var data map[string]interface{}
			if err := json.Unmarshal(body, &data); err != nil {
				l.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Fitbit response is not a JSON object")
				return nil
			}
			return data

		case status == http.StatusUnauthorized && attempt < maxRefreshRetries:
			l.logger.Debug().Str("endpoint", endpoint).Msg("Fitbit access token rejected, refreshing")
			if !l.RefreshToken(ctx) {
				return nil
			}

		default:
			l.logger.Warn().
				Int("status", status).
				Int("attempt", attempt+1).
				Str("endpoint", endpoint).
				Str("body", truncate(string(body), 200)).
				Msg("Fitbit request rejected")
			return nil
		}
	}
}

func (l *Linker) get(ctx context.Context, endpoint, token string) (int, []byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := strings.TrimRight(l.config.APIBaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// GetHeartRateData returns the heart-rate summary for date (YYYY-MM-DD, empty for today)
func (l *Linker) GetHeartRateData(ctx context.Context, date string) map[string]interface{} {
	return l.getDaily(ctx, heartRateEndpoint, date)
}

// GetStepsData returns the step count for date
func (l *Linker) GetStepsData(ctx context.Context, date string) map[string]interface{} {
	return l.getDaily(ctx, stepsEndpoint, date)
}

// GetSleepData returns the sleep log for date
func (l *Linker) GetSleepData(ctx context.Context, date string) map[string]interface{} {
	return l.getDaily(ctx, sleepEndpoint, date)
}

// GetWeightData returns the weight log for date
func (l *Linker) GetWeightData(ctx context.Context, date string) map[string]interface{} {
	return l.getDaily(ctx, weightEndpoint, date)
}

// GetDataForRange returns the time series for an activity resource such as
// "activities/steps" between two dates
func (l *Linker) GetDataForRange(ctx context.Context, endpoint, startDate, endDate string) map[string]interface{} {
	path, err := rangeEndpointFor(endpoint, startDate, endDate)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Rejected Fitbit range request")
		return nil
	}
	return l.GetFitbitData(ctx, path)
}

func (l *Linker) getDaily(ctx context.Context, template, date string) map[string]interface{} {
	path, err := l.dailyEndpoint(template, date)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Rejected Fitbit request")
		return nil
	}
	return l.GetFitbitData(ctx, path)
}

func (l *Linker) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if l.eventService == nil {
		return
	}
	if err := l.eventService.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		l.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish Fitbit event")
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
