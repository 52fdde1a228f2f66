package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/models"
	"github.com/ternarybob/bloom/internal/services/fitbit"
)

type stubLinker struct {
	connected  bool
	exchangeOK bool
	lastCode   string
	lastDate   string
	lastRange  []string
	data       map[string]interface{}
	connects   chan struct{}
	busy       atomic.Bool // a consent flow holds the in-flight slot
	connectOK  bool
	lastErr    string
}

func (s *stubLinker) CheckConnection(context.Context) bool { return s.connected }
func (s *stubLinker) IsConnected() bool { return s.connected }
func (s *stubLinker) IsConnecting() bool { return s.busy.Load() }
func (s *stubLinker) PendingAuthURL() string { return "" }
func (s *stubLinker) LastConnectError() string { return s.lastErr }
func (s *stubLinker) RefreshToken(context.Context) bool { return s.connected }

func (s *stubLinker) Connect(context.Context) bool {
	if s.connects != nil {
		s.connects <- struct{}{}
	}
	return s.connectOK
}

// StartConnect holds the in-flight slot until Connect returns
func (s *stubLinker) StartConnect(ctx context.Context) (<-chan bool, bool) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, false
	}
	result := make(chan bool, 1)
	go func() {
		ok := s.Connect(ctx)
		s.busy.Store(false)
		result <- ok
	}()
	return result, true
}

func (s *stubLinker) ExchangeCodeForToken(_ context.Context, code string) bool {
	s.lastCode = code
	if s.exchangeOK {
		s.connected = true
	}
	return s.exchangeOK
}

func (s *stubLinker) Disconnect(context.Context) { s.connected = false }

func (s *stubLinker) Credential(context.Context) (*models.AccessCredential, error) {
	if !s.connected {
		return nil, interfaces.ErrKeyNotFound
	}
	return &models.AccessCredential{
		AccessToken:      "a",
		RefreshToken:     "r",
		ExpiresAtEpochMs: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}, nil
}

func (s *stubLinker) GetFitbitData(context.Context, string) map[string]interface{} { return s.data }

func (s *stubLinker) daily(_ context.Context, date string) map[string]interface{} {
	s.lastDate = date
	return s.data
}

func (s *stubLinker) GetHeartRateData(ctx context.Context, date string) map[string]interface{} {
	return s.daily(ctx, date)
}
func (s *stubLinker) GetStepsData(ctx context.Context, date string) map[string]interface{} {
	return s.daily(ctx, date)
}
func (s *stubLinker) GetSleepData(ctx context.Context, date string) map[string]interface{} {
	return s.daily(ctx, date)
}
func (s *stubLinker) GetWeightData(ctx context.Context, date string) map[string]interface{} {
	return s.daily(ctx, date)
}

func (s *stubLinker) GetDataForRange(_ context.Context, endpoint, start, end string) map[string]interface{} {
	s.lastRange = []string{endpoint, start, end}
	return s.data
}

type stubSyncer struct {
	lastDate string
}

func (s *stubSyncer) SyncDay(_ context.Context, date string) (*fitbit.SyncResult, error) {
	s.lastDate = date
	return &fitbit.SyncResult{Date: date, Stored: []string{"steps"}}, nil
}

func (s *stubSyncer) Daily(_ context.Context, date string) (map[string]json.RawMessage, error) {
	return map[string]json.RawMessage{"steps": json.RawMessage(`{"steps":1}`)}, nil
}

func TestFitbitHandler_Status(t *testing.T) {
	linker := &stubLinker{}
	h := NewFitbitHandler(linker, &stubSyncer{}, arbor.NewLogger())

	rec := doJSON(t, h.StatusHandler, http.MethodGet, "/api/fitbit/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeView(t, rec)
	assert.Equal(t, false, status["connected"])
	assert.NotContains(t, status, "expires_at")

	linker.connected = true
	rec = doJSON(t, h.StatusHandler, http.MethodGet, "/api/fitbit/status", nil)
	status = decodeView(t, rec)
	assert.Equal(t, true, status["connected"])
	assert.Equal(t, true, status["has_refresh_token"])
	assert.Equal(t, "2030-01-01T00:00:00Z", mustUTC(t, status["expires_at"]))
}

func mustUTC(t *testing.T, v interface{}) string {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok)
	parsed, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return parsed.UTC().Format(time.RFC3339)
}

func TestFitbitHandler_Exchange(t *testing.T) {
	linker := &stubLinker{}
	h := NewFitbitHandler(linker, &stubSyncer{}, arbor.NewLogger())

	rec := doJSON(t, h.ExchangeHandler, http.MethodPost, "/api/fitbit/exchange", map[string]string{"code": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h.ExchangeHandler, http.MethodPost, "/api/fitbit/exchange", map[string]string{"code": "CODE"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "CODE", linker.lastCode)

	linker.exchangeOK = true
	rec = doJSON(t, h.ExchangeHandler, http.MethodPost, "/api/fitbit/exchange", map[string]string{"code": "CODE"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, linker.connected)

	rec = doJSON(t, h.DisconnectHandler, http.MethodPost, "/api/fitbit/disconnect", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, linker.connected)
}

func TestFitbitHandler_ConnectRunsInBackground(t *testing.T) {
	linker := &stubLinker{connects: make(chan struct{}, 1)}
	h := NewFitbitHandler(linker, &stubSyncer{}, arbor.NewLogger())

	rec := doJSON(t, h.ConnectHandler, http.MethodPost, "/api/fitbit/connect", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-linker.connects:
	case <-time.After(2 * time.Second):
		t.Fatal("connect was not started")
	}
}

func TestFitbitHandler_SecondConnectWhileInFlightConflicts(t *testing.T) {
	// Unbuffered: the first flow blocks until the test reads from connects
	linker := &stubLinker{connects: make(chan struct{})}
	h := NewFitbitHandler(linker, &stubSyncer{}, arbor.NewLogger())

	rec := doJSON(t, h.ConnectHandler, http.MethodPost, "/api/fitbit/connect", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, h.ConnectHandler, http.MethodPost, "/api/fitbit/connect", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	<-linker.connects
	require.Eventually(t, func() bool { return !linker.IsConnecting() }, 2*time.Second, 10*time.Millisecond)

	rec = doJSON(t, h.ConnectHandler, http.MethodPost, "/api/fitbit/connect", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	<-linker.connects
}

func TestFitbitHandler_ConnectWait(t *testing.T) {
	linker := &stubLinker{connectOK: true}
	h := NewFitbitHandler(linker, &stubSyncer{}, arbor.NewLogger())

	rec := doJSON(t, h.ConnectHandler, http.MethodPost, "/api/fitbit/connect?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":true}`, rec.Body.String())
}

func TestFitbitHandler_StatusReportsLastConnectError(t *testing.T) {
	linker := &stubLinker{lastErr: "consent did not complete: consent cancelled"}
	h := NewFitbitHandler(linker, &stubSyncer{}, arbor.NewLogger())

	rec := doJSON(t, h.StatusHandler, http.MethodGet, "/api/fitbit/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "consent did not complete: consent cancelled", body["last_connect_error"])
}

func TestFitbitHandler_DailyReads(t *testing.T) {
	linker := &stubLinker{data: map[string]interface{}{"ok": true}}
	h := NewFitbitHandler(linker, &stubSyncer{}, arbor.NewLogger())

	rec := doJSON(t, h.StepsHandler, http.MethodGet, "/api/fitbit/steps?date=2026-03-01", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "not linked")

	linker.connected = true
	rec = doJSON(t, h.StepsHandler, http.MethodGet, "/api/fitbit/steps?date=2026-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-01", linker.lastDate)

	rec = doJSON(t, h.HeartRateHandler, http.MethodGet, "/api/fitbit/heart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", linker.lastDate)

	rec = doJSON(t, h.SleepHandler, http.MethodGet, "/api/fitbit/sleep?date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	linker.data = nil
	rec = doJSON(t, h.WeightHandler, http.MethodGet, "/api/fitbit/weight", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFitbitHandler_Range(t *testing.T) {
	linker := &stubLinker{connected: true, data: map[string]interface{}{"ok": true}}
	h := NewFitbitHandler(linker, &stubSyncer{}, arbor.NewLogger())

	rec := doJSON(t, h.RangeHandler, http.MethodGet, "/api/fitbit/range?resource=activities/steps&start=2026-03-01&end=2026-03-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"activities/steps", "2026-03-01", "2026-03-07"}, linker.lastRange)

	rec = doJSON(t, h.RangeHandler, http.MethodGet, "/api/fitbit/range?resource=../x&start=2026-03-01&end=2026-03-07", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h.RangeHandler, http.MethodGet, "/api/fitbit/range?resource=activities/steps&start=2026-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFitbitHandler_Sync(t *testing.T) {
	syncer := &stubSyncer{}
	h := NewFitbitHandler(&stubLinker{}, syncer, arbor.NewLogger())

	rec := doJSON(t, h.SyncHandler, http.MethodPost, "/api/fitbit/sync?date=2026-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-01", syncer.lastDate)

	rec = doJSON(t, h.DailyHandler, http.MethodGet, "/api/fitbit/daily?date=2026-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"steps":{"steps":1}`)
}
