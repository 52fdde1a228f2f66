package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/services/fitbit"
)

// FitbitLinker is the linker surface the HTTP API needs
type FitbitLinker interface {
	interfaces.DeviceAuthLinker
	IsConnecting() bool
	PendingAuthURL() string
	LastConnectError() string
	StartConnect(ctx context.Context) (<-chan bool, bool)
}

// FitbitSyncer stores and reads daily summaries
type FitbitSyncer interface {
	SyncDay(ctx context.Context, date string) (*fitbit.SyncResult, error)
	Daily(ctx context.Context, date string) (map[string]json.RawMessage, error)
}

// FitbitHandler exposes the Fitbit link and proxied reads
type FitbitHandler struct {
	linker FitbitLinker
	syncer FitbitSyncer
	logger arbor.ILogger
}

func NewFitbitHandler(linker FitbitLinker, syncer FitbitSyncer, logger arbor.ILogger) *FitbitHandler {
	return &FitbitHandler{
		linker: linker,
		syncer: syncer,
		logger: logger,
	}
}

type exchangeRequest struct {
	Code string `json:"code" validate:"required,max=512"`
}

// StatusHandler handles GET /api/fitbit/status
func (h *FitbitHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	connected := h.linker.CheckConnection(r.Context())
	status := map[string]interface{}{
		"connected":  connected,
		"connecting": h.linker.IsConnecting(),
	}
	if pending := h.linker.PendingAuthURL(); pending != "" {
		status["auth_url"] = pending
	}
	if lastErr := h.linker.LastConnectError(); lastErr != "" {
		status["last_connect_error"] = lastErr
	}

	if connected {
		if cred, err := h.linker.Credential(r.Context()); err == nil {
			status["has_refresh_token"] = cred.RefreshToken != ""
			if cred.ExpiresAtEpochMs > 0 {
				status["expires_at"] = cred.ExpiresAt().Format(time.RFC3339)
				status["expired"] = cred.Expired(time.Now())
			}
		}
	}

	WriteJSON(w, http.StatusOK, status)
}

// ConnectHandler handles POST /api/fitbit/connect. The consent flow runs in the
// background; poll the status endpoint for auth_url and last_connect_error.
// With ?wait=true the response waits for the outcome. The flow keeps running
// if the client goes away.
func (h *FitbitHandler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	result, started := h.linker.StartConnect(context.Background())
	if !started {
		WriteError(w, http.StatusConflict, "Fitbit consent already in progress")
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		WriteStarted(w, "Fitbit consent started")
		return
	}

	select {
	case connected := <-result:
		WriteJSON(w, http.StatusOK, map[string]bool{"connected": connected})
	case <-r.Context().Done():
		h.logger.Debug().Msg("Client left before Fitbit consent finished")
	}
}

// ExchangeHandler handles POST /api/fitbit/exchange for codes obtained out of band
func (h *FitbitHandler) ExchangeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req exchangeRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	if !h.linker.ExchangeCodeForToken(r.Context(), req.Code) {
		WriteError(w, http.StatusBadGateway, "Fitbit code exchange failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

// RefreshHandler handles POST /api/fitbit/refresh
func (h *FitbitHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if !h.linker.RefreshToken(r.Context()) {
		WriteError(w, http.StatusBadGateway, "Fitbit token refresh failed")
		return
	}
	WriteSuccess(w, "Fitbit token refreshed")
}

// DisconnectHandler handles POST /api/fitbit/disconnect
func (h *FitbitHandler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.linker.Disconnect(r.Context())
	WriteJSON(w, http.StatusOK, map[string]bool{"connected": false})
}

// HeartRateHandler handles GET /api/fitbit/heart?date=
func (h *FitbitHandler) HeartRateHandler(w http.ResponseWriter, r *http.Request) {
	h.serveDaily(w, r, h.linker.GetHeartRateData)
}

// StepsHandler handles GET /api/fitbit/steps?date=
func (h *FitbitHandler) StepsHandler(w http.ResponseWriter, r *http.Request) {
	h.serveDaily(w, r, h.linker.GetStepsData)
}

// SleepHandler handles GET /api/fitbit/sleep?date=
func (h *FitbitHandler) SleepHandler(w http.ResponseWriter, r *http.Request) {
	h.serveDaily(w, r, h.linker.GetSleepData)
}

// WeightHandler handles GET /api/fitbit/weight?date=
func (h *FitbitHandler) WeightHandler(w http.ResponseWriter, r *http.Request) {
	h.serveDaily(w, r, h.linker.GetWeightData)
}

func (h *FitbitHandler) serveDaily(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string) map[string]interface{}) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	date := r.URL.Query().Get("date")
	if date != "" && !fitbit.ValidDate(date) {
		WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if !h.requireConnected(w, r) {
		return
	}

	h.writeData(w, fetch(r.Context(), date))
}

// RangeHandler handles GET /api/fitbit/range?resource=&start=&end=
func (h *FitbitHandler) RangeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	query := r.URL.Query()
	resource, start, end := query.Get("resource"), query.Get("start"), query.Get("end")
	if !fitbit.ValidResource(resource) {
		WriteError(w, http.StatusBadRequest, "resource must look like activities/steps")
		return
	}
	if !fitbit.ValidDate(start) || !fitbit.ValidDate(end) {
		WriteError(w, http.StatusBadRequest, "start and end must be YYYY-MM-DD")
		return
	}
	if !h.requireConnected(w, r) {
		return
	}

	h.writeData(w, h.linker.GetDataForRange(r.Context(), resource, start, end))
}

// SyncHandler handles POST /api/fitbit/sync?date=, defaulting to yesterday
func (h *FitbitHandler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	result, err := h.syncer.SyncDay(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Fitbit sync failed")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// DailyHandler handles GET /api/fitbit/daily?date= and returns the synced payloads
func (h *FitbitHandler) DailyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	date := r.URL.Query().Get("date")
	daily, err := h.syncer.Daily(r.Context(), date)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"date": date,
		"data": daily,
	})
}

func (h *FitbitHandler) requireConnected(w http.ResponseWriter, r *http.Request) bool {
	if !h.linker.CheckConnection(r.Context()) {
		WriteError(w, http.StatusConflict, "Fitbit account is not linked")
		return false
	}
	return true
}

func (h *FitbitHandler) writeData(w http.ResponseWriter, data map[string]interface{}) {
	if data == nil {
		WriteError(w, http.StatusBadGateway, "Fitbit request failed")
		return
	}
	WriteJSON(w, http.StatusOK, data)
}
