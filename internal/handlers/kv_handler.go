package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/services/kv"
)

// KVServiceInterface defines the methods needed from the KV service
type KVServiceInterface interface {
	GetPair(ctx context.Context, key string) (*interfaces.KeyValuePair, error)
	Set(ctx context.Context, key string, value string, description string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]interfaces.KeyValuePair, error)
}

// KVHandler handles variables (key/value) storage HTTP requests
type KVHandler struct {
	kvService KVServiceInterface
	logger    arbor.ILogger
}

// NewKVHandler creates a new KV handler for managing variables
func NewKVHandler(kvService KVServiceInterface, logger arbor.ILogger) *KVHandler {
	return &KVHandler{
		kvService: kvService,
		logger:    logger,
	}
}

type setKVRequest struct {
	Value       string `json:"value" validate:"required"`
	Description string `json:"description" validate:"max=256"`
}

// ListKVHandler handles GET /api/kv - lists all variables (key/value pairs)
func (h *KVHandler) ListKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	pairs, err := h.kvService.List(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list key/value pairs")
		return
	}

	WriteJSON(w, http.StatusOK, pairs)
}

// KeyRouteHandler dispatches GET, PUT and DELETE on /api/kv/{key}
func (h *KVHandler) KeyRouteHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, key)
	case http.MethodPut:
		h.put(w, r, key)
	case http.MethodDelete:
		h.delete(w, r, key)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *KVHandler) keyFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	encodedKey := strings.TrimPrefix(r.URL.Path, "/api/kv/")

	key, err := url.PathUnescape(encodedKey)
	if err != nil {
		h.logger.Warn().Err(err).Str("encoded_key", encodedKey).Msg("Failed to decode key")
		WriteError(w, http.StatusBadRequest, "Invalid key encoding")
		return "", false
	}
	if key == "" {
		WriteError(w, http.StatusBadRequest, "Missing key parameter")
		return "", false
	}
	return key, true
}

func (h *KVHandler) get(w http.ResponseWriter, r *http.Request, key string) {
	pair, err := h.kvService.GetPair(r.Context(), key)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve key/value pair")
		return
	}

	WriteJSON(w, http.StatusOK, pair)
}

func (h *KVHandler) put(w http.ResponseWriter, r *http.Request, key string) {
	var req setKVRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.kvService.Set(r.Context(), key, req.Value, req.Description); err != nil {
		h.writeMutationError(w, err, "Failed to store key/value pair")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Key/value pair stored",
		"key":     strings.ToLower(key),
	})
}

func (h *KVHandler) delete(w http.ResponseWriter, r *http.Request, key string) {
	if err := h.kvService.Delete(r.Context(), key); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		h.writeMutationError(w, err, "Failed to delete key/value pair")
		return
	}

	WriteSuccess(w, "Key/value pair deleted")
}

func (h *KVHandler) writeMutationError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, kv.ErrProtectedKey) {
		WriteError(w, http.StatusForbidden, err.Error())
		return
	}
	WriteError(w, http.StatusInternalServerError, message)
}
