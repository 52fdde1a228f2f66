// -----------------------------------------------------------------------
// Last Modified: Thursday, 14th November 2025 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/models"
)

// ErrProtectedKey is returned when the variables API touches a key owned by a service
var ErrProtectedKey = errors.New("key is managed by the application")

// MaskedValue replaces protected values in variable listings
const MaskedValue = "********"

// Service provides the user-facing variables API over the KV store.
// Credential and questionnaire keys are owned by their services and only visible masked.
type Service struct {
	storage   interfaces.KeyValueStorage
	protected map[string]bool
	logger    arbor.ILogger
}

// NewService creates a new key/value service
func NewService(storage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	protected := make(map[string]bool)
	for _, key := range append([]string{models.QuestionnaireStorageKey}, models.CredentialKeys...) {
		protected[strings.ToLower(key)] = true
	}

	return &Service{
		storage:   storage,
		protected: protected,
		logger:    logger,
	}
}

// IsProtected reports whether key belongs to an application service
func (s *Service) IsProtected(key string) bool {
	return s.protected[strings.ToLower(strings.TrimSpace(key))]
}

// GetPair retrieves a full KeyValuePair by key, masking protected values
func (s *Service) GetPair(ctx context.Context, key string) (*interfaces.KeyValuePair, error) {
	pair, err := s.storage.GetPair(ctx, key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			s.logger.Error().Err(err).Str("key", key).Msg("Failed to get key/value pair")
		}
		return nil, err
	}

	s.logger.Debug().Str("key", key).Msg("Retrieved key/value pair with metadata")
	return s.mask(*pair), nil
}

// Set stores or updates a key/value pair
func (s *Service) Set(ctx context.Context, key string, value string, description string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if s.IsProtected(key) {
		return ErrProtectedKey
	}

	if err := s.storage.Set(ctx, key, value, description); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to store key/value pair")
		return err
	}

	s.logger.Info().Str("key", key).Msg("Stored key/value pair")
	return nil
}

// Delete removes a key/value pair
func (s *Service) Delete(ctx context.Context, key string) error {
	if s.IsProtected(key) {
		return ErrProtectedKey
	}

	if err := s.storage.Delete(ctx, key); err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			s.logger.Error().Err(err).Str("key", key).Msg("Failed to delete key/value pair")
		}
		return err
	}

	s.logger.Info().Str("key", key).Msg("Deleted key/value pair")
	return nil
}

// List returns all key/value pairs with protected values masked
func (s *Service) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	pairs, err := s.storage.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list key/value pairs")
		return nil, err
	}

	out := make([]interfaces.KeyValuePair, 0, len(pairs))
	for _, pair := range pairs {
		out = append(out, *s.mask(pair))
	}

	s.logger.Debug().Int("count", len(out)).Msg("Listed key/value pairs")
	return out, nil
}

// ListByPrefix returns pairs under prefix, used for the synced daily Fitbit payloads
func (s *Service) ListByPrefix(ctx context.Context, prefix string) ([]interfaces.KeyValuePair, error) {
	pairs, err := s.storage.ListByPrefix(ctx, prefix)
	if err != nil {
		s.logger.Error().Err(err).Str("prefix", prefix).Msg("Failed to list key/value pairs by prefix")
		return nil, err
	}
	return pairs, nil
}

func (s *Service) mask(pair interfaces.KeyValuePair) *interfaces.KeyValuePair {
	if s.protected[pair.Key] && pair.Value != "" {
		pair.Value = MaskedValue
	}
	return &pair
}
