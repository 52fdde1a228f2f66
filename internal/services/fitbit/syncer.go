package fitbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
)

// DailyKeyPrefix namespaces synced daily payloads in the KV store
const DailyKeyPrefix = "fitbit-daily-"

// SyncJobName is the scheduler job that syncs the previous day
const SyncJobName = "fitbit-daily-sync"

// DailyKey returns the KV key for a synced payload
func DailyKey(kind, date string) string {
	return DailyKeyPrefix + kind + "-" + date
}

// SyncResult lists which kinds were stored for a date
type SyncResult struct {
	Date    string   `json:"date"`
	Stored  []string `json:"stored"`
	Missing []string `json:"missing,omitempty"`
	Skipped bool     `json:"skipped"` // account not linked
}

// Syncer copies daily Fitbit summaries into the KV store
type Syncer struct {
	linker       interfaces.DeviceAuthLinker
	kvStorage    interfaces.KeyValueStorage
	eventService interfaces.EventService
	now          func() time.Time
	logger       arbor.ILogger
}

// NewSyncer creates a Syncer. eventService may be nil.
func NewSyncer(linker interfaces.DeviceAuthLinker, kvStorage interfaces.KeyValueStorage, eventService interfaces.EventService, logger arbor.ILogger) *Syncer {
	return &Syncer{
		linker:       linker,
		kvStorage:    kvStorage,
		eventService: eventService,
		now:          time.Now,
		logger:       logger,
	}
}

// SyncDay fetches steps, heart rate, sleep and weight for date and stores the payloads
// in one transaction. An empty date means yesterday.
func (s *Syncer) SyncDay(ctx context.Context, date string) (*SyncResult, error) {
	if date == "" {
		date = s.now().AddDate(0, 0, -1).Format(DateLayout)
	}
	if !ValidDate(date) || date == "today" {
		return nil, fmt.Errorf("invalid date %q, expected %s", date, DateLayout)
	}

	result := &SyncResult{Date: date, Stored: []string{}}

	if !s.linker.CheckConnection(ctx) {
		s.logger.Debug().Str("date", date).Msg("Fitbit not linked, skipping daily sync")
		result.Skipped = true
		return result, nil
	}

	fetchers := map[string]func(context.Context, string) map[string]interface{}{
		"steps":  s.linker.GetStepsData,
		"heart":  s.linker.GetHeartRateData,
		"sleep":  s.linker.GetSleepData,
		"weight": s.linker.GetWeightData,
	}

	kinds := make([]string, 0, len(fetchers))
	for kind := range fetchers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	values := make(map[string]string, len(fetchers))
	for _, kind := range kinds {
		data := fetchers[kind](ctx, date)
		if data == nil {
			result.Missing = append(result.Missing, kind)
			continue
		}

		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
		}
		values[DailyKey(kind, date)] = string(encoded)
		result.Stored = append(result.Stored, kind)
	}

	if len(values) > 0 {
		if err := s.kvStorage.SetMany(ctx, values, "Fitbit daily summary "+date); err != nil {
			return nil, fmt.Errorf("failed to store daily summary: %w", err)
		}
	}

	s.logger.Info().
		Str("date", date).
		Int("stored", len(result.Stored)).
		Int("missing", len(result.Missing)).
		Msg("Fitbit daily sync complete")

	if s.eventService != nil {
		payload := map[string]interface{}{
			"date":    date,
			"stored":  result.Stored,
			"missing": result.Missing,
		}
		if err := s.eventService.Publish(ctx, interfaces.Event{Type: interfaces.EventFitbitSynced, Payload: payload}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish sync event")
		}
	}

	return result, nil
}

// Daily returns the stored payloads for date keyed by kind
func (s *Syncer) Daily(ctx context.Context, date string) (map[string]json.RawMessage, error) {
	if !ValidDate(date) || date == "today" {
		return nil, fmt.Errorf("invalid date %q, expected %s", date, DateLayout)
	}

	pairs, err := s.kvStorage.ListByPrefix(ctx, DailyKeyPrefix)
	if err != nil {
		return nil, err
	}

	suffix := "-" + date
	out := make(map[string]json.RawMessage)
	for _, pair := range pairs {
		rest := pair.Key[len(DailyKeyPrefix):]
		if len(rest) <= len(suffix) || rest[len(rest)-len(suffix):] != suffix {
			continue
		}
		out[rest[:len(rest)-len(suffix)]] = json.RawMessage(pair.Value)
	}
	return out, nil
}

// Job returns a scheduler handler that syncs the previous day
func (s *Syncer) Job() func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		_, err := s.SyncDay(ctx, "")
		return err
	}
}
