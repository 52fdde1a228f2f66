package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
)

// AllEventTypes lists every event the application publishes
var AllEventTypes = []interfaces.EventType{
	interfaces.EventQuestionnaireUpdated,
	interfaces.EventFitbitConnected,
	interfaces.EventFitbitDisconnected,
	interfaces.EventFitbitSynced,
}

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if status, ok := payload["status"].(string); ok {
				logEvent = logEvent.Str("status", status)
			}
			if date, ok := payload["date"].(string); ok {
				logEvent = logEvent.Str("date", date)
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	for _, eventType := range AllEventTypes {
		if _, err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(AllEventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
