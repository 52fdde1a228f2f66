package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
)

func subscribe(t *testing.T, svc interfaces.EventService, eventType interfaces.EventType, handler interfaces.EventHandler) interfaces.SubscriptionID {
	t.Helper()
	id, err := svc.Subscribe(eventType, handler)
	require.NoError(t, err)
	return id
}

func TestService_PublishSyncDeliversToSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	var calls int32
	handler := func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	first := subscribe(t, svc, interfaces.EventQuestionnaireUpdated, handler)
	second := subscribe(t, svc, interfaces.EventQuestionnaireUpdated, handler)
	assert.NotEqual(t, first, second)

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventQuestionnaireUpdated})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// Other event types are not delivered
	err = svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventFitbitSynced})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_PublishSyncCollectsErrorsAndPanics(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	subscribe(t, svc, interfaces.EventFitbitSynced, func(ctx context.Context, e interfaces.Event) error {
		return errors.New("boom")
	})
	subscribe(t, svc, interfaces.EventFitbitSynced, func(ctx context.Context, e interfaces.Event) error {
		panic("bad handler")
	})

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventFitbitSynced})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "panic")
}

func TestService_PublishOutlivesCancelledContext(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	done := make(chan error, 1)
	subscribe(t, svc, interfaces.EventFitbitConnected, func(ctx context.Context, e interfaces.Event) error {
		done <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.Publish(ctx, interfaces.Event{Type: interfaces.EventFitbitConnected}))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestService_Unsubscribe(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	var calls int32
	handler := interfaces.EventHandler(func(ctx context.Context, e interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	id := subscribe(t, svc, interfaces.EventFitbitDisconnected, handler)
	require.NoError(t, svc.Unsubscribe(interfaces.EventFitbitDisconnected, id))
	assert.Error(t, svc.Unsubscribe(interfaces.EventFitbitDisconnected, id))

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventFitbitDisconnected}))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestService_UnsubscribeKeepsClosuresFromSameCode(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	// Closures built by one function share a code pointer
	counters := make([]int32, 2)
	newHandler := func(i int) interfaces.EventHandler {
		return func(ctx context.Context, e interfaces.Event) error {
			atomic.AddInt32(&counters[i], 1)
			return nil
		}
	}

	firstID := subscribe(t, svc, interfaces.EventFitbitSynced, newHandler(0))
	subscribe(t, svc, interfaces.EventFitbitSynced, newHandler(1))

	require.NoError(t, svc.Unsubscribe(interfaces.EventFitbitSynced, firstID))
	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventFitbitSynced}))

	assert.Equal(t, int32(0), atomic.LoadInt32(&counters[0]))
	assert.Equal(t, int32(1), atomic.LoadInt32(&counters[1]))
}

func TestSubscribeLoggerToAllEvents(t *testing.T) {
	logger := arbor.NewLogger()
	svc := NewService(logger)
	defer svc.Close()

	require.NoError(t, SubscribeLoggerToAllEvents(svc, logger))

	for _, eventType := range AllEventTypes {
		err := svc.PublishSync(context.Background(), interfaces.Event{
			Type:    eventType,
			Payload: map[string]interface{}{"status": "active", "date": "2025-01-01"},
		})
		assert.NoError(t, err, eventType)
	}
}
