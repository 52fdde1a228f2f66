package fitbit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
)

func TestSyncer_SyncDay(t *testing.T) {
	f := newFakeFitbit(t)
	linker, kv := newTestLinker(t, f, nil)
	recorder := &eventRecorder{}
	syncer := NewSyncer(linker, kv, recorder, arbor.NewLogger())
	ctx := context.Background()

	seedCredential(t, kv, "access-1", "refresh-1")

	result, err := syncer.SyncDay(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	// The fake only serves /1/user/-/, so sleep (API version 1.2) is missing
	assert.Equal(t, []string{"heart", "steps", "weight"}, result.Stored)
	assert.Equal(t, []string{"sleep"}, result.Missing)

	raw, err := kv.Get(ctx, DailyKey("steps", "2026-03-01"))
	require.NoError(t, err)
	var steps map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &steps))
	assert.Equal(t, "/1/user/-/activities/steps/date/2026-03-01/1d.json", steps["path"])

	daily, err := syncer.Daily(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.Len(t, daily, 3)
	assert.Contains(t, daily, "heart")

	assert.Equal(t, []interfaces.EventType{interfaces.EventFitbitSynced}, recorder.types())
}

func TestSyncer_SkipsWhenNotLinked(t *testing.T) {
	f := newFakeFitbit(t)
	linker, kv := newTestLinker(t, f, nil)
	syncer := NewSyncer(linker, kv, nil, arbor.NewLogger())

	result, err := syncer.SyncDay(context.Background(), "2026-03-01")
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	dataHits, _ := f.hits()
	assert.Zero(t, dataHits)
}

func TestSyncer_DefaultsToYesterday(t *testing.T) {
	f := newFakeFitbit(t)
	linker, kv := newTestLinker(t, f, nil)
	syncer := NewSyncer(linker, kv, nil, arbor.NewLogger())
	syncer.now = func() time.Time { return time.Date(2026, 3, 1, 6, 30, 0, 0, time.Local) }
	seedCredential(t, kv, "access-1", "")

	result, err := syncer.SyncDay(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", result.Date)
}

func TestSyncer_InvalidDate(t *testing.T) {
	f := newFakeFitbit(t)
	linker, kv := newTestLinker(t, f, nil)
	syncer := NewSyncer(linker, kv, nil, arbor.NewLogger())

	_, err := syncer.SyncDay(context.Background(), "today")
	assert.Error(t, err)
	_, err = syncer.Daily(context.Background(), "2026/03/01")
	assert.Error(t, err)
}
