package scheduler

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/common"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/storage/badger"
)

func newKV(t *testing.T) interfaces.KeyValueStorage {
	t.Helper()
	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr.KeyValueStorage()
}

func TestService_RegisterRejectsBadSchedules(t *testing.T) {
	svc := NewService(nil, arbor.NewLogger())

	assert.Error(t, svc.RegisterJob("fast", "* * * * *", "", func() error { return nil }))
	assert.Error(t, svc.RegisterJob("six-field", "0 30 6 * * *", "", func() error { return nil }))

	require.NoError(t, svc.RegisterJob("daily", "30 6 * * *", "", func() error { return nil }))
	assert.Error(t, svc.RegisterJob("daily", "30 6 * * *", "", func() error { return nil }))
}

func TestService_TriggerJobRecordsOutcome(t *testing.T) {
	svc := NewService(nil, arbor.NewLogger())

	ran := make(chan struct{}, 1)
	require.NoError(t, svc.RegisterJob("sync", "30 6 * * *", "daily sync", func() error {
		ran <- struct{}{}
		return errors.New("upstream down")
	}))

	require.NoError(t, svc.TriggerJob("sync"))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}

	assert.Eventually(t, func() bool {
		status, err := svc.GetJobStatus("sync")
		return err == nil && status.LastRun != nil && !status.IsRunning
	}, 2*time.Second, 10*time.Millisecond)

	status, err := svc.GetJobStatus("sync")
	require.NoError(t, err)
	assert.Equal(t, "upstream down", status.LastError)
	assert.Equal(t, "daily sync", status.Description)

	assert.Error(t, svc.TriggerJob("missing"))
}

func TestService_PanicIsRecorded(t *testing.T) {
	svc := NewService(nil, arbor.NewLogger())
	require.NoError(t, svc.RegisterJob("bad", "30 6 * * *", "", func() error { panic("oops") }))

	svc.executeJob("bad")

	status, err := svc.GetJobStatus("bad")
	require.NoError(t, err)
	assert.Contains(t, status.LastError, "oops")
	assert.False(t, status.IsRunning)
}

func TestService_DisablePersistsAcrossInstances(t *testing.T) {
	kv := newKV(t)
	noop := func() error { return nil }

	first := NewService(kv, arbor.NewLogger())
	require.NoError(t, first.RegisterJob("sync", "30 6 * * *", "", noop))
	require.NoError(t, first.DisableJob("sync"))

	second := NewService(kv, arbor.NewLogger())
	require.NoError(t, second.RegisterJob("sync", "30 6 * * *", "", noop))

	status, err := second.GetJobStatus("sync")
	require.NoError(t, err)
	assert.False(t, status.Enabled)

	require.NoError(t, second.EnableJob("sync"))
	require.NoError(t, second.Start())
	defer second.Stop()

	status, err = second.GetJobStatus("sync")
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	require.NotNil(t, status.NextRun)
	assert.True(t, status.NextRun.After(time.Now()))
	assert.Len(t, second.GetAllJobStatuses(), 1)
}
