package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/common"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/models"
	"github.com/ternarybob/bloom/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, interfaces.KeyValueStorage) {
	t.Helper()
	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return NewService(mgr.KeyValueStorage(), arbor.NewLogger()), mgr.KeyValueStorage()
}

func TestService_ProtectedKeysAreMasked(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, models.KeyFitbitAccessToken, "real-token", ""))
	require.NoError(t, svc.Set(ctx, "fitbit-client-secret", "plain", ""))

	pairs, err := svc.List(ctx)
	require.NoError(t, err)

	values := map[string]string{}
	for _, p := range pairs {
		values[p.Key] = p.Value
	}
	assert.Equal(t, MaskedValue, values["fitbitaccesstoken"])
	assert.Equal(t, "plain", values["fitbit-client-secret"])

	pair, err := svc.GetPair(ctx, models.KeyFitbitAccessToken)
	require.NoError(t, err)
	assert.Equal(t, MaskedValue, pair.Value)

	// The underlying store is untouched
	raw, err := storage.Get(ctx, models.KeyFitbitAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "real-token", raw)
}

func TestService_ProtectedKeysAreReadOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Set(ctx, "FitbitRefreshToken", "x", ""), ErrProtectedKey)
	assert.ErrorIs(t, svc.Delete(ctx, models.QuestionnaireStorageKey), ErrProtectedKey)
	assert.Error(t, svc.Set(ctx, "  ", "x", ""))
}

func TestService_DeleteMissing(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.Delete(context.Background(), "nope"), interfaces.ErrKeyNotFound)
}
