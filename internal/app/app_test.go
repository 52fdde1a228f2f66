package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/common"
	"github.com/ternarybob/bloom/internal/models"
	"github.com/ternarybob/bloom/internal/services/fitbit"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(dir, "data")
	cfg.Variables.Dir = dir
	return cfg
}

func TestNew_WiresServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fitbit.SyncEnabled = true

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.FitbitLinker.IsConnected())
	assert.Equal(t, models.StatusIdle, a.QuestionnaireService.Snapshot().Status)

	status, err := a.SchedulerService.GetJobStatus(fitbit.SyncJobName)
	require.NoError(t, err)
	assert.Equal(t, "30 6 * * *", status.Schedule)
}

func TestNew_RestoresQuestionnaireState(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, a.QuestionnaireService.Start(ctx))
	require.NoError(t, a.QuestionnaireService.MoveToNextQuestion(ctx))
	require.NoError(t, a.Close())

	b, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer b.Close()

	snap := b.QuestionnaireService.Snapshot()
	assert.Equal(t, models.StatusActive, snap.Status)
	assert.Equal(t, 1, snap.CurrentQuestionIndex)
}

func TestNew_CatalogFile(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[domains]]
id = "only"
description = "Only domain"

  [[domains.questions]]
  id = "q1"
  text = "How are you?"
`), 0644))
	cfg.Questionnaire.CatalogFile = path

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 1, a.Catalog.TotalQuestions())
	assert.Equal(t, "Only domain", a.QuestionnaireService.CurrentDomainTitle())
}

func TestNew_BadCatalogFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Questionnaire.CatalogFile = filepath.Join(t.TempDir(), "missing.toml")

	_, err := New(cfg, arbor.NewLogger())
	assert.Error(t, err)
}
