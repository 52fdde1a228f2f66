package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/bloom/internal/common"
	"github.com/ternarybob/bloom/internal/services/fitbit"
	"github.com/ternarybob/bloom/internal/services/questionnaire"
	"github.com/ternarybob/bloom/internal/storage"
	"github.com/ternarybob/bloom/internal/storage/badger"
)

func main() {
	configPath := os.Getenv("BLOOM_CONFIG")
	if configPath == "" {
		configPath = "bloom.toml"
	}

	config, err := common.LoadFromFile(nil, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol, keep logging quiet
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	// Holds the badger directory lock, so bloom must not be running on the same data dir
	storageManager, err := storage.NewStorageManager(logger, config)
	if errors.Is(err, badger.ErrDatabaseLocked) {
		fmt.Fprintf(os.Stderr, "Storage at %s is in use; stop bloom or point BLOOM_BADGER_PATH at a copy\n", config.Storage.Badger.Path)
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()

	ctx := context.Background()
	kvStorage := storageManager.KeyValueStorage()
	common.ApplyKVReplacements(ctx, config, kvStorage, logger)

	catalog, err := questionnaire.DefaultCatalog()
	if config.Questionnaire.CatalogFile != "" {
		catalog, err = questionnaire.LoadCatalog(config.Questionnaire.CatalogFile)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load questionnaire catalog")
	}

	store := questionnaire.NewStore(catalog, kvStorage, nil, config.Questionnaire.FallbackTitle, logger)
	if err := store.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to load questionnaire state")
	}

	clientSecret, err := common.ResolveSecret(ctx, kvStorage, "fitbit-client-secret", "BLOOM_FITBIT_CLIENT_SECRET", config.Fitbit.ClientSecret)
	if err != nil {
		logger.Warn().Err(err).Msg("Fitbit client secret not configured - token refresh will fail")
	}

	// No auth session: linking happens through the bloom server, this process only reads
	linker := fitbit.NewLinker(config.Fitbit, clientSecret, kvStorage, nil, logger)

	mcpServer := server.NewMCPServer(
		"bloom",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Fitbit tools
	mcpServer.AddTool(createFitbitStatusTool(), handleFitbitStatus(linker, logger))
	mcpServer.AddTool(createFitbitHeartRateTool(), handleFitbitDaily(linker.GetHeartRateData, "Heart rate", logger))
	mcpServer.AddTool(createFitbitStepsTool(), handleFitbitDaily(linker.GetStepsData, "Steps", logger))
	mcpServer.AddTool(createFitbitSleepTool(), handleFitbitDaily(linker.GetSleepData, "Sleep", logger))
	mcpServer.AddTool(createFitbitRangeTool(), handleFitbitRange(linker, logger))

	// Questionnaire tools
	mcpServer.AddTool(createQuestionnaireProgressTool(), handleQuestionnaireProgress(store, logger))
	mcpServer.AddTool(createQuestionnaireCurrentQuestionTool(), handleQuestionnaireCurrentQuestion(store, logger))

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
