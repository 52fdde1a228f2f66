package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved endpoints
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("Bloom", GetVersion())

	logger.Info().
		Str("environment", config.Environment).
		Str("storage", config.Storage.Badger.Path).
		Str("fitbit_browser", config.Fitbit.Browser).
		Bool("fitbit_sync", config.Fitbit.SyncEnabled).
		Msg("Bloom starting")
}
