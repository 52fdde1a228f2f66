package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// VariableFile is one entry in variables.toml:
//
//	[fitbit-client-secret]
//	value = "..."
//	description = "Fitbit OAuth client secret"
type VariableFile struct {
	Value       string `toml:"value"`
	Description string `toml:"description"`
}

type loadStats struct {
	loaded, skipped, failed int
}

func (s *loadStats) add(o loadStats) {
	s.loaded += o.loaded
	s.skipped += o.skipped
	s.failed += o.failed
}

// LoadVariablesFromFiles seeds the KV store from dirPath/variables.toml, any
// *.toml files under dirPath/variables/, then dirPath/.env. Existing keys are
// overwritten, so .env entries win.
func (m *Manager) LoadVariablesFromFiles(ctx context.Context, dirPath string) error {
	m.logger.Debug().Str("dir", dirPath).Msg("Loading variables from files")

	var files []string
	variablesFile := filepath.Join(dirPath, "variables.toml")
	if _, err := os.Stat(variablesFile); err == nil {
		files = append(files, variablesFile)
	}

	variablesDir := filepath.Join(dirPath, "variables")
	if entries, err := os.ReadDir(variablesDir); err == nil {
		var names []string
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".toml") {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			files = append(files, filepath.Join(variablesDir, name))
		}
	}

	var stats loadStats
	for _, file := range files {
		stats.add(m.loadVariablesFromFile(ctx, file))
	}
	stats.add(m.loadEnvFile(ctx, filepath.Join(dirPath, ".env")))

	m.logger.Debug().
		Int("files", len(files)).
		Int("loaded", stats.loaded).
		Int("skipped", stats.skipped).
		Int("errors", stats.failed).
		Msg("Finished loading variables from files")

	return nil
}

func (m *Manager) loadVariablesFromFile(ctx context.Context, filePath string) loadStats {
	variables, err := parseVariableFile(filePath)
	if err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to load variable file")
		return loadStats{failed: 1}
	}

	var stats loadStats
	fileName := filepath.Base(filePath)
	for key, variable := range variables {
		if variable.Value == "" {
			m.logger.Warn().Str("file", fileName).Str("key", key).Msg("Skipping variable with empty value")
			stats.skipped++
			continue
		}

		description := variable.Description
		if description == "" {
			description = "Loaded from " + fileName
		}

		isNew, err := m.kv.Upsert(ctx, key, variable.Value, description)
		if err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("Failed to store variable")
			stats.failed++
			continue
		}

		m.logger.Debug().Str("key", key).Bool("new", isNew).Msg("Loaded variable")
		stats.loaded++
	}

	return stats
}

func parseVariableFile(filePath string) (map[string]VariableFile, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read variable file: %w", err)
	}

	var variables map[string]VariableFile
	if err := toml.Unmarshal(content, &variables); err != nil {
		return nil, fmt.Errorf("failed to parse variable file: %w", err)
	}
	return variables, nil
}
