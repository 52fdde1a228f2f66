package badger

import (
	"bufio"
	"context"
	"os"
	"strings"
)

// envVariableKey maps a .env name onto the variables naming scheme:
// FITBIT_CLIENT_SECRET becomes fitbit-client-secret.
func envVariableKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

// loadEnvFile loads KEY=value lines from a .env file. Quotes around values are
// stripped, blank lines and # comments are ignored. A missing file is not an error.
func (m *Manager) loadEnvFile(ctx context.Context, filePath string) loadStats {
	file, err := os.Open(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to open .env file")
			return loadStats{failed: 1}
		}
		return loadStats{}
	}
	defer file.Close()

	var stats loadStats
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		name, value, ok := strings.Cut(line, "=")
		key := envVariableKey(name)
		if !ok || key == "" {
			m.logger.Warn().Str("file", filePath).Int("line", lineNum).Msg("Invalid line format, expected KEY=value")
			stats.skipped++
			continue
		}

		value = unquote(strings.TrimSpace(value))
		if value == "" {
			m.logger.Warn().Str("file", filePath).Str("key", key).Msg("Skipping variable with empty value")
			stats.skipped++
			continue
		}

		isNew, err := m.kv.Upsert(ctx, key, value, "Loaded from .env")
		if err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("Failed to store variable from .env")
			stats.failed++
			continue
		}

		m.logger.Debug().Str("key", key).Bool("new", isNew).Msg("Loaded variable from .env")
		stats.loaded++
	}

	if err := scanner.Err(); err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Error reading .env file")
	}

	return stats
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
