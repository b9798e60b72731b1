package main

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// SetupLogOutput redirects the global logger to a file when a log
// directory is configured; stderr otherwise.
func SetupLogOutput(dir string) error {
	if dir == "" {
		return nil
	}
	file, err := os.OpenFile(filepath.Join(dir, "scrawl.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	log.Logger = zerolog.New(file).With().Timestamp().Logger()
	return nil
}

func roomLogger(key string) zerolog.Logger {
	return log.With().Str("room", key).Logger()
}

func sessionLogger(id int) zerolog.Logger {
	return log.With().Int("session", id).Logger()
}

func LogStartedServer(port string) {
	log.Info().Msgf("Starting server on port %v", port)
}

func LogLoadedWordPacks(count int) {
	log.Info().Int("packs", count).Msg("Loaded word packs")
}

func LogErrorWhileUpgradingHTTP(err error) {
	log.Error().Err(err).Msg("Error while upgrading HTTP")
}
