package main

import (
	"errors"
	"flag"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/noah-isme/canasta/internal/config"
	"github.com/noah-isme/canasta/internal/obs"
	"github.com/noah-isme/canasta/internal/repo"
)

func main() {
	var (
		down  = flag.Bool("down", false, "roll back every migration instead of applying them")
		steps = flag.Int("steps", 0, "apply (or with -down, roll back) only this many migrations")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "migrate").Logger()
	if !cfg.RemoteSyncEnabled() {
		logger.Fatal().Msg("DATABASE_URL is required")
	}

	m, err := repo.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise migrator")
	}
	defer m.Close()

	switch {
	case *steps > 0 && *down:
		err = m.Steps(-*steps)
	case *steps > 0:
		err = m.Steps(*steps)
	case *down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error().Err(err).Msg("migration failed")
		os.Exit(1)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal().Err(err).Msg("read schema version")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations complete")
}
