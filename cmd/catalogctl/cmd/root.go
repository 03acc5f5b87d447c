// Package cmd holds the catalogctl commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pokepi/pokepi-server/internal/catalog"
	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/logger"
	"github.com/pokepi/pokepi-server/internal/pokeapi"
	"github.com/pokepi/pokepi-server/internal/store/sqlite"
)

type rootOptions struct {
	envFile string
	verbose bool
}

// NewRootCmd builds the catalogctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "catalogctl",
		Short: "Inspect and manage the local PokePI catalog cache",
		Long: `catalogctl works directly against the server's data directory.

It reads the same environment variables and .env file as the server, so
stop the server before running commands that write to the cache.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log sync activity")

	cmd.AddCommand(
		newWarmCmd(opts),
		newStatsCmd(opts),
		newClearCmd(opts),
		newTypesCmd(opts),
	)

	return cmd
}

// env is the opened catalog for a single command run.
type env struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *sqlite.Store
	remote *pokeapi.Client
	repo   *catalog.Repository
}

func (o *rootOptions) open() (*env, error) {
	cfg, err := config.LoadFromEnv(o.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.Discard()
	if o.verbose {
		log = logger.New(logger.Config{
			Level:       logger.ParseLevel(cfg.Logger.Level),
			Environment: cfg.App.Environment,
		})
	}

	db, err := sqlite.Open(cfg.SQLitePath(), log.Component("sqlite"))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	remote, err := pokeapi.New(cfg.PokeAPI, log.Component("pokeapi"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create pokeapi client: %w", err)
	}

	repo := catalog.NewRepository(remote, db, nil, cfg.Sync, log.Component("catalog"))

	return &env{cfg: cfg, log: log, db: db, remote: remote, repo: repo}, nil
}

func (e *env) Close() {
	e.repo.Close()
	e.remote.Close()
	_ = e.db.Close()
}
