package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reader/internal/app"
	"reader/internal/config"
	"reader/internal/repository"
)

// cli holds what every subcommand needs once the root pre-run has loaded it
type cli struct {
	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
	repo   *repository.Repository
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}

	root := &cobra.Command{
		Use:          "reader",
		Short:        "Open Library reading-log shelves, lists and loans",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd)
		},
	}

	root.AddCommand(
		c.shelvesCmd(),
		c.shelfCmd(),
		c.sortCmd(),
		c.visibilityCmd(),
		c.moveCmd(),
		c.removeCmd(),
		c.listsCmd(),
		c.listCmd(),
		c.loansCmd(),
		c.logoutCmd(),
		c.botCmd(),
	)
	return root, c
}

// open loads .env, configuration and the application core
func (c *cli) open(cmd *cobra.Command) error {
	// A missing .env file is fine; the environment may be set already
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialise", zap.Error(err))
		return err
	}

	c.cfg, c.logger, c.app, c.repo = cfg, logger, a, a.Repository()
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	_ = c.logger.Sync()
	c.app = nil
	return err
}
