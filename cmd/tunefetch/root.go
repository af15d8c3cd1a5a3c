package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tunefetch/internal/config"
	"tunefetch/internal/repository/sqlite"
	"tunefetch/internal/service"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "tunefetch",
		Short:         "Inspect downloads and matches of a tunefetch server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().BoolVar(&ctx.verbose, "verbose", false, "Log collaborator activity to stderr")

	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newAlbumStatusCommand(ctx))
	rootCmd.AddCommand(newCandidatesCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))
	rootCmd.AddCommand(newObjectsCommand(ctx))

	return rootCmd
}

// commandContext lazily loads configuration shared by subcommands.
type commandContext struct {
	verbose bool

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

// logger keeps collaborator logging out of command output unless --verbose.
func (c *commandContext) logger(cmd *cobra.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(cmd.ErrOrStderr())
	if !c.verbose {
		logger.SetOutput(io.Discard)
	}
	return logger
}

func (c *commandContext) withJobs(ctx context.Context, fn func(service.JobService) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	repo := sqlite.NewJobRepository(db)
	if err := repo.Init(ctx); err != nil {
		return fmt.Errorf("init job repository: %w", err)
	}
	return fn(service.NewJobService(repo))
}
