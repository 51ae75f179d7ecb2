package migrate

import (
	"context"

	"github.com/agentmem/memory-service/internal/config"
	registrymigrate "github.com/agentmem/memory-service/internal/registry/migrate"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	// Import plugins to trigger init() registration of their migrators.
	_ "github.com/agentmem/memory-service/internal/plugin/longterm/mongo"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create long-term store indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "mongo-url",
				Sources:  cli.EnvVars("MEMORY_SERVICE_MONGO_URL"),
				Usage:    "MongoDB connection URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "mongo-db",
				Sources: cli.EnvVars("MEMORY_SERVICE_MONGO_DB"),
				Usage:   "MongoDB database name",
				Value:   "memory",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.MongoURL = cmd.String("mongo-url")
			cfg.MongoDB = cmd.String("mongo-db")
			cfg.MigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
