package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pitchingcoachu/portal/internal/auth"
	"github.com/pitchingcoachu/portal/internal/config"
	"github.com/pitchingcoachu/portal/internal/database"
	"github.com/pitchingcoachu/portal/internal/logging"
	"github.com/pitchingcoachu/portal/internal/password"
)

func migrateCmd() *cli.Command {
	var databaseURL string
	var logLevel string
	return &cli.Command{
		Name:  "migrate",
		Usage: "Bring the auth schema up to date and sync configured users into it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "database-url",
				Usage:       "postgres://... or sqlite:<path>",
				EnvVars:     []string{"DATABASE_URL"},
				Destination: &databaseURL,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Value:       "info",
				EnvVars:     []string{"PORTAL_LOG_LEVEL"},
				Destination: &logLevel,
			},
		},
		Before: func(c *cli.Context) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			if databaseURL == "" {
				return errors.New("migrate: DATABASE_URL or --database-url is required")
			}
			logger := logging.Setup(logLevel)

			seeds, err := config.ParseUserSeedSource(os.Getenv)
			if err != nil {
				return err
			}

			db, err := database.Open(c.Context, databaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := auth.EnsureSchemaReady(c.Context, db, seeds, password.NewHasher(), logger); err != nil {
				return err
			}
			logger.Info("schema ready", "dialect", string(db.Dialect), "configured_users", len(seeds.Users))
			return nil
		},
	}
}
