package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "portal",
		Usage: "PCU dashboard portal: sign-in, sessions and password resets",
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			hashPasswordCmd(),
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("portal failed", "error", err)
		os.Exit(1)
	}
}
