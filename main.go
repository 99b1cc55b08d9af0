package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := &cli.App{
		Name:    "pickup",
		Usage:   "Pickup account and token service",
		Version: version,
		Action:  serve,
		Commands: []*cli.Command{
			serveCmd(),
			createUserCmd(),
			passwdCmd(),
			hashPasswordCmd(),
			pruneTokensCmd(),
		},
	}
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}
