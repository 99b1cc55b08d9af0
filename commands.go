package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/pickupper/backend/internal/config"
	"github.com/pickupper/backend/internal/credential"
	"github.com/pickupper/backend/internal/db"
	"github.com/pickupper/backend/internal/handler"
	"github.com/pickupper/backend/internal/httpserver"
	"github.com/pickupper/backend/internal/logutil"
	"github.com/pickupper/backend/internal/model"
	"github.com/pickupper/backend/internal/obs"
	"github.com/pickupper/backend/internal/service"
)

type services struct {
	cfg    config.Config
	logger zerolog.Logger
	store  *db.Postgres
	svc    *service.AuthService
}

func (r *services) Close() {
	if r.store != nil {
		r.store.Close()
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func newHasher(cfg config.HashingConfig) (*credential.Hasher, error) {
	return credential.NewHasher(cfg.Pepper, credential.Params{
		Memory:  cfg.MemCost,
		Time:    cfg.TimeCost,
		Threads: cfg.Lanes,
		KeyLen:  credential.DefaultParams.KeyLen,
	}, cfg.Workers)
}

// bootstrap wires config, logging, storage and the auth service. The returned context carries the logger.
func bootstrap(ctx context.Context) (context.Context, *services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return ctx, nil, err
	}
	logger, err := logutil.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return ctx, nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	ctx = logutil.WithLogger(ctx, logger)

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return ctx, nil, err
	}
	rt := &services{cfg: cfg, logger: logger, store: db.New(pool)}
	if err := rt.store.EnsureAuthSchema(ctx); err != nil {
		rt.Close()
		return ctx, nil, fmt.Errorf("ensure auth schema: %w", err)
	}

	hasher, err := newHasher(cfg.Hashing)
	if err != nil {
		rt.Close()
		return ctx, nil, err
	}
	rt.svc, err = service.NewAuthService(rt.store, rt.store, hasher, cfg.Auth)
	if err != nil {
		rt.Close()
		return ctx, nil, err
	}
	return ctx, rt, nil
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the HTTP API",
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	ctx, rt, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.cfg.Auth.CreateRoot {
		if err := rt.svc.EnsureRoot(ctx, rt.cfg.Auth.RootPassword); err != nil {
			return fmt.Errorf("ensure root account: %w", err)
		}
	}

	obs.Register(prometheus.DefaultRegisterer, version)
	go service.RunTokenSweeper(ctx, rt.svc, rt.cfg.Server.TokenSweepPeriod)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:            rt.svc,
		Pinger:          rt.store,
		Logger:          rt.logger,
		Version:         version,
		AllowedOrigins:  rt.cfg.Server.AllowedOrigins,
		LoginRatePerSec: rt.cfg.Server.LoginRatePerSec,
		LoginRateBurst:  rt.cfg.Server.LoginRateBurst,
	})
	rt.logger.Info().Str("addr", rt.cfg.Server.Addr).Str("version", version).Msg("Starting server")
	return httpserver.Serve(ctx, rt.cfg.Server, router)
}

func createUserCmd() *cli.Command {
	var account service.NewAccount
	level := 0
	return &cli.Command{
		Name:  "create-user",
		Usage: "Create an account with the given permission level",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true, Destination: &account.Username},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Plaintext password", EnvVars: []string{"PICKUP_PASSWORD"}, Required: true, Destination: &account.Password},
			&cli.IntFlag{Name: "level", Aliases: []string{"l"}, Usage: "Permission level: 0 user, 1 supervisor, 2 admin", Value: level, Destination: &level},
			&cli.StringFlag{Name: "name", Destination: &account.Name},
			&cli.StringFlag{Name: "surname", Destination: &account.Surname},
		},
		Action: func(c *cli.Context) error {
			if level < int(model.PermissionUser) || level > int(model.PermissionAdmin) {
				return fmt.Errorf("level must be between %d and %d", model.PermissionUser, model.PermissionAdmin)
			}
			account.Level = model.PermissionLevel(level)

			ctx, rt, err := bootstrap(c.Context)
			if err != nil {
				return err
			}
			defer rt.Close()

			id, err := rt.svc.CreateUser(ctx, account)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, id)
			return nil
		},
	}
}

func passwdCmd() *cli.Command {
	var username, password string
	return &cli.Command{
		Name:  "passwd",
		Usage: "Replace the password of an existing account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true, Destination: &username},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, EnvVars: []string{"PICKUP_PASSWORD"}, Required: true, Destination: &password},
		},
		Action: func(c *cli.Context) error {
			ctx, rt, err := bootstrap(c.Context)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.svc.ResetPassword(ctx, username, password)
		},
	}
}

func hashPasswordCmd() *cli.Command {
	var password string
	return &cli.Command{
		Name:  "hash-password",
		Usage: "Print the stored digest form of a password using the configured pepper and costs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, EnvVars: []string{"PICKUP_PASSWORD"}, Required: true, Destination: &password},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			hasher, err := newHasher(cfg.Hashing)
			if err != nil {
				return err
			}
			digest, err := hasher.Hash(c.Context, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, digest)
			return nil
		},
	}
}

func pruneTokensCmd() *cli.Command {
	return &cli.Command{
		Name:  "prune-tokens",
		Usage: "Delete expired refresh and access tokens",
		Action: func(c *cli.Context) error {
			ctx, rt, err := bootstrap(c.Context)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.svc.PruneExpired(ctx)
			if err != nil {
				return err
			}
			rt.logger.Info().Int64("deleted", n).Msg("pruned expired tokens")
			return nil
		},
	}
}
