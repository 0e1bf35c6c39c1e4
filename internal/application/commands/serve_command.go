package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/bravo68web/gitsshd/internal/injectable"
	"github.com/bravo68web/gitsshd/internal/server"
	"github.com/bravo68web/gitsshd/internal/transport/ssh"
	"github.com/bravo68web/gitsshd/pkg/logger"
)

const defaultShutdownTimeout = 30 * time.Second

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the SSH server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "Run database migrations before serving",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "How long to wait for open connections after a shutdown signal",
				Value: defaultShutdownTimeout,
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	app, err := server.New(ctx, cmd.String(configFlag))
	if err != nil {
		return err
	}
	defer app.Close()

	log := app.Log.WithFields(logger.Component("serve"))

	db, err := app.OpenDatabase()
	if err != nil {
		return err
	}
	if cmd.Bool("migrate") {
		if err := db.RunMigrations(); err != nil {
			return err
		}
	}

	deps, err := injectable.LoadDependencies(app.Config, db, app.Log)
	if err != nil {
		return err
	}

	hostKey, err := ssh.LoadOrGenerateHostKey(app.Config.SSH.HostKeyPath, app.Log)
	if err != nil {
		return err
	}

	gateway := ssh.NewGateway(deps.RepoService, deps.GitShell, app.Config.SSH.CommandTimeout, app.Log)
	srv := ssh.NewServer(&app.Config.SSH, hostKey, deps.Authenticator, gateway, app.Log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown requested, no longer accepting connections")
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("SSH server failed", logger.Error(err))
		return err
	}

	timeout := cmd.Duration("shutdown-timeout")
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Wait(waitCtx); err != nil {
		log.Warn("Open connections did not finish before the shutdown timeout",
			logger.Duration("timeout", timeout))
	}

	log.Info("gitsshd stopped")
	return nil
}
