package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"timebox/internal/config"
	"timebox/internal/logger"
	"timebox/internal/routing"
	"timebox/internal/storage"
	"timebox/pkg/control"
	"timebox/pkg/credential"
	"timebox/pkg/session"
)

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    session.Store
	closeDB  func() error
	acquirer credential.Acquirer
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "timebox",
		Short:         "Time-boxed access sessions with a one-time emergency override",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (overrides START)")

	run := &cobra.Command{
		Use:   "run",
		Short: "Start or resume a session interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), envFile)
		},
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Expose the session API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), envFile)
		},
	}

	root.AddCommand(run, serve)
	root.RunE = run.RunE
	return root
}

func setup(ctx context.Context, envFile string) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	log := logger.Load(cfg.LogLevel)

	store, closeDB, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	acquirer := credential.NewRodAcquirer(credential.Options{
		URL:         cfg.CredentialURL,
		CookieName:  cfg.CredentialCookie,
		Bin:         cfg.ChromeBin,
		Headless:    cfg.BrowserHeadless,
		SettleDelay: cfg.SettleDelay,
		Timeout:     cfg.AcquireTimeout,
	}, log)

	return &app{
		cfg:      cfg,
		logger:   log,
		store:    store,
		closeDB:  closeDB,
		acquirer: acquirer,
	}, nil
}

func (a *app) close() {
	if err := a.closeDB(); err != nil {
		a.logger.Error("close store", "error", err)
	}
}

func runInteractive(ctx context.Context, envFile string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, envFile)
	if err != nil {
		return err
	}
	defer a.close()

	prompter := control.NewLinerPrompter()
	defer prompter.Close()

	loop := &control.Loop{
		Store:         a.store,
		Acquirer:      a.acquirer,
		Prompter:      prompter,
		Out:           os.Stdout,
		Logger:        a.logger,
		CheckInterval: a.cfg.CheckInterval,
	}
	return loop.Run(ctx)
}

func runServer(ctx context.Context, envFile string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, envFile)
	if err != nil {
		return err
	}
	defer a.close()

	router := routing.NewRouter(a.store, a.acquirer, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return routing.StartServer(gctx, a.cfg.HTTPAddr, router, a.logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("stopping", "reason", context.Cause(gctx))
		return nil
	})
	return g.Wait()
}
