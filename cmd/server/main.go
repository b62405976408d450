package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spacewatch/backend/internal/api"
	"github.com/spacewatch/backend/internal/config"
	"github.com/spacewatch/backend/internal/lifecycle"
	"github.com/spacewatch/backend/internal/notify"
	"github.com/spacewatch/backend/internal/poller"
	"github.com/spacewatch/backend/internal/provider"
	"github.com/spacewatch/backend/internal/registry"
	"github.com/spacewatch/backend/internal/runlock"
	"github.com/spacewatch/backend/internal/snapshot"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "spacewatch",
		Short:         "Watches accounts for live sessions and fans out webhook notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(&configPath, &verbose),
		newPollCmd(&configPath, &verbose),
		newUnlockCmd(&configPath),
	)
	return root
}

// app bundles the wired components. Every collaborator is constructed
// exactly once here and injected; nothing is cached in package-level
// state.
type app struct {
	cfg         *config.Config
	logger      *zap.SugaredLogger
	db          *sql.DB
	registry    *registry.SQLite
	poller      *poller.Poller
	broadcaster *api.Broadcaster
}

func (a *app) close() {
	a.db.Close()
	a.logger.Sync()
}

func buildApp(configPath string, verbose, withEvents bool) (*app, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(verbose)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping failed: %w", err)
	}

	reg, err := registry.NewSQLite(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	history, err := lifecycle.NewSQLite(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	snapshots, err := snapshot.NewFileStore(cfg.Poller.StateDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	prov := provider.NewHTTP(cfg.Provider.BaseURL, cfg.Provider.BearerToken, cfg.Provider.UserCacheTTL, logger)
	dispatcher := notify.NewDispatcher(reg, http.DefaultClient, cfg.Provider.SessionLinkTemplate, logger)
	recorder := lifecycle.NewRecorder(history, logger)

	status := poller.NewStatusStore()

	var (
		broadcaster *api.Broadcaster
		events      poller.EventSink
	)
	if withEvents {
		broadcaster = api.NewBroadcaster(status, logger)
		events = broadcaster
	}

	p := poller.New(cfg.Accounts, cfg.Poller.Interval, poller.Deps{
		Provider:   prov,
		Snapshots:  snapshots,
		Lock:       runlock.New(cfg.Poller.LockFile),
		Recorder:   recorder,
		Dispatcher: dispatcher,
		Events:     events,
	}, status, logger)

	return &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		registry:    reg,
		poller:      p,
		broadcaster: broadcaster,
	}, nil
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar().Named("spacewatch"), nil
}

func newServeCmd(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poll daemon and the registration API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath, *verbose, true)
			if err != nil {
				return err
			}
			defer a.close()

			if len(a.cfg.Accounts) == 0 {
				a.logger.Warn("no accounts configured; the poller will run empty cycles")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go a.poller.Start(ctx)

			server := api.NewServer(a.registry, a.poller.Status(), a.broadcaster,
				a.cfg.Server.AllowedOrigins, a.cfg.Server.AuthToken, a.logger)
			mux := http.NewServeMux()
			server.SetupRoutes(mux)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				a.logger.Info("shutting down")
				cancel()
				a.logger.Sync()
				os.Exit(0)
			}()

			return api.ListenAndServe(a.cfg.Server.Host, a.cfg.Server.Port, mux, a.logger)
		},
	}
}

func newPollCmd(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run a single poll cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath, *verbose, false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return a.poller.RunCycle(ctx)
		},
	}
}

func newUnlockCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Clear a stale run lock left behind by a crashed cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			lock := runlock.New(cfg.Poller.LockFile)
			pid, held, err := lock.Holder()
			if err != nil {
				return err
			}
			if !held {
				fmt.Fprintf(cmd.OutOrStdout(), "no run lock present at %s\n", lock.Path())
				return nil
			}
			if err := lock.Release(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared run lock at %s (held by pid %d)\n", lock.Path(), pid)
			return nil
		},
	}
}
