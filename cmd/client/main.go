package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"aider-web/internal/backend"
	"aider-web/internal/config"
	"aider-web/internal/logging"
	"aider-web/internal/realtime"
	"aider-web/internal/session"
	"aider-web/internal/settings"
	"aider-web/internal/watcher"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	configPath string
	backendURL string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd runs the interactive chat client.
var rootCmd = &cobra.Command{
	Use:   "aider-web",
	Short: "Terminal client for a remote aider session",
	Long: `aider-web talks to an aider web backend: it starts chat sessions,
adds repository files to the chat, sends messages, commits changes and
shows the backend's tool output as it happens.

Run without arguments to start the interactive chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if backendURL != "" {
			cfg.BackendURL = backendURL
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		logger, err = logging.New(cfg.LogLevel, verbose, cfg.LogFile)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.aider-web/config.toml)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "Backend URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	rootCmd.AddCommand(settingsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runChat wires the controller, the realtime channel, the repository
// watcher and the REPL, and runs them until the user quits.
func runChat(ctx context.Context) error {
	store, err := settings.Open(cfg.SettingsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	input, err := newLineInput(cfg.HistoryFile)
	if err != nil {
		logger.Warn("readline unavailable, using basic input", zap.Error(err))
	}
	defer input.Close()

	printer := newPrinter(input.Stdout())
	client := backend.New(cfg.BackendURL,
		backend.WithTimeout(cfg.RequestTimeout()),
		backend.WithLogger(logger))

	var ctrl *session.Controller
	repoWatch := watcher.New(func(key string, files []string) {
		logger.Debug("repository changed, refreshing files",
			zap.String("session", key),
			zap.Int("files", len(files)))
		if err := ctrl.Dispatch(session.Command{Action: session.ActionRefreshFiles}); err != nil {
			logger.Debug("refresh dispatch", zap.Error(err))
		}
	}, watcher.WithLogger(logger))
	defer repoWatch.Shutdown()

	ctrl = session.New(client,
		session.WithLogger(logger),
		session.WithSettings(store),
		session.WithObserver(printer.Observe),
		session.WithSessionHook(func(s session.Session) {
			repoWatch.Shutdown()
			if !cfg.WatchRepo || !isDir(s.RepoPath) {
				return
			}
			if err := repoWatch.Watch(s.ID, s.RepoPath); err != nil {
				logger.Warn("watch repository", zap.String("repo", s.RepoPath), zap.Error(err))
			}
		}),
	)

	channel := realtime.New(cfg.RealtimeURL(), ctrl,
		realtime.WithLogger(logger),
		realtime.WithReconnectInterval(cfg.ReconnectInterval()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		return channel.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		r := &repl{ctrl: ctrl, store: store, input: input, printer: printer}
		return r.Run(gctx)
	})
	g.Go(func() error {
		// Unblock a pending read when the group is shutting down.
		<-gctx.Done()
		return input.Close()
	})

	printer.Banner(cfg.BackendURL)
	return g.Wait()
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
