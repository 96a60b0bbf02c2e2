package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dmcontrol/internal/agent"
	"dmcontrol/internal/config"
	"dmcontrol/internal/domain"
	"dmcontrol/internal/inbox"
	"dmcontrol/internal/media"
	"dmcontrol/internal/memory"
	"dmcontrol/internal/metrics"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "0.3.0"
	logger  *slog.Logger
)

func main() {
	logger = newLogger(slog.LevelInfo)

	// ${VAR} references in config.yml may come from a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("cannot read .env file", "err", err)
	}

	root := &cobra.Command{
		Use:   "dmcontrol",
		Short: "Control Sonarr, CouchPotato and SABnzbd from your DM inbox",
		Long: `dmcontrol polls a direct-message inbox for commands you send to yourself,
runs them against your media services, and replies with the result.
Configuration is read from config.yml in the working directory.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runBot,
	}

	root.AddCommand(doctorCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(configCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		logger.Error("cannot start", "err", err)
		return err
	}

	logger = newLogger(parseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop, cleanup, err := buildLoop(cfg, config.DefaultPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, logger); err != nil {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	loop.Run(ctx)
	logger.Info("stopped")
	return nil
}

// buildLoop wires the inbox, media services, history store and checkpoint
// from cfg. cleanup releases the history store.
func buildLoop(cfg *config.Config, cfgPath string) (*agent.Loop, func(), error) {
	client := media.SharedHTTPClient(cfg.Inbox.Timeout())

	ib, err := inbox.New(cfg, client, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("inbox: %w", err)
	}

	dispatcher := agent.NewDispatcher(agent.DispatcherConfig{
		Series: media.NewSonarr(media.SonarrConfig{
			BaseURL:    cfg.Sonarr.BaseURL(),
			APIKey:     cfg.Sonarr.APIKey,
			RootFolder: cfg.TVShowDir,
			ProfileID:  cfg.Sonarr.ProfileID,
			Client:     client,
			Logger:     logger,
		}),
		Movies: media.NewCouchPotato(media.CouchPotatoConfig{
			BaseURL:    cfg.CouchPotato.BaseURL(),
			APIKey:     cfg.CouchPotato.APIKey,
			ProfileID:  cfg.CouchPotato.ProfileID,
			CategoryID: cfg.CouchPotato.CategoryID,
			Client:     client,
			Logger:     logger,
		}),
		Queue: media.NewSABnzbd(media.SABnzbdConfig{
			BaseURL: cfg.SAB.BaseURL(),
			APIKey:  cfg.SAB.APIKey,
			Client:  client,
			Logger:  logger,
		}),
		Prefix: cfg.Twitter.CommandStartCharacter,
		Logger: logger,
	})

	cleanup := func() {}
	var history domain.HistoryStore
	if cfg.History.Enabled {
		store, err := memory.NewSQLiteStore(cfg.History.DBPath, logger)
		if err != nil {
			logger.Warn("command history disabled", "db", cfg.History.DBPath, "err", err)
		} else {
			history = store
			cleanup = func() { store.Close() }
		}
	}

	checkpoint := agent.NewCheckpoint(
		domain.MessageID(cfg.Twitter.LastSeen),
		func(lastSeen int64) error { return config.SaveLastSeen(cfgPath, lastSeen) },
		logger,
	)

	loop := agent.NewLoop(agent.LoopConfig{
		Inbox:      ib,
		Dispatcher: dispatcher,
		Checkpoint: checkpoint,
		History:    history,
		OwnerID:    cfg.Twitter.MyID,
		Prefix:     cfg.Twitter.CommandStartCharacter,
		Interval:   cfg.Inbox.Interval(),
		Logger:     logger,
	})
	return loop, cleanup, nil
}
