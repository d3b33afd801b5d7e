// Command emotewatch is the entry point for the 7TV emote watcher.
// It loads channel configurations, starts one Watcher per channel, and
// manages graceful shutdown via OS signals.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/foamchat/emotewatch/internal/config"
	"github.com/foamchat/emotewatch/internal/constants"
	"github.com/foamchat/emotewatch/internal/logger"
	"github.com/foamchat/emotewatch/internal/server"
	"github.com/foamchat/emotewatch/internal/watcher"
	"github.com/foamchat/emotewatch/internal/workerpool"
)

const banner = `
╔══════════════════════════════════════════════════╗
║          emotewatch — 7TV Emote Watcher          ║
╚══════════════════════════════════════════════════╝
`

func main() {
	configDir := flag.String("config", config.DefaultConfigDir, "Path to the configuration directory")
	port := flag.String("port", "8080", "Port for the health/status HTTP server")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides LOG_LEVEL env)")
	logDir := flag.String("log-dir", "", "Directory for per-channel log files (disabled when empty)")
	noColor := flag.Bool("no-color", false, "Disable colored output (overrides TTY detection)")
	flag.Parse()

	// Secrets like webhook URLs may live in a local .env file.
	godotenv.Load() //nolint:errcheck

	level := slog.LevelInfo
	if *logLevel != "" {
		level = logger.ParseLevel(*logLevel)
	} else if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = logger.ParseLevel(envLevel)
	}

	httpPort := *port
	if envPort := os.Getenv("PORT"); envPort != "" {
		httpPort = envPort
	}

	colored := !*noColor && term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""

	rootLog, err := logger.Setup(logger.Config{
		Level:   level,
		Colored: colored,
		LogDir:  *logDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(banner)
	rootLog.Info("🚀 Starting emotewatch")

	configs, err := config.LoadAllChannelConfigs(*configDir)
	if err != nil {
		rootLog.Error("Failed to load channel configs", "dir", *configDir, "error", err)
		os.Exit(1)
	}

	for _, cfg := range configs {
		if err := config.Validate(cfg); err != nil {
			rootLog.Error("Invalid config", "channel", cfg.Channel, "error", err)
			os.Exit(1)
		}
	}

	rootLog.Info("📂 Loaded channel configurations",
		"count", len(configs),
		"config_dir", *configDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		rootLog.Info("Received shutdown signal", "signal", sig.String())
		cancel()

		time.AfterFunc(30*time.Second, func() {
			rootLog.Error("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		})
	}()

	watchers := make([]*watcher.Watcher, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.IsEnabled() {
			rootLog.Info("Channel is disabled, skipping", "channel", cfg.Channel)
			continue
		}
		channelLog := rootLog.WithChannel(cfg.Channel)
		watchers = append(watchers, watcher.New(cfg, channelLog))
	}

	if len(watchers) == 0 {
		rootLog.Error("No enabled channels to watch")
		os.Exit(1)
	}

	rootLog.Info("Resolving channel identifiers",
		"count", len(watchers),
		"workers", constants.StartupWorkers,
	)
	err = workerpool.Run(ctx, watchers, constants.StartupWorkers, func(ctx context.Context, w *watcher.Watcher) error {
		return w.ResolveIdentifiers(ctx)
	})
	if err != nil {
		rootLog.Error("Failed to resolve channel identifiers", "error", err)
		os.Exit(1)
	}

	addr := ":" + httpPort
	statusServer := server.NewStatusServer(addr, rootLog)
	statusServer.SetWatcherFunc(func() []*watcher.Watcher {
		return watchers
	})

	go func() {
		if err := statusServer.Run(ctx); err != nil && ctx.Err() == nil {
			rootLog.Error("Status server failed", "error", err)
		}
	}()

	rootLog.Info("🌐 Health/status server started", "addr", addr)

	var wg sync.WaitGroup
	for _, w := range watchers {
		wg.Add(1)
		go func(w *watcher.Watcher) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				if ctx.Err() != nil {
					rootLog.Info("Watcher stopped due to shutdown", "channel", w.Channel())
				} else {
					rootLog.Error("Watcher failed", "channel", w.Channel(), "error", err)
				}
			}
		}(w)
	}

	wg.Wait()

	if ctx.Err() != nil {
		rootLog.Info("🛑 Shutdown complete")
	}

	rootLog.Info("👋 All watchers stopped. Goodbye!")
}
