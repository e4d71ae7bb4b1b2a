// dashd is the dashboard status daemon: it classifies terminal output from
// tracked sessions into activity statuses and serves them over HTTP and
// WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/AsabiAlgo/masterdashboard/internal/config"
	"github.com/AsabiAlgo/masterdashboard/internal/history"
	"github.com/AsabiAlgo/masterdashboard/internal/logging"
	"github.com/AsabiAlgo/masterdashboard/internal/status"
	"github.com/AsabiAlgo/masterdashboard/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", defaultConfigPath(), "path to dashd.toml")
		listenAddr = flag.String("listen", "", "listen address (overrides config)")
		logLevel   = flag.String("log-level", "", "log level (overrides config)")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println(web.Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listenAddr != "" {
		cfg.Web.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logging.Init(logging.Config{
		LogDir:    cfg.Logging.Dir,
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		PprofAddr: cfg.Logging.PprofAddr,
	})
	defer logging.Shutdown()
	log := logging.ForComponent(logging.CompMain)

	registry := status.NewRegistry()
	for _, cat := range status.DefaultCategories() {
		if err := registry.LoadCategory(cat.Name, cat.Rules); err != nil {
			return fmt.Errorf("load built-in category: %w", err)
		}
	}
	fileCats, err := config.LoadPatternDir(cfg.PatternDir)
	if err != nil {
		return err
	}
	for _, cat := range fileCats {
		if err := registry.LoadCategory(cat.Name, cat.Rules); err != nil {
			return fmt.Errorf("load pattern file category: %w", err)
		}
	}

	engine := status.NewEngine(registry, cfg.EngineSettings())
	defer engine.Close()

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.DBPath)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	server := web.NewServer(web.Config{ListenAddr: cfg.Web.ListenAddr}, engine, hist)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 dumps the in-memory log tail for bug reports.
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			dir := cfg.Logging.Dir
			if dir == "" {
				dir = os.TempDir()
			}
			dumpPath := filepath.Join(dir, fmt.Sprintf("dashd-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				log.Error("log_dump_failed", slog.String("error", err.Error()))
			} else {
				log.Info("log_dump_written", slog.String("path", dumpPath))
			}
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if hist != nil {
		g.Go(func() error {
			hist.Run(ctx, engine.Broadcaster().SubscribeAll())
			return nil
		})
	}
	if cfg.PatternDir != "" {
		g.Go(func() error { return watchPatternDir(ctx, cfg.PatternDir, registry) })
	}

	log.Info("dashd_started",
		slog.String("listen", cfg.Web.ListenAddr),
		slog.Int("rules", registry.Len()),
		slog.String("pattern_dir", cfg.PatternDir))

	return g.Wait()
}

// watchPatternDir hot-reloads changed category files. Each reload is one
// atomic snapshot swap; a file that fails to parse or compile leaves the
// running rules untouched.
func watchPatternDir(ctx context.Context, dir string, registry *status.Registry) error {
	log := logging.ForComponent(logging.CompConfig)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pattern watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// Editors produce bursts of events per save; debounce per file.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".toml") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending[ev.Name] = time.Now()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("pattern_watch_error", slog.String("error", err.Error()))
		case <-ticker.C:
			for path, at := range pending {
				if time.Since(at) < 200*time.Millisecond {
					continue
				}
				delete(pending, path)
				reloadPatternFile(log, path, registry)
			}
		}
	}
}

func reloadPatternFile(log *slog.Logger, path string, registry *status.Registry) {
	cat, err := config.LoadPatternFile(path)
	if err != nil {
		log.Warn("pattern_reload_parse_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	if err := registry.ReplaceCategory(cat.Name, cat.Rules); err != nil {
		log.Warn("pattern_reload_rejected",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	log.Info("pattern_category_reloaded",
		slog.String("category", cat.Name),
		slog.Int("rules", len(cat.Rules)))
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return config.ConfigFileName
	}
	return filepath.Join(home, ".masterdashboard", config.ConfigFileName)
}
