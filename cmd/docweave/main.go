package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/docweave/internal/api"
	"github.com/dgnsrekt/docweave/internal/browser"
	"github.com/dgnsrekt/docweave/internal/config"
	"github.com/dgnsrekt/docweave/internal/crawler"
	"github.com/dgnsrekt/docweave/internal/netutil"
	"github.com/dgnsrekt/docweave/internal/robots"
	"github.com/dgnsrekt/docweave/internal/storage"
	"github.com/dgnsrekt/docweave/internal/throttle"
)

// sessionOpener adapts the browser manager to the runner's interface.
type sessionOpener struct {
	manager *browser.Manager
}

func (o sessionOpener) NewSession(ctx context.Context, id string) (crawler.PageSession, error) {
	return o.manager.NewSession(ctx, id)
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	seedURL := flag.String("seed", "", "seed URL (overrides config)")
	maxPages := flag.Int("max-pages", 0, "page budget (overrides config)")
	launchBrowser := flag.Bool("launch-browser", true, "launch a browser when none is listening on the CDP port")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *seedURL, *maxPages)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("Starting docweave crawler",
		"seed", cfg.Crawl.SeedURL,
		"scope", cfg.ScopeURL(),
		"output_dir", cfg.Crawl.OutputDir,
		"concurrency", cfg.Crawl.Concurrency,
		"max_pages", cfg.Crawl.MaxPages,
		"tab_traversal", cfg.Tabs.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutdown signal received")
		cancel()
	}()

	var launcher *browser.Launcher
	if *launchBrowser {
		launcher = browser.NewLauncher(browser.LaunchConfig{
			CDPAddress: cfg.Browser.CDPAddress,
			CDPPort:    cfg.Browser.CDPPort,
			ProfileDir: cfg.Browser.ProfileDir,
			Headless:   cfg.Browser.Headless,
			UserAgent:  cfg.Browser.UserAgent,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("Failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	manager := browser.NewManager(cfg.CDPURL(), 30*time.Second)
	manager.SetUserAgent(cfg.Browser.UserAgent)
	if err := manager.Connect(ctx); err != nil {
		slog.Error("Failed to connect to browser", "error", err)
		slog.Info("Make sure a Chromium is running with remote debugging enabled", "cdp_url", cfg.CDPURL())
		os.Exit(1)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			slog.Warn("Browser close failed", "error", err)
		}
	}()

	runID := strings.Split(uuid.NewString(), "-")[0]
	reports := storage.NewReportWriter(cfg.Crawl.OutputDir, "traversal", runID, 1024, 50)
	defer func() {
		if err := reports.Close(); err != nil {
			slog.Warn("Report writer close failed", "error", err)
		}
	}()

	runner := crawler.NewRunner(
		cfg,
		sessionOpener{manager: manager},
		robots.NewManager(cfg.Browser.UserAgent, time.Duration(cfg.Crawl.RobotsTimeoutSec)*time.Second, slog.Default()),
		throttle.NewController(cfg.MinDelay(), cfg.MaxDelay()),
		storage.NewMarkdownWriter(cfg.Crawl.OutputDir),
		reports,
		slog.Default(),
	)

	var apiServer *http.Server
	if cfg.API.Enabled {
		preferred := net.JoinHostPort(cfg.API.Address, strconv.Itoa(cfg.API.Port))
		bindAddr, err := netutil.SelectBindAddr(preferred, netutil.FallbackAddrs(cfg.API.Address, cfg.API.Port, 5), true)
		if err != nil {
			slog.Warn("No bind address for status API, disabling it", "error", err)
		} else {
			apiServer = &http.Server{
				Addr:    bindAddr,
				Handler: api.NewServer(runner),
			}
			go func() {
				slog.Info("Status API listening", "addr", apiServer.Addr)
				if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("Status API failed", "error", err)
				}
			}()
		}
	}

	snap := runner.Run(ctx)

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Status API shutdown failed", "error", err)
		}
	}

	slog.Info("Crawl finished",
		"attempted", snap.Attempted,
		"saved", snap.Saved,
		"skipped_by_robots", snap.SkippedByRobots,
		"failures", snap.Failures,
		"tabs_activated", snap.TabsActivated,
		"tabs_failed", snap.TabsFailed,
		"duration_s", int(snap.UptimeSeconds),
	)
}

// loadConfig resolves the effective configuration from file and flags.
// Running without a config file is allowed when -seed supplies the seed URL;
// a config file the user explicitly named must parse, seed flag or not.
func loadConfig(configPath, seedURL string, maxPages int) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if configPath != "" || seedURL == "" {
			return nil, err
		}
		cfg = config.Default()
		cfg.Crawl.SeedURL = seedURL
	}
	if seedURL != "" {
		cfg.Crawl.SeedURL = seedURL
	}
	if maxPages > 0 {
		cfg.Crawl.MaxPages = maxPages
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := io.Writer(os.Stdout)
	if cfg.Logging.File != "" {
		logWriter := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxFileSizeMB,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, logWriter)
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
