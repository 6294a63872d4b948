package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/docweave/internal/frontier"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Browser holds settings for the CDP-attached browser.
type Browser struct {
	CDPAddress string `yaml:"cdp_address"`
	CDPPort    int    `yaml:"cdp_port"`
	Headless   bool   `yaml:"headless"`
	UserAgent  string `yaml:"user_agent"`
	ProfileDir string `yaml:"profile_dir"`
}

// Delay holds random per-visit delay boundaries.
type Delay struct {
	MinSeconds float64 `yaml:"min_seconds"`
	MaxSeconds float64 `yaml:"max_seconds"`
}

// Crawl holds top-level crawling options.
type Crawl struct {
	SeedURL          string `yaml:"seed_url"`
	OutputDir        string `yaml:"output_dir"`
	Concurrency      int    `yaml:"concurrency"`
	MaxPages         int    `yaml:"max_pages"`
	PageTimeoutMS    int    `yaml:"page_timeout_ms"`
	ScopeMode        string `yaml:"scope_mode"` // parent or seed
	RespectRobots    bool   `yaml:"respect_robots"`
	RobotsTimeoutSec int    `yaml:"robots_timeout_sec"`
}

// Tabs controls tab discovery and traversal.
type Tabs struct {
	Enabled              bool   `yaml:"enabled"`
	MaxGroups            int    `yaml:"max_groups"`
	MaxTabsPerGroup      int    `yaml:"max_tabs_per_group"`
	MaxTotalTabs         int    `yaml:"max_total_tabs"`
	HeadingTemplate      string `yaml:"heading_template"`
	WaitForActivationMS  int    `yaml:"wait_for_activation_ms"`
	ContentChangeWaitMS  int    `yaml:"content_change_wait_ms"`
	ExtractionStrategy   string `yaml:"extraction_strategy"` // panel_scoped or whole_page
	HeuristicFallback    bool   `yaml:"heuristic_fallback"`
	ReadabilityIsolation bool   `yaml:"readability_isolation"`
}

// API configures the status HTTP server.
type API struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// Logging configures slog output and file rotation.
type Logging struct {
	Level         string `yaml:"level"`
	File          string `yaml:"file"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb"`
}

// Config aggregates every configuration section.
type Config struct {
	Browser Browser `yaml:"browser"`
	Delay   Delay   `yaml:"delay"`
	Crawl   Crawl   `yaml:"crawl"`
	Tabs    Tabs    `yaml:"tab_traversal"`
	API     API     `yaml:"api"`
	Logging Logging `yaml:"logging"`
}

// Default returns the configuration used when a section is absent.
func Default() *Config {
	return &Config{
		Browser: Browser{
			CDPAddress: "127.0.0.1",
			CDPPort:    9222,
			Headless:   true,
			UserAgent:  defaultUserAgent,
		},
		Delay: Delay{MinSeconds: 1.0, MaxSeconds: 3.0},
		Crawl: Crawl{
			OutputDir:        "crawl_results",
			Concurrency:      1,
			MaxPages:         2000,
			PageTimeoutMS:    120_000,
			ScopeMode:        "parent",
			RespectRobots:    true,
			RobotsTimeoutSec: 15,
		},
		Tabs: Tabs{
			Enabled:              true,
			MaxGroups:            10,
			MaxTabsPerGroup:      5,
			MaxTotalTabs:         40,
			HeadingTemplate:      "#### [Tab: {group} - {label}]",
			WaitForActivationMS:  4000,
			ContentChangeWaitMS:  1500,
			ExtractionStrategy:   "panel_scoped",
			HeuristicFallback:    true,
			ReadabilityIsolation: false,
		},
		API: API{Enabled: true, Address: "127.0.0.1", Port: 8090},
		Logging: Logging{
			Level:         "info",
			MaxFileSizeMB: 50,
		},
	}
}

// Load reads configuration from an optional YAML file, applies environment
// overrides from the process and an optional .env file, and validates the
// result. path may be empty when configuration comes from env alone.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Browser.CDPAddress = getEnvOrDefault("DOCWEAVE_CDP_ADDRESS", c.Browser.CDPAddress)
	c.Browser.CDPPort = getEnvIntOrDefault("DOCWEAVE_CDP_PORT", c.Browser.CDPPort)
	c.Browser.Headless = getEnvBoolOrDefault("DOCWEAVE_HEADLESS", c.Browser.Headless)
	c.Crawl.SeedURL = getEnvOrDefault("DOCWEAVE_SEED_URL", c.Crawl.SeedURL)
	c.Crawl.OutputDir = getEnvOrDefault("DOCWEAVE_OUTPUT_DIR", c.Crawl.OutputDir)
	c.Crawl.Concurrency = getEnvIntOrDefault("DOCWEAVE_CONCURRENCY", c.Crawl.Concurrency)
	c.Crawl.MaxPages = getEnvIntOrDefault("DOCWEAVE_MAX_PAGES", c.Crawl.MaxPages)
	c.Logging.Level = getEnvOrDefault("DOCWEAVE_LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnvOrDefault("DOCWEAVE_LOG_FILE", c.Logging.File)
	c.API.Port = getEnvIntOrDefault("DOCWEAVE_API_PORT", c.API.Port)
}

func (c *Config) validate() error {
	if c.Crawl.SeedURL == "" {
		return fmt.Errorf("config is missing required crawl.seed_url")
	}
	if frontier.Normalize(c.Crawl.SeedURL, "") == "" {
		return fmt.Errorf("crawl.seed_url %q is not a valid http(s) URL", c.Crawl.SeedURL)
	}
	if c.Crawl.Concurrency < 1 {
		c.Crawl.Concurrency = 1
	}
	if c.Crawl.MaxPages < 1 {
		c.Crawl.MaxPages = Default().Crawl.MaxPages
	}
	if c.Crawl.PageTimeoutMS < 1000 {
		c.Crawl.PageTimeoutMS = 1000
	}
	c.Crawl.ScopeMode = strings.ToLower(strings.TrimSpace(c.Crawl.ScopeMode))
	if c.Crawl.ScopeMode != "parent" && c.Crawl.ScopeMode != "seed" {
		c.Crawl.ScopeMode = "parent"
	}
	if c.Delay.MaxSeconds < c.Delay.MinSeconds {
		c.Delay.MaxSeconds = c.Delay.MinSeconds
	}
	if c.Tabs.MaxGroups < 1 {
		c.Tabs.MaxGroups = 1
	}
	if c.Tabs.MaxTabsPerGroup < 1 {
		c.Tabs.MaxTabsPerGroup = 1
	}
	if c.Tabs.MaxTotalTabs < 1 {
		c.Tabs.MaxTotalTabs = 1
	}
	if c.Tabs.WaitForActivationMS < 500 {
		c.Tabs.WaitForActivationMS = 500
	}
	if c.Tabs.ContentChangeWaitMS < 100 {
		c.Tabs.ContentChangeWaitMS = 100
	}
	if strings.TrimSpace(c.Tabs.HeadingTemplate) == "" {
		c.Tabs.HeadingTemplate = Default().Tabs.HeadingTemplate
	}
	if c.Tabs.ExtractionStrategy != "whole_page" {
		c.Tabs.ExtractionStrategy = "panel_scoped"
	}
	return nil
}

// ScopeURL returns the subtree constraint derived from the seed URL.
// parent mode scopes to the seed's directory, seed mode to the seed itself.
func (c *Config) ScopeURL() string {
	if c.Crawl.ScopeMode == "seed" {
		if normalized := frontier.Normalize(c.Crawl.SeedURL, ""); normalized != "" {
			return normalized
		}
		return c.Crawl.SeedURL
	}
	return frontier.ParentURL(c.Crawl.SeedURL)
}

// CDPURL returns the full CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.Browser.CDPAddress, c.Browser.CDPPort)
}

// PageTimeout returns the per-page navigation budget.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.Crawl.PageTimeoutMS) * time.Millisecond
}

// MinDelay returns the lower random delay boundary.
func (c *Config) MinDelay() time.Duration {
	return time.Duration(c.Delay.MinSeconds * float64(time.Second))
}

// MaxDelay returns the upper random delay boundary.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Delay.MaxSeconds * float64(time.Second))
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
