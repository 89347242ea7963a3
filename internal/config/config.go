// Package config loads DuskWatch's runtime configuration from the
// environment, following the same default-then-validate shape the crawler
// this project was adapted from uses for its own Config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every environment-tunable knob listed in spec.md §6, plus
// the ambient knobs this expansion adds for the API server, logger, and
// scheduler.
type Config struct {
	AnonProxyAddr      string // ANON_PROXY_ADDR - SOCKS5 endpoint for .onion routing
	StoreURI           string // STORE_URI - accepted and logged; store is in-memory
	RequestTimeout     time.Duration
	DownloadMaxBytes   int64
	MonitorPoolSize    int
	MonitorCapPerOwner int
	LogDir             string

	APIListenAddr         string
	LogLevel              string
	LogJSON               bool
	SchedulerTickInterval time.Duration
	ScanFetchTimeout      time.Duration
	MaxFileLinksPerScan   int
}

// Default returns the configuration a fresh install runs with when no
// environment variables are set.
func Default() *Config {
	return &Config{
		AnonProxyAddr:      "127.0.0.1:9050",
		StoreURI:           "memory://local",
		RequestTimeout:     30 * time.Second,
		DownloadMaxBytes:   50 * 1024 * 1024,
		MonitorPoolSize:    4,
		MonitorCapPerOwner: 5,
		LogDir:             "logs",

		APIListenAddr:         ":8080",
		LogLevel:              "INFO",
		LogJSON:               false,
		SchedulerTickInterval: 30 * time.Second,
		ScanFetchTimeout:      30 * time.Second,
		MaxFileLinksPerScan:   10,
	}
}

// yamlConfig mirrors the subset of Config an operator may want to pin in a
// checked-in file rather than an env var. Fields left zero-valued in the
// file do not override the default.
type yamlConfig struct {
	AnonProxyAddr         string `yaml:"anon_proxy_addr"`
	StoreURI              string `yaml:"store_uri"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	DownloadMaxBytes      int64  `yaml:"download_max_bytes"`
	MonitorPoolSize       int    `yaml:"monitor_pool_size"`
	MonitorCapPerOwner    int    `yaml:"monitor_cap_per_owner"`
	LogDir                string `yaml:"log_dir"`
	APIListenAddr         string `yaml:"api_listen_addr"`
	LogLevel              string `yaml:"log_level"`
	LogJSON               bool   `yaml:"log_json"`
	MaxFileLinksPerScan   int    `yaml:"max_file_links_per_scan"`
}

// loadFile reads a YAML config file, if path is non-empty, and applies its
// fields onto c as a base layer under the env-var overlay. A missing path is
// not an error; DUSKWATCH_CONFIG_FILE is optional.
func loadFile(c *Config, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(raw, &yc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if yc.AnonProxyAddr != "" {
		c.AnonProxyAddr = yc.AnonProxyAddr
	}
	if yc.StoreURI != "" {
		c.StoreURI = yc.StoreURI
	}
	if yc.RequestTimeoutSeconds > 0 {
		c.RequestTimeout = time.Duration(yc.RequestTimeoutSeconds) * time.Second
	}
	if yc.DownloadMaxBytes > 0 {
		c.DownloadMaxBytes = yc.DownloadMaxBytes
	}
	if yc.MonitorPoolSize > 0 {
		c.MonitorPoolSize = yc.MonitorPoolSize
	}
	if yc.MonitorCapPerOwner > 0 {
		c.MonitorCapPerOwner = yc.MonitorCapPerOwner
	}
	if yc.LogDir != "" {
		c.LogDir = yc.LogDir
	}
	if yc.APIListenAddr != "" {
		c.APIListenAddr = yc.APIListenAddr
	}
	if yc.LogLevel != "" {
		c.LogLevel = yc.LogLevel
	}
	if yc.LogJSON {
		c.LogJSON = yc.LogJSON
	}
	if yc.MaxFileLinksPerScan > 0 {
		c.MaxFileLinksPerScan = yc.MaxFileLinksPerScan
	}
	return nil
}

// Load builds a Config from an optional YAML file (DUSKWATCH_CONFIG_FILE)
// overlaid by environment variables, falling back to Default for anything
// unset, then validates the result.
func Load() (*Config, error) {
	c := Default()

	if err := loadFile(c, os.Getenv("DUSKWATCH_CONFIG_FILE")); err != nil {
		return nil, err
	}

	c.AnonProxyAddr = envStr("ANON_PROXY_ADDR", c.AnonProxyAddr)
	c.StoreURI = envStr("STORE_URI", c.StoreURI)
	c.RequestTimeout = envSeconds("REQUEST_TIMEOUT_SECONDS", c.RequestTimeout)
	c.DownloadMaxBytes = envInt64("DOWNLOAD_MAX_BYTES", c.DownloadMaxBytes)
	c.MonitorPoolSize = envInt("MONITOR_POOL_SIZE", c.MonitorPoolSize)
	c.MonitorCapPerOwner = envInt("MONITOR_CAP_PER_OWNER", c.MonitorCapPerOwner)
	c.LogDir = envStr("LOG_DIR", c.LogDir)

	c.APIListenAddr = envStr("API_LISTEN_ADDR", c.APIListenAddr)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogJSON = envBool("LOG_JSON", c.LogJSON)
	c.SchedulerTickInterval = envSeconds("SCHEDULER_TICK_SECONDS", c.SchedulerTickInterval)
	c.ScanFetchTimeout = envSeconds("SCAN_FETCH_TIMEOUT_SECONDS", c.ScanFetchTimeout)
	c.MaxFileLinksPerScan = envInt("MAX_FILE_LINKS_PER_SCAN", c.MaxFileLinksPerScan)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations that would leave the system in an
// inconsistent state, mirroring the crawler's own Config.Validate pattern
// of clamping soft limits and hard-failing on nonsensical ones.
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be > 0, got %s", c.RequestTimeout)
	}
	if c.DownloadMaxBytes <= 0 {
		return fmt.Errorf("DOWNLOAD_MAX_BYTES must be > 0, got %d", c.DownloadMaxBytes)
	}
	if c.MonitorPoolSize < 1 {
		c.MonitorPoolSize = 1
	}
	if c.MonitorCapPerOwner < 1 {
		return fmt.Errorf("MONITOR_CAP_PER_OWNER must be >= 1, got %d", c.MonitorCapPerOwner)
	}
	if c.SchedulerTickInterval < time.Second {
		c.SchedulerTickInterval = 30 * time.Second
	}
	if c.MaxFileLinksPerScan < 0 {
		c.MaxFileLinksPerScan = 0
	}
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
