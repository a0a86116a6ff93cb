// Package util provides common utilities for banwatch.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// fail2ban interface
	ClientPath     string        `mapstructure:"client_path"`
	Fail2banLog    string        `mapstructure:"fail2ban_log"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	// SSH auth log (empty = auto-detect, disabled when none found)
	SSHLog string `mapstructure:"ssh_log"`

	// Poll intervals
	TailInterval       time.Duration `mapstructure:"tail_interval"`
	ReconcileInterval  time.Duration `mapstructure:"reconcile_interval"`
	SSHLogInterval     time.Duration `mapstructure:"ssh_log_interval"`
	GeoResolveInterval time.Duration `mapstructure:"geo_resolve_interval"`

	// Geolocation
	GeoAPIURL  string        `mapstructure:"geo_api_url"`
	GeoTimeout time.Duration `mapstructure:"geo_timeout"`
	GeoBatch   int           `mapstructure:"geo_batch"`

	// Raw line retention for the log view
	RecentLines int `mapstructure:"recent_lines"`

	// Web API server
	WebPort int `mapstructure:"web_port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".banwatch")

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		LogFile:  filepath.Join(dataDir, "banwatch.log"),

		ClientPath:     "/usr/bin/fail2ban-client",
		Fail2banLog:    "/var/log/fail2ban.log",
		CommandTimeout: 10 * time.Second,

		TailInterval:       5 * time.Second,
		ReconcileInterval:  30 * time.Second,
		SSHLogInterval:     time.Minute,
		GeoResolveInterval: time.Minute,

		GeoAPIURL:  "http://ip-api.com",
		GeoTimeout: 5 * time.Second,
		GeoBatch:   5,

		RecentLines: 500,
		WebPort:     8080,
	}
}

// LoadConfig loads configuration from file and environment.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	// Ensure config directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(cfg.DataDir)
	viper.AddConfigPath(".")

	viper.SetDefault("data_dir", cfg.DataDir)
	viper.SetDefault("log_level", cfg.LogLevel)
	viper.SetDefault("log_file", cfg.LogFile)
	viper.SetDefault("client_path", cfg.ClientPath)
	viper.SetDefault("fail2ban_log", cfg.Fail2banLog)
	viper.SetDefault("command_timeout", cfg.CommandTimeout)
	viper.SetDefault("tail_interval", cfg.TailInterval)
	viper.SetDefault("reconcile_interval", cfg.ReconcileInterval)
	viper.SetDefault("ssh_log_interval", cfg.SSHLogInterval)
	viper.SetDefault("geo_resolve_interval", cfg.GeoResolveInterval)
	viper.SetDefault("geo_api_url", cfg.GeoAPIURL)
	viper.SetDefault("geo_timeout", cfg.GeoTimeout)
	viper.SetDefault("geo_batch", cfg.GeoBatch)
	viper.SetDefault("recent_lines", cfg.RecentLines)
	viper.SetDefault("web_port", cfg.WebPort)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// FindSSHLog returns the first readable SSH auth log on this system,
// or an empty string when none is found.
func FindSSHLog() string {
	candidates := []string{
		"/var/log/auth.log", // Debian/Ubuntu
		"/var/log/secure",   // RHEL/CentOS/Fedora
		"/var/log/messages",
		"/var/log/syslog",
		"/var/log/authlog", // BSD style
	}

	for _, path := range candidates {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		f.Close()
		return path
	}

	return ""
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return info != nil && !info.IsDir()
}
