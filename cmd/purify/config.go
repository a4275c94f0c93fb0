package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"purify/internal/etl/sources"
	"purify/internal/service"
)

const (
	defaultListenAddr      = "127.0.0.1:8080"
	defaultPivotColumn     = "name"
	defaultReadConnection  = "warehouse"
	defaultWriteConnection = "documents"
	defaultWriteCollection = "companies"
	defaultRelayURL        = "http://127.0.0.1:8080"
	defaultRequestTimeout  = 30 * time.Second
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	ListenAddr      string                      `mapstructure:"listen-addr"`
	StateDBPath     string                      `mapstructure:"state-db-path"`
	PivotColumn     string                      `mapstructure:"pivot-column"`
	ReadConnection  string                      `mapstructure:"read-connection"`
	ReadQuery       string                      `mapstructure:"read-query"`
	WriteConnection string                      `mapstructure:"write-connection"`
	WriteCollection string                      `mapstructure:"write-collection"`
	RelayURL        string                      `mapstructure:"relay-url"`
	RequestTimeout  time.Duration               `mapstructure:"request-timeout"`
	SuffixTermsFile string                      `mapstructure:"suffix-terms-file"`
	Connections     []service.CreateDBConnInput `mapstructure:"connections"`
	ConfigPath      string                      `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("PURIFY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("listen-addr", defaultListenAddr)
	v.SetDefault("state-db-path", filepath.Join(home, ".local", "share", "purify", "purify.db"))
	v.SetDefault("pivot-column", defaultPivotColumn)
	v.SetDefault("read-connection", defaultReadConnection)
	v.SetDefault("read-query", sources.DefaultQuery)
	v.SetDefault("write-connection", defaultWriteConnection)
	v.SetDefault("write-collection", defaultWriteCollection)
	v.SetDefault("relay-url", defaultRelayURL)
	v.SetDefault("request-timeout", defaultRequestTimeout)
	v.SetDefault("suffix-terms-file", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "purify", "config.yml"))
	}

	// Only the default file may be absent; an explicit -config must exist.
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &configFileNotFound) || os.IsNotExist(err)
		if !missing || configPath != "" {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if cfg.PivotColumn == "" {
		return cfg, fmt.Errorf("pivot-column must not be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, fmt.Errorf("invalid request-timeout: %s", cfg.RequestTimeout)
	}

	// Expand ~ in paths
	cfg.StateDBPath = expandHome(home, cfg.StateDBPath)
	cfg.SuffixTermsFile = expandHome(home, cfg.SuffixTermsFile)
	for i := range cfg.Connections {
		if cfg.Connections[i].Driver == "sqlite" {
			cfg.Connections[i].Host = expandHome(home, cfg.Connections[i].Host)
		}
	}

	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
