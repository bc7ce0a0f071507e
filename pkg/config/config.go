package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/valyx/valog/pkg/vlog"
)

// Config represents the valog configuration
type Config struct {
	DataDir string  `yaml:"data_dir"`
	Port    int     `yaml:"port"`
	Bind    string  `yaml:"bind"`
	Engine  Engine  `yaml:"engine"`
	Logging Logging `yaml:"logging"`
}

// Engine contains the value-log engine tunables. Zero values fall back to
// the engine defaults.
type Engine struct {
	MaxSize            int64   `yaml:"max_size"`
	BufMax             int     `yaml:"buf_max"`
	SameFileMax        int     `yaml:"same_file_max"`
	HeadCacheCap       int     `yaml:"head_cache_cap"`
	DataCacheCap       int     `yaml:"data_cache_cap"`
	FileHandleCacheCap int     `yaml:"file_handle_cache_cap"`
	GCMaxRounds        int     `yaml:"gc_max_rounds"`
	GCReclaimThreshold float64 `yaml:"gc_reclaim_threshold"`
	DatabaseID         uint64  `yaml:"database_id"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Port:    8080,
		Bind:    "127.0.0.1",
		Engine: Engine{
			MaxSize:            vlog.DefaultMaxSize,
			BufMax:             vlog.DefaultBufMax,
			HeadCacheCap:       vlog.DefaultHeadCacheCap,
			DataCacheCap:       vlog.DefaultDataCacheCap,
			FileHandleCacheCap: vlog.DefaultFileHandleCacheCap,
			GCMaxRounds:        vlog.DefaultGCMaxRounds,
			GCReclaimThreshold: vlog.DefaultGCReclaimThreshold,
			DatabaseID:         1,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// EngineConfig maps the file representation onto the engine's Config.
func (c *Config) EngineConfig() vlog.Config {
	return vlog.Config{
		MaxSize:            c.Engine.MaxSize,
		BufMax:             c.Engine.BufMax,
		SameFileMax:        c.Engine.SameFileMax,
		HeadCacheCap:       c.Engine.HeadCacheCap,
		DataCacheCap:       c.Engine.DataCacheCap,
		FileHandleCacheCap: c.Engine.FileHandleCacheCap,
		GCMaxRounds:        c.Engine.GCMaxRounds,
		GCReclaimThreshold: c.Engine.GCReclaimThreshold,
		DatabaseID:         c.Engine.DatabaseID,
	}
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveConfig saves the configuration to the specified path
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./valog.yaml"
	}

	configDir := filepath.Join(homeDir, ".config", "valog")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
