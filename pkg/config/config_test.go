package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/valyx/valog/pkg/vlog"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "./data", config.DataDir)
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "127.0.0.1", config.Bind)
	assert.Equal(t, int64(vlog.DefaultMaxSize), config.Engine.MaxSize)
	assert.Equal(t, vlog.DefaultBufMax, config.Engine.BufMax)
	assert.Equal(t, vlog.DefaultGCMaxRounds, config.Engine.GCMaxRounds)
	assert.Equal(t, uint64(1), config.Engine.DatabaseID)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestEngineConfigMapping(t *testing.T) {
	config := &Config{
		Engine: Engine{
			MaxSize:            64 << 20,
			BufMax:             1 << 20,
			SameFileMax:        512 << 10,
			HeadCacheCap:       100,
			DataCacheCap:       50,
			FileHandleCacheCap: 8,
			GCMaxRounds:        4,
			GCReclaimThreshold: 0.5,
			DatabaseID:         7,
		},
	}

	engineCfg := config.EngineConfig()
	assert.Equal(t, int64(64<<20), engineCfg.MaxSize)
	assert.Equal(t, 1<<20, engineCfg.BufMax)
	assert.Equal(t, 512<<10, engineCfg.SameFileMax)
	assert.Equal(t, 100, engineCfg.HeadCacheCap)
	assert.Equal(t, 50, engineCfg.DataCacheCap)
	assert.Equal(t, 8, engineCfg.FileHandleCacheCap)
	assert.Equal(t, 4, engineCfg.GCMaxRounds)
	assert.Equal(t, 0.5, engineCfg.GCReclaimThreshold)
	assert.Equal(t, uint64(7), engineCfg.DatabaseID)
}

func TestLoadConfig(t *testing.T) {
	t.Run("load existing config", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "valog_config_test")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		configPath := filepath.Join(tmpDir, "config.yaml")
		expectedConfig := &Config{
			DataDir: "/custom/data",
			Port:    9000,
			Bind:    "0.0.0.0",
			Engine: Engine{
				MaxSize:            128 << 20,
				BufMax:             4 << 20,
				GCMaxRounds:        8,
				GCReclaimThreshold: 0.3,
				DatabaseID:         2,
			},
			Logging: Logging{
				Level: "debug",
			},
		}

		err = SaveConfig(expectedConfig, configPath)
		require.NoError(t, err)

		loadedConfig, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, expectedConfig, loadedConfig)
	})

	t.Run("load non-existent config", func(t *testing.T) {
		_, err := LoadConfig("/non/existent/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})

	t.Run("load invalid yaml", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "valog_config_test")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		configPath := filepath.Join(tmpDir, "invalid.yaml")
		err = os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644)
		require.NoError(t, err)

		_, err = LoadConfig(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestSaveConfig(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "valog_config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	config := DefaultConfig()

	err = SaveConfig(config, configPath)
	require.NoError(t, err)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "valog")
	assert.Contains(t, path, "config.yaml")
}

func TestConfigExists(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "valog_config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	existingPath := filepath.Join(tmpDir, "exists.yaml")
	nonExistentPath := filepath.Join(tmpDir, "does-not-exist.yaml")

	err = os.WriteFile(existingPath, []byte("test"), 0644)
	require.NoError(t, err)

	assert.True(t, ConfigExists(existingPath))
	assert.False(t, ConfigExists(nonExistentPath))
}

func TestConfigYAMLMarshalling(t *testing.T) {
	config := &Config{
		DataDir: "/test/data",
		Port:    9999,
		Bind:    "localhost",
		Engine: Engine{
			MaxSize:     32 << 20,
			SameFileMax: 256 << 10,
			DatabaseID:  3,
		},
		Logging: Logging{
			Level: "warn",
		},
	}

	data, err := yaml.Marshal(config)
	require.NoError(t, err)

	var unmarshalled Config
	err = yaml.Unmarshal(data, &unmarshalled)
	require.NoError(t, err)

	assert.Equal(t, config, &unmarshalled)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	config := DefaultConfig()

	// Use a path whose parent is a regular file so MkdirAll fails even
	// when the test runs as root.
	notADir := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0600))
	invalidPath := filepath.Join(notADir, "subdir", "config.yaml")

	err := SaveConfig(config, invalidPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}
