/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valyx/valog/pkg/checkpoint"
	"github.com/valyx/valog/pkg/config"
	"github.com/valyx/valog/pkg/vlog"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "valog",
	Short: "valog - value-log engine for key/value-separated stores",
	Long: `valog is the append-only value log of a key/value-separated database.
Records live in rotated log files; the owning index keeps 16-byte positions
into them. This tool opens a log directory directly for inspection, garbage
collection and serving.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}

		ckpt, err := checkpoint.Open(filepath.Join(cfg.DataDir, "meta"))
		if err != nil {
			return err
		}
		engine, _, err := vlog.Open(filepath.Join(cfg.DataDir, "log"), cfg.EngineConfig(), ckpt)
		if err != nil {
			ckpt.Close()
			return fmt.Errorf("failed to open log: %w", err)
		}

		ctx := cmd.Context()
		ctx = context.WithValue(ctx, configKey, cfg)
		ctx = context.WithValue(ctx, engineKey, engine)
		ctx = context.WithValue(ctx, checkpointKey, ckpt)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		var firstErr error
		if engine, ok := cmd.Context().Value(engineKey).(*vlog.Engine); ok {
			firstErr = engine.Close()
		}
		if ckpt, ok := cmd.Context().Value(checkpointKey).(*checkpoint.Store); ok {
			if err := ckpt.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	},
}

type contextKey string

const (
	configKey     contextKey = "config"
	engineKey     contextKey = "engine"
	checkpointKey contextKey = "checkpoint"
)

func engineFromContext(cmd *cobra.Command) (*vlog.Engine, error) {
	engine, ok := cmd.Context().Value(engineKey).(*vlog.Engine)
	if !ok {
		return nil, fmt.Errorf("log engine not found in context")
	}
	return engine, nil
}

// resolveConfig layers the config file under the command-line flags.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" && config.ConfigExists(config.GetDefaultConfigPath()) {
		configPath = config.GetDefaultConfigPath()
	}
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("data-dir") || cfg.DataDir == "" {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("data-dir", "d", "./data", "Data directory holding the log and checkpoint")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a valog config file")
}
