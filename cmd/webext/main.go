// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Command webext builds browser extensions from their manifest.json.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/buke/esbuild-plugin-webext-go/cmd/webext/build"
)

var rootCmd = &cobra.Command{
	Use:   "webext",
	Short: "Build browser extensions with esbuild",
	Long: `webext compiles every component a manifest.json declares and writes
the extension package with a manifest pointing at the compiled files.

Settings can also be read from webext.yaml (or webext.json) in the project root.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := readConfig(); err != nil {
			return err
		}
		return setupLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("root", "r", ".", "Project root manifest entries are relative to")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: <root>/webext.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	_ = viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.SetEnvPrefix("WEBEXT")
	viper.AutomaticEnv()

	rootCmd.AddCommand(build.Cmd)
}

// readConfig loads the optional config file. Flags set on the command line win.
func readConfig() error {
	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("webext")
		viper.AddConfigPath(viper.GetString("root"))
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func setupLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", viper.GetString("log-level"), err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
