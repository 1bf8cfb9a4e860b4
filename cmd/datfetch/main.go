// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the datfetch CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/datfetch/internal/ctxlog"
	"github.com/pdiddy/datfetch/internal/httputil"
	"github.com/pdiddy/datfetch/internal/listing"
	"github.com/pdiddy/datfetch/internal/term"
	"github.com/pdiddy/datfetch/internal/transfer"
	"github.com/pdiddy/datfetch/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the datfetch CLI.
var rootCmd = &cobra.Command{
	Use:   "datfetch",
	Short: "Bulk download the files a DAT manifest lists from a remote file index",
	Long: `datfetch reads a DAT manifest, finds the matching collection on a remote
HTML directory index, and downloads every listed file that the collection
has. Interrupted downloads resume where they stopped; files already complete
are skipped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logger := ctxlog.New(os.Stderr, verbose)
		cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./datfetch.yaml or ~/.config/datfetch/datfetch.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("http.base_url", listing.DefaultBaseURL)
	viper.SetDefault("http.user_agent", httputil.DefaultUserAgent)
	viper.SetDefault("http.accept", httputil.DefaultAccept)
	viper.SetDefault("http.max_retries", 3)
	viper.SetDefault("transfer.max_attempts", transfer.DefaultMaxAttempts)
	viper.SetDefault("transfer.retry_base_delay", transfer.DefaultRetryBaseDelay)
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("datfetch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "datfetch"))
		}
	}

	viper.SetEnvPrefix("DATFETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the merged flag, env, file and default values.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("reading configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// After the first signal, restore default handling so a second one
	// terminates the process even if a read is still blocked.
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, term.Problem.Render(err.Error()))
		stop()
		os.Exit(1)
	}
}
