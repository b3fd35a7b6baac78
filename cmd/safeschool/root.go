package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ayusman/safeschool/internal/config"
	"github.com/ayusman/safeschool/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "safeschool",
	Short: "Entrance face recognition with guardian notifications",
	Long: `SafeSchool recognizes enrolled students at the school entrance and sends
their guardians a Telegram message with a snapshot when a student arrives.

Guardians link themselves to a student through the companion bot using a
single-use token issued by the school.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (bindings, tokens, events)")
	rootCmd.PersistentFlags().String("gallery", "", "Gallery file path")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig layers flags set on cmd over the file and environment configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Storage.DatabasePath = mustGetString(cmd, "db")
	}
	if flags.Changed("gallery") {
		cfg.Storage.GalleryPath = mustGetString(cmd, "gallery")
	}
	if flags.Changed("source") {
		cfg.Capture.Source = mustGetString(cmd, "source")
	}
	if flags.Changed("threshold") {
		cfg.Pipeline.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if flags.Changed("stable-window") {
		cfg.Pipeline.StableWindow = mustGetDuration(cmd, "stable-window")
	}
	if flags.Changed("cooldown") {
		cfg.Pipeline.Cooldown = mustGetDuration(cmd, "cooldown")
	}
	if flags.Changed("detector") {
		cfg.Detector.Backend = mustGetString(cmd, "detector")
	}
	if flags.Changed("display") {
		cfg.Capture.Display = mustGetBool(cmd, "display")
	}
	if flags.Changed("tray") {
		cfg.Capture.Tray = mustGetBool(cmd, "tray")
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = mustGetString(cmd, "http")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.New(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Storage.DatabasePath, err)
	}
	return st, nil
}

// dashboardURL turns a listen address into a browsable URL.
func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
