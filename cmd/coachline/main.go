package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/coachline/internal/config"
	"github.com/user/coachline/internal/state"
	"github.com/user/coachline/internal/types"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "coachline",
	Short: "Streaming conversation client for the coaching backend",
	Long: "coachline talks to a streaming agent backend over a duplex connection,\n" +
		"reconciles the event stream into a readable transcript, and persists\n" +
		"conversations locally or to a remote store.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".coachline", "config.json"), "config file path")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildStores selects the persistence backend from config.
func buildStores(cfg *config.Config) (types.SessionStore, types.EntryStore) {
	if cfg.Store.Kind == "remote" {
		return state.NewRemote(cfg.Store.URL, cfg.Store.Token)
	}
	return state.NewSessionStore(cfg.DataDir), state.NewEntryStore(cfg.DataDir)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
