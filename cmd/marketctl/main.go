// Package main provides the marketctl binary entry point. Marketctl is a
// command-line client for a peer-to-peer marketplace: browse listings,
// manage the shopping cart, and check out, with transparent session refresh.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/marketctl/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "marketctl"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootFlags carries the persistent overrides shared by every command.
type rootFlags struct {
	baseURL     string
	logLevel    string
	metricsAddr string
}

func rootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "marketctl",
		Short: "Marketplace command-line client",
		Long: `Marketctl is a command-line client for a peer-to-peer marketplace.

It keeps your session valid across calls (access tokens are refreshed
transparently), reconciles your shopping cart against the backend's
authoritative state, and keeps every view of the cart count in sync.

Configuration is layered: defaults, then ~/.config/marketctl/config.yaml,
then a marketctl.yaml in the current or a parent directory, then
MARKETCTL_* environment variables, then flags.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "Backend base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address")

	cmd.AddCommand(
		loginCmd(flags),
		logoutCmd(flags),
		registerCmd(flags),
		whoamiCmd(flags),
		listingsCmd(flags),
		cartCmd(flags),
		checkoutCmd(flags),
		contactCmd(flags),
		messagesCmd(flags),
		configCmd(flags),
		versionCmd(),
	)

	return cmd
}

func configCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage marketctl configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(buildLogger(flags.logLevel))
			if err := loader.EnsureUserConfig(); err != nil {
				return fmt.Errorf("create user config: %w", err)
			}
			fmt.Println(loader.UserConfigPath())
			return nil
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

// loadApp loads configuration, applies flag overrides, and wires the app.
// The returned cleanup stops background pieces and must run before exit.
func loadApp(cmd *cobra.Command, flags *rootFlags) (*App, func(), error) {
	logger := buildLogger(flags.logLevel)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(logger).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if flags.baseURL != "" {
		cfg.API.BaseURL = flags.baseURL
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Addr = flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// The config file may set a log level the flag didn't override.
	if flags.logLevel == "" && cfg.Log.Level != "info" {
		logger = buildLogger(cfg.Log.Level)
		slog.SetDefault(logger)
	}

	app := NewApp(cfg, logger)
	if err := app.Start(cmd.Context()); err != nil {
		return nil, nil, err
	}

	return app, app.Shutdown, nil
}

func buildLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
