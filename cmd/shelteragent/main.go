// Package main is the entry point for the ShelterAgent host telemetry agent.
// It loads configuration, builds the agent and runs it either under the
// Windows service control manager or as a foreground process.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/agent"
	"github.com/shelteragent/agent/internal/config"
	"github.com/shelteragent/agent/internal/identity"
	"github.com/shelteragent/agent/internal/logging"
	"github.com/shelteragent/agent/internal/service"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "shelteragent",
		Short:         "Host telemetry agent reporting to a ShelterAgent collector",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cfgFile)
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yml", "path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Register if needed and start reporting (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAgent(cfgFile)
			},
		},
		newInitCmd(&cfgFile),
		&cobra.Command{
			Use:   "hwid",
			Short: "Print the derived hardware id and agent id",
			RunE: func(cmd *cobra.Command, args []string) error {
				return printIdentity(cmd, cfgFile)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "shelteragent %s\n", version)
			},
		},
	)
	return root
}

func newInitCmd(cfgFile *string) *cobra.Command {
	var (
		server    string
		insecure  bool
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file for the given collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeConfig(*cfgFile, server, !insecure, overwrite)
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "collector base URL (https://...)")
	cmd.Flags().BoolVar(&insecure, "insecure-skip-verify", false, "disable TLS certificate verification")
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing file")
	_ = cmd.MarkFlagRequired("server")
	return cmd
}

// writeConfig renders the embedded template with the given server settings.
func writeConfig(path, server string, verifySSL, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg, err := config.LoadFromBytes(configTemplate)
	if err != nil {
		return fmt.Errorf("embedded template: %w", err)
	}
	cfg.Server.URL = server
	cfg.Server.VerifySSL = verifySSL
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func printIdentity(cmd *cobra.Command, cfgFile string) error {
	var hwid, hostname string
	if cfg, err := config.Load(config.Locate(cfgFile)); err == nil {
		hwid, hostname = cfg.Agent.HWID, cfg.Agent.Hostname
	}

	id := identity.Resolve(cmd.Context(), hwid, hostname)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "hwid:     %s\n", id.HWID)
	fmt.Fprintf(out, "hostname: %s\n", id.Hostname)
	fmt.Fprintf(out, "agent_id: %s\n", id.AgentID)
	return nil
}

// runAgent loads the configuration, builds the agent and blocks until it
// stops. Configuration and startup registration failures are returned and
// make the process exit 1.
func runAgent(cfgFile string) error {
	path := config.Locate(cfgFile)
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return fmt.Errorf("%w (create one with: shelteragent init --server https://...)", err)
		}
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting ShelterAgent",
		zap.String("version", version),
		zap.String("config", path),
		zap.String("server", cfg.BaseURL()))

	svc := service.New(logger, func(ctx context.Context) error {
		return buildAndRun(ctx, path, cfg, logger)
	})
	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
		return svc.Run()
	}

	printBanner(os.Stdout, "ShelterAgent")
	return svc.RunForeground()
}

func buildAndRun(ctx context.Context, path string, cfg *config.Config, logger *zap.Logger) error {
	a, err := agent.New(ctx, &config.File{Path: path, Config: cfg}, logger)
	if err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return err
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("Agent failed to start", zap.Error(err))
		return err
	}
	return nil
}
