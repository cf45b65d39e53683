// Package main is the entry point for the reconmc-agent binary.
// It wires all internal packages together and starts the claim loop.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Load or mint a persistent agent identity in the state directory
//  4. Build the scan executor (SLP + SOCKS + msauth + botproto + plugins)
//  5. Build the coordinator REST client and runner
//  6. Run the runner until SIGINT/SIGTERM
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reconmc/agent/internal/coordclient"
	"reconmc/agent/internal/scan"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	coordinatorAddr string
	agentName       string
	stateDir        string
	logLevel        string
	pollInterval    time.Duration
	heartbeatEvery  time.Duration
	autoAuth        bool
	autoAuthPass    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "reconmc-agent",
		Short: "reconmc agent — claims and runs Minecraft server scans",
		Long: `reconmc agent polls a reconmc coordinator for queued scan targets,
runs the SLP probe / auth / bot-connect / plugin-detection pipeline against
each one through an assigned proxy, and reports the result back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.coordinatorAddr, "coordinator-addr", envOrDefault("RECONMC_COORDINATOR", "http://localhost:8080"), "reconmc coordinator base URL")
	root.PersistentFlags().StringVar(&cfg.agentName, "agent-name", envOrDefault("RECONMC_AGENT_NAME", defaultAgentName()), "display name reported at registration")
	root.PersistentFlags().StringVar(&cfg.stateDir, "state-dir", envOrDefault("RECONMC_STATE_DIR", defaultStateDir()), "directory for agent state (agent-state.json)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("RECONMC_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&cfg.pollInterval, "poll-interval", 2*time.Second, "claim-queue poll interval")
	root.PersistentFlags().DurationVar(&cfg.heartbeatEvery, "heartbeat-interval", 15*time.Second, "heartbeat interval")
	root.PersistentFlags().BoolVar(&cfg.autoAuth, "auto-auth", true, "reply to /register and /login prompts on cracked-mode servers")
	root.PersistentFlags().StringVar(&cfg.autoAuthPass, "auto-auth-password", envOrDefault("RECONMC_AUTOAUTH_PASSWORD", "reconmc"), "password used when replying to /register or /login prompts")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reconmc-agent %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.stateDir, 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	agentID, err := coordclient.LoadOrCreateAgentID(cfg.stateDir)
	if err != nil {
		return fmt.Errorf("failed to load agent identity: %w", err)
	}

	logger.Info("starting reconmc agent",
		zap.String("version", version),
		zap.String("coordinator", cfg.coordinatorAddr),
		zap.String("agent_id", agentID),
		zap.String("state_dir", cfg.stateDir),
	)

	scanCfg := scan.DefaultConfig()
	scanCfg.AutoAuthEnabled = cfg.autoAuth
	scanCfg.AutoAuthPassword = cfg.autoAuthPass

	executor := scan.NewExecutor(logger, scanCfg)

	client := coordclient.NewClient(cfg.coordinatorAddr, agentID, nil)
	runnerCfg := coordclient.RunnerConfig{
		AgentName:         cfg.agentName,
		PollInterval:      cfg.pollInterval,
		HeartbeatInterval: cfg.heartbeatEvery,
	}
	runner := coordclient.NewRunner(client, executor.Execute, runnerCfg, logger)

	runner.Run(ctx)

	logger.Info("reconmc agent stopped")
	return nil
}

// defaultStateDir returns the default state directory: ~/.reconmc on every
// platform, or ./.reconmc when the home directory cannot be determined.
func defaultStateDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir + "/.reconmc"
	}
	return ".reconmc"
}

func defaultAgentName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "reconmc-agent"
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
