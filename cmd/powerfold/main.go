package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/powerfold/powerfold/internal/cluster"
	"github.com/powerfold/powerfold/internal/config"
	"github.com/powerfold/powerfold/internal/logging"
	"github.com/powerfold/powerfold/internal/notify"
	"github.com/powerfold/powerfold/internal/power"
	"github.com/powerfold/powerfold/internal/probe"
	"github.com/powerfold/powerfold/internal/sequence"
	"github.com/powerfold/powerfold/internal/state"
	"github.com/powerfold/powerfold/internal/wake"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "powerfold",
	Short:         "Coordinated cluster power-down and power-up around a UPS event",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = cmd.Usage()
		return fmt.Errorf("expected one of: shutdown, startup")
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Gracefully power the whole cluster down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow("shutdown")
	},
}

var startupCmd = &cobra.Command{
	Use:   "startup",
	Short: "Wake the cluster and restore its workloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow("startup")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("powerfold %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.AddCommand(shutdownCmd, startupCmd, versionCmd)
}

func runWorkflow(workflow string) error {
	// 1. Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.SetGlobal(logger)

	logger.Info("powerfold starting",
		"workflow", workflow, "version", Version, "commit", GitCommit)

	if err := cfg.EnsureStateDir(); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// 3. Create context cancelled on termination signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Wire collaborators
	notifier, err := notify.NewNotifier(cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("failed to build notifier: %w", err)
	}
	defer func() { _ = notifier.Close() }()

	deps := sequence.Deps{
		Config:   cfg,
		Gateway:  cluster.NewProxmoxClient(cfg.Cluster, logger),
		Prober:   probe.NewDialProber(cfg.Network.DialTimeout),
		Charge:   power.NewNUTClient(cfg.Power),
		Waker:    wake.NewBroadcastWaker(cfg.Wake.BroadcastAddr),
		Snapshot: state.NewSnapshotStore(cfg.SnapshotPath()),
		Lock:     state.NewFileLock(cfg.LockPath()),
		Notifier: notifier,
		Clock:    clockwork.NewRealClock(),
		Logger:   logger,
	}

	// 5. Run the selected sequencer
	switch workflow {
	case "shutdown":
		return sequence.NewShutdownSequencer(deps).Run(ctx)
	case "startup":
		return sequence.NewStartupSequencer(deps).Run(ctx)
	default:
		return fmt.Errorf("unknown workflow: %s", workflow)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "powerfold: %v\n", err)
		os.Exit(1)
	}
}
