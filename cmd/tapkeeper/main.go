package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-edge-platform/tapkeeper/internal/config"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Build metadata, set with -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global flags shared by every subcommand.
var (
	configFile string = ""
	logLevel   string = ""
	verbose    bool   = false
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd := createRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tapkeeper",
		Short: "Maintain and audit a package tap of formula release descriptors",
		Long: `tapkeeper parses formula release descriptors, checks their invariants,
verifies the pinned source archives and drives the release flow that
publishes a new descriptor into the tap.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to the tapkeeper config file (default ./tapkeeper.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(createValidateCommand())
	rootCmd.AddCommand(createAuditCommand())
	rootCmd.AddCommand(createRenderCommand())
	rootCmd.AddCommand(createManifestCommand())
	rootCmd.AddCommand(createInspectCommand())
	rootCmd.AddCommand(createSmokeCommand())
	rootCmd.AddCommand(createReleaseCommand())
	rootCmd.AddCommand(createLedgerCommand())
	rootCmd.AddCommand(createSignCommand())
	rootCmd.AddCommand(createVerifySignatureCommand())
	rootCmd.AddCommand(createKeygenCommand())
	rootCmd.AddCommand(createVersionCommand())

	attachLoggingHooks(rootCmd)
	return rootCmd
}

// attachLoggingHooks installs the config and logging setup on every
// subcommand that does not bring its own pre-run hook.
func attachLoggingHooks(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		if cmd.PersistentPreRunE == nil && cmd.PersistentPreRun == nil {
			cmd.PersistentPreRunE = initConfigAndLogging
		}
	}
}

func initConfigAndLogging(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.SetGlobal(cfg)

	h := config.NewConfigHelpers(cfg)
	level := resolveRequestedLogLevel(cmd)
	if level == "" {
		level = h.LogLevel()
	}
	if err := logger.Init(level, cfg.Logging.File); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	if h.IsDebugMode() {
		logger.Logger().Debugf("tapkeeper %s (%s), config %q", Version, Commit, configFile)
	}
	return nil
}

// resolveRequestedLogLevel returns the level asked for on the command line:
// --log-level wins, then --verbose, otherwise empty so the config decides.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd == nil {
		return ""
	}
	if f := lookupFlag(cmd.Flags(), "verbose"); f != nil && f.Changed && f.Value.String() == "true" {
		return "debug"
	}
	return ""
}

func lookupFlag(fs *pflag.FlagSet, name string) *pflag.Flag {
	if fs == nil {
		return nil
	}
	return fs.Lookup(name)
}

// helpers returns config helpers for the active configuration.
func helpers() *config.ConfigHelpers {
	return config.NewConfigHelpers(config.Global())
}
