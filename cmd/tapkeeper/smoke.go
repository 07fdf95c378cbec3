package main

import (
	"fmt"
	"time"

	"github.com/open-edge-platform/tapkeeper/internal/config"
	"github.com/open-edge-platform/tapkeeper/internal/formula"
	"github.com/open-edge-platform/tapkeeper/internal/smoke"
	"github.com/spf13/cobra"
)

var (
	smokeFormula string        = ""
	smokeBinDir  string        = ""
	smokeTimeout time.Duration = 0
)

// createSmokeCommand creates the smoke subcommand
func createSmokeCommand() *cobra.Command {
	smokeCmd := &cobra.Command{
		Use:   "smoke [ENTRYPOINT [ARGS...]]",
		Short: "Run the post-install smoke test of an entry point",
		Long: `Smoke runs an installed entry point, by default with --help, and fails
unless it exits 0. With --formula the entry point and arguments are taken
from the formula's test block.`,
		Example: `  tapkeeper smoke boosty-milker
  tapkeeper smoke --formula boosty-milker.rb --bin-dir /opt/homebrew/bin`,
		RunE: executeSmoke,
	}

	// arguments after the entry point belong to it, not to tapkeeper
	smokeCmd.Flags().SetInterspersed(false)
	smokeCmd.Flags().StringVar(&smokeFormula, "formula", "", "Formula whose smoke test to run")
	smokeCmd.Flags().StringVar(&smokeBinDir, "bin-dir", "", "Directory holding the installed executables (default PATH)")
	smokeCmd.Flags().DurationVar(&smokeTimeout, "timeout", 0, "Time limit for the entry point (default from config)")
	return smokeCmd
}

// executeSmoke handles the smoke command logic
func executeSmoke(cmd *cobra.Command, args []string) error {
	opts := smoke.Options{
		BinDir:  smokeBinDir,
		Timeout: config.Global().SmokeTimeout,
	}
	if smokeTimeout > 0 {
		opts.Timeout = smokeTimeout
	}

	var (
		res *smoke.Result
		err error
	)
	switch {
	case smokeFormula != "":
		if len(args) > 0 {
			return fmt.Errorf("an entry point cannot be combined with --formula")
		}
		d, perr := formula.ParseFile(smokeFormula)
		if perr != nil {
			return perr
		}
		res, err = smoke.RunDescriptor(cmd.Context(), d, opts)
	case len(args) > 0:
		opts.EntryPoint = args[0]
		opts.Args = args[1:]
		res, err = smoke.Run(cmd.Context(), opts)
	default:
		return fmt.Errorf("an entry point or --formula is required")
	}

	if res != nil {
		status := "passed"
		if !res.Passed() {
			status = "failed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (exit %d, %s)\n",
			res.Command, status, res.ExitCode, res.Duration.Round(time.Millisecond))
	}
	return err
}
