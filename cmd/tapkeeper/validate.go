package main

import (
	"fmt"

	"github.com/open-edge-platform/tapkeeper/internal/audit"
	"github.com/open-edge-platform/tapkeeper/internal/config"
	"github.com/open-edge-platform/tapkeeper/internal/config/manifest"
	"github.com/open-edge-platform/tapkeeper/internal/formula"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/spf13/cobra"
)

// createValidateCommand creates the validate subcommand
func createValidateCommand() *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate formula files and tap manifests without network access",
		Long: `Validate parses each formula (.rb) or tap manifest (.yml) and runs the
single descriptor checks on it. Files are checked independently; use audit
for checks across a release history.`,
		Args: cobra.MinimumNArgs(1),
		RunE: executeValidate,
	}
	return validateCmd
}

// executeValidate handles the validate command logic
func executeValidate(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	licenses := config.Global().Licenses
	out := cmd.OutOrStdout()

	failed := 0
	for _, path := range args {
		ds, err := validateFile(path)
		if err != nil {
			log.Errorf("Validation failed for %s: %v", path, err)
			fmt.Fprintf(out, "%s: invalid: %v\n", path, err)
			failed++
			continue
		}

		errs := 0
		for _, d := range ds {
			for _, f := range audit.CheckDescriptor(d, licenses) {
				fmt.Fprintf(out, "%s\n", f)
				if f.Severity == audit.Error {
					errs++
				}
			}
		}
		if errs > 0 {
			failed++
			continue
		}
		log.Debugf("%s: %d descriptor(s) valid", path, len(ds))
		fmt.Fprintf(out, "%s: ok\n", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed validation", failed, len(args))
	}
	return nil
}

func validateFile(path string) ([]*formula.Descriptor, error) {
	if isManifestPath(path) {
		m, err := manifest.Load(path)
		if err != nil {
			return nil, err
		}
		return m.Descriptors(), nil
	}
	d, err := formula.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return []*formula.Descriptor{d}, nil
}
