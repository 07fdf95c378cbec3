package main

import (
	"fmt"

	"github.com/open-edge-platform/tapkeeper/internal/config/manifest"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/spf13/cobra"
)

var manifestOutput string = ""

// createManifestCommand creates the manifest subcommand
func createManifestCommand() *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest FILE...",
		Short: "Build a tap manifest from formula files",
		Long: `Manifest collects formula files, in argument order, into a tap manifest.
Common fields are taken from the first formula and every formula adds one
release. The manifest is validated before it is written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: executeManifest,
	}

	manifestCmd.Flags().StringVarP(&manifestOutput, "output", "o", "", "Write the manifest to this file instead of standard output")
	return manifestCmd
}

// executeManifest handles the manifest command logic
func executeManifest(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	ds, err := loadDescriptors(args)
	if err != nil {
		return err
	}
	m, err := manifest.FromDescriptors(ds)
	if err != nil {
		return fmt.Errorf("building manifest: %w", err)
	}

	if manifestOutput != "" {
		if err := m.Save(manifestOutput); err != nil {
			return err
		}
		log.Infof("Wrote %d release(s) to %s", len(m.Releases), manifestOutput)
		return nil
	}

	data, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
