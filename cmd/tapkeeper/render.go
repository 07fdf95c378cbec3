package main

import (
	"fmt"

	"github.com/open-edge-platform/tapkeeper/internal/config/manifest"
	"github.com/open-edge-platform/tapkeeper/internal/formula"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/spf13/cobra"
)

var (
	renderManifest string = manifest.DefaultFile
	renderVersion  string = ""
	renderOutput   string = ""
)

// createRenderCommand creates the render subcommand
func createRenderCommand() *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render the formula for one release of a tap manifest",
		Long: `Render writes the canonical formula text of a release recorded in the tap
manifest. Without --version the last release is rendered; without --output
the formula goes to standard output.`,
		Args: cobra.NoArgs,
		RunE: executeRender,
	}

	renderCmd.Flags().StringVar(&renderManifest, "manifest", manifest.DefaultFile, "Tap manifest to read")
	renderCmd.Flags().StringVar(&renderVersion, "version", "", "Release version to render (default latest)")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "Write the formula to this file")
	return renderCmd
}

// executeRender handles the render command logic
func executeRender(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	m, err := manifest.Load(renderManifest)
	if err != nil {
		return err
	}
	if len(m.Releases) == 0 {
		return fmt.Errorf("%s has no releases", renderManifest)
	}
	v := renderVersion
	if v == "" {
		v = m.Releases[len(m.Releases)-1].Version
	}
	d, err := m.Descriptor(v)
	if err != nil {
		return err
	}

	if renderOutput == "" {
		return formula.Render(d, cmd.OutOrStdout())
	}
	if err := formula.WriteFile(renderOutput, d); err != nil {
		return err
	}
	log.Infof("Wrote %s %s to %s", d.Name, v, renderOutput)
	return nil
}
