package main

import (
	"encoding/json"
	"fmt"

	"github.com/open-edge-platform/tapkeeper/internal/config"
	"github.com/open-edge-platform/tapkeeper/internal/ledger"
	"github.com/open-edge-platform/tapkeeper/internal/provider"
	"github.com/open-edge-platform/tapkeeper/internal/release"
	"github.com/open-edge-platform/tapkeeper/internal/utils/network"
	"github.com/spf13/cobra"
)

var (
	releaseDryRun      bool   = false
	releaseNoGit       bool   = false
	releaseWaitAssets  bool   = false
	releaseNoLedger    bool   = false
	releaseTapDir      string = ""
	releaseProjectRoot string = ""
	releaseProvider    string = ""
	releaseJSON        bool   = false
)

// createReleaseCommand creates the release subcommand
func createReleaseCommand() *cobra.Command {
	releaseCmd := &cobra.Command{
		Use:   "release VERSION",
		Short: "Bump, tag and publish a new release into the tap",
		Long: `Release bumps the project version files, commits and tags the release,
computes the checksum of the published source archive, pins it in the
formula, audits the result and copies the formula into the tap checkout.
Any failing step aborts the release.`,
		Example: `  tapkeeper release 1.0.4
  tapkeeper release v1.0.4 --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: executeRelease,
	}

	releaseCmd.Flags().BoolVar(&releaseDryRun, "dry-run", false, "Only print what would be done")
	releaseCmd.Flags().BoolVar(&releaseNoGit, "no-git", false, "Skip git commit, tag and push")
	releaseCmd.Flags().BoolVar(&releaseWaitAssets, "wait-assets", false, "Wait for the release asset before computing the checksum")
	releaseCmd.Flags().BoolVar(&releaseNoLedger, "no-ledger", false, "Do not record the release in the ledger")
	releaseCmd.Flags().StringVar(&releaseTapDir, "tap-dir", "", "Tap checkout to publish into (default from config)")
	releaseCmd.Flags().StringVar(&releaseProjectRoot, "project-root", "", "Project to release (default from config)")
	releaseCmd.Flags().StringVar(&releaseProvider, "provider", "", fmt.Sprintf("Repository host %v (default github)", provider.Names()))
	releaseCmd.Flags().BoolVar(&releaseJSON, "json", false, "Print the result as JSON")
	return releaseCmd
}

// executeRelease handles the release command logic
func executeRelease(cmd *cobra.Command, args []string) error {
	cfg := config.Global()

	rc := cfg.Release
	if releaseTapDir != "" {
		rc.TapDir = releaseTapDir
	}
	if releaseProjectRoot != "" {
		rc.ProjectRoot = releaseProjectRoot
	}
	if releaseNoGit {
		rc.Git = false
	}
	// a relative tap checkout sits next to the project
	scoped := *cfg
	scoped.Release = rc
	rc.TapDir = config.NewConfigHelpers(&scoped).ProjectPath(rc.TapDir)

	opts := release.Options{
		Version:    args[0],
		Config:     rc,
		Client:     network.NewSecureHTTPClient(cfg.HTTPTimeout),
		DryRun:     releaseDryRun,
		WaitAssets: releaseWaitAssets,
		Licenses:   cfg.Licenses,
	}
	if releaseProvider != "" {
		p, ok := provider.Get(releaseProvider)
		if !ok {
			return fmt.Errorf("unknown provider %q, expected one of %v", releaseProvider, provider.Names())
		}
		opts.Provider = p
	}

	if !releaseNoLedger && !releaseDryRun {
		path, err := helpers().LedgerPath()
		if err != nil {
			return fmt.Errorf("resolving ledger path: %w", err)
		}
		l, err := ledger.Open(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer l.Close()
		opts.Ledger = l
	}

	res, err := release.Run(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("release failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if releaseJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "version:   %s (%s)\n", res.Version, res.Tag)
	fmt.Fprintf(out, "archive:   %s\n", res.ArchiveURL)
	if res.SHA256 != "" {
		fmt.Fprintf(out, "sha256:    %s\n", res.SHA256)
	}
	fmt.Fprintf(out, "formula:   %s\n", res.FormulaPath)
	for _, f := range res.ChangedFiles {
		fmt.Fprintf(out, "bumped:    %s\n", f)
	}
	if res.ManifestPath != "" {
		fmt.Fprintf(out, "manifest:  %s\n", res.ManifestPath)
	}
	if releaseDryRun {
		fmt.Fprintln(out, "dry run:   nothing was changed")
	} else if res.Published {
		fmt.Fprintf(out, "published: %s\n", rc.TapDir)
	}
	return nil
}
