package main

import (
	"errors"
	"fmt"

	"github.com/open-edge-platform/tapkeeper/internal/audit"
	"github.com/open-edge-platform/tapkeeper/internal/config"
	"github.com/open-edge-platform/tapkeeper/internal/ledger"
	"github.com/open-edge-platform/tapkeeper/internal/signing"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/open-edge-platform/tapkeeper/internal/utils/network"
	"github.com/open-edge-platform/tapkeeper/internal/watch"
	"github.com/spf13/cobra"
)

var (
	auditRemote      bool   = false
	auditInspect     bool   = false
	auditManifest    string = ""
	auditFormat      string = "text"
	auditMinSeverity string = "info"
	auditRecord      bool   = false
	auditKeyring     string = ""
	auditWorkers     int    = 0
	auditNoProgress  bool   = false
	auditWatch       bool   = false
)

// errAuditFailed is returned when the report has error findings.
var errAuditFailed = errors.New("audit found errors")

// createAuditCommand creates the audit subcommand
func createAuditCommand() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit [FILE...]",
		Short: "Audit a release history of formula descriptors",
		Long: `Audit checks every descriptor and the history they form, in argument
order. With --remote the pinned archives are downloaded and their checksums
verified; --inspect additionally reads pyproject.toml from each archive.
The command fails when any error finding is reported.`,
		Example: `  tapkeeper audit Formula/boosty-milker-0*.rb
  tapkeeper audit --manifest tap.yml --remote --inspect --format json`,
		RunE: executeAudit,
	}

	auditCmd.Flags().BoolVar(&auditRemote, "remote", false, "Download archives and verify checksums")
	auditCmd.Flags().BoolVar(&auditInspect, "inspect", false, "Inspect downloaded archives (implies --remote)")
	auditCmd.Flags().StringVar(&auditManifest, "manifest", "", "Tap manifest to audit before any FILE arguments")
	auditCmd.Flags().StringVar(&auditFormat, "format", "text", "Report format (text, json)")
	auditCmd.Flags().StringVar(&auditMinSeverity, "min-severity", "info", "Lowest severity shown in text output (info, warning, error)")
	auditCmd.Flags().BoolVar(&auditRecord, "ledger", false, "Record published checksums in the release ledger and check earlier sightings")
	auditCmd.Flags().StringVar(&auditKeyring, "keyring", "", "OpenPGP keyring for release signatures (default from config)")
	auditCmd.Flags().IntVar(&auditWorkers, "workers", 0, "Concurrent downloads (default from config)")
	auditCmd.Flags().BoolVar(&auditNoProgress, "no-progress", false, "Disable the download progress bar")
	auditCmd.Flags().BoolVar(&auditWatch, "watch", false, "Audit again whenever one of the files changes")
	return auditCmd
}

// executeAudit handles the audit command logic
func executeAudit(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	cfg := config.Global()

	if auditFormat != "text" && auditFormat != "json" {
		return fmt.Errorf("unsupported format %q: use text or json", auditFormat)
	}
	minSeverity, err := audit.ParseSeverity(auditMinSeverity)
	if err != nil {
		return err
	}

	paths := args
	if auditManifest != "" {
		paths = append([]string{auditManifest}, args...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no descriptors given")
	}

	opts := audit.Options{
		Licenses: cfg.Licenses,
		Remote:   auditRemote || auditInspect,
		Inspect:  auditInspect,
		Workers:  helpers().Workers(),
		Progress: !auditNoProgress && auditFormat == "text" && logger.Level() != "debug",
	}
	if auditWorkers > 0 {
		opts.Workers = auditWorkers
	}
	if opts.Remote {
		opts.Client = network.NewSecureHTTPClient(cfg.HTTPTimeout)
	}
	if auditInspect {
		cacheDir, err := helpers().CreateCacheDir()
		if err != nil {
			return fmt.Errorf("preparing cache directory: %w", err)
		}
		opts.CacheDir = cacheDir
	}

	keyringPath := auditKeyring
	if keyringPath == "" {
		keyringPath = cfg.Signing.Keyring
	}
	if keyringPath != "" {
		kr, err := signing.LoadKeyring(keyringPath)
		if err != nil {
			return err
		}
		log.Debugf("Loaded %d key(s) from %s", kr.Len(), keyringPath)
		opts.Keyring = kr
	}

	if auditRecord {
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

	auditor := audit.New(opts)
	if !auditWatch {
		err := runAudit(cmd, auditor, paths, minSeverity)
		if opts.Remote {
			writeFetchReport()
		}
		return err
	}

	w, err := watch.New(paths, 0)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	for {
		if err := runAudit(cmd, auditor, paths, minSeverity); err != nil {
			log.Errorf("%v", err)
		}
		if opts.Remote {
			writeFetchReport()
		}
		log.Infof("Watching %d file(s) for changes", len(paths))
		select {
		case <-cmd.Context().Done():
			return nil
		case file := <-w.Changes:
			log.Infof("%s changed", file)
		}
	}
}

// runAudit loads the descriptors afresh, audits them and writes the report.
func runAudit(cmd *cobra.Command, auditor *audit.Auditor, paths []string, minSeverity audit.Severity) error {
	ds, err := loadDescriptors(paths)
	if err != nil {
		return err
	}

	report, err := auditor.Run(cmd.Context(), ds)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if auditFormat == "json" {
		err = report.WriteJSON(out)
	} else {
		err = report.WriteText(out, minSeverity)
	}
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if report.HasErrors() {
		return errAuditFailed
	}
	return nil
}

// writeFetchReport appends the archives fetched by this run to the fetch log
// in the work directory.
func writeFetchReport() {
	log := logger.Logger()
	if logger.FetchReport.Len() == 0 {
		return
	}
	workDir, err := helpers().CreateWorkDir()
	if err != nil {
		log.Warnf("Cannot write fetch log: %v", err)
		return
	}
	path, err := logger.FetchReport.WriteToFile(workDir)
	if err != nil {
		log.Warnf("Cannot write fetch log: %v", err)
		return
	}
	log.Infof("Fetch log appended to %s", path)
}
