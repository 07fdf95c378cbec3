package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/open-edge-platform/tapkeeper/internal/ledger"
	"github.com/open-edge-platform/tapkeeper/internal/utils/digest"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/spf13/cobra"
)

var ledgerPath string = ""

// createLedgerCommand creates the ledger subcommand and its children
func createLedgerCommand() *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and update the release ledger",
		Long: `The ledger remembers the checksum each release tag had when it was first
seen, so that an archive re-published under an existing tag is detected.`,
	}
	ledgerCmd.PersistentFlags().StringVar(&ledgerPath, "db", "", "Ledger database (default from config)")

	listCmd := &cobra.Command{
		Use:   "list [NAME]",
		Short: "List recorded releases in order of first sighting",
		Args:  cobra.MaximumNArgs(1),
		RunE:  executeLedgerList,
	}
	recordCmd := &cobra.Command{
		Use:   "record FILE...",
		Short: "Record the releases of formula files or tap manifests",
		Args:  cobra.MinimumNArgs(1),
		RunE:  executeLedgerRecord,
	}
	ledgerCmd.AddCommand(listCmd, recordCmd)
	return ledgerCmd
}

func openLedger(cmd *cobra.Command) (*ledger.Ledger, error) {
	path := ledgerPath
	if path == "" {
		var err error
		if path, err = helpers().LedgerPath(); err != nil {
			return nil, fmt.Errorf("resolving ledger path: %w", err)
		}
	}
	logger.Logger().Debugf("Using ledger %s", path)
	return ledger.Open(cmd.Context(), path)
}

// executeLedgerList handles the ledger list command logic
func executeLedgerList(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer l.Close()

	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	entries, err := l.List(cmd.Context(), name)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTAG\tSHA256\tFIRST SEEN")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Tag, digest.Short(e.SHA256), e.FirstSeen.Format(time.RFC3339))
	}
	return tw.Flush()
}

// executeLedgerRecord handles the ledger record command logic
func executeLedgerRecord(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	ds, err := loadDescriptors(args)
	if err != nil {
		return err
	}
	l, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer l.Close()

	out := cmd.OutOrStdout()
	conflicts := 0
	for _, d := range ds {
		if d.IsDraft() {
			log.Infof("Skipping draft %s", d.Ref())
			continue
		}
		tag, err := d.Tag()
		if err != nil {
			return fmt.Errorf("%s: %w", d.Ref(), err)
		}
		added, err := l.Record(cmd.Context(), ledger.Entry{
			Name:    d.Name,
			Version: d.ReleaseVersion(),
			Tag:     tag,
			URL:     d.URL,
			SHA256:  d.SHA256,
		})
		var conflict *ledger.ConflictError
		switch {
		case errors.As(err, &conflict):
			fmt.Fprintf(out, "%s: conflict: %v\n", d.Ref(), conflict)
			conflicts++
		case err != nil:
			return fmt.Errorf("%s: %w", d.Ref(), err)
		case added:
			fmt.Fprintf(out, "%s: recorded %s\n", d.Ref(), tag)
		default:
			fmt.Fprintf(out, "%s: already recorded\n", d.Ref())
		}
	}
	if conflicts > 0 {
		return fmt.Errorf("%d release(s) conflict with the ledger", conflicts)
	}
	return nil
}
