package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/open-edge-platform/tapkeeper/internal/archive"
	"github.com/open-edge-platform/tapkeeper/internal/utils/digest"
	"github.com/spf13/cobra"
)

var inspectJSON bool = false

type inspectOutput struct {
	Archive        string            `json:"archive"`
	SHA256         string            `json:"sha256"`
	Compression    string            `json:"compression"`
	Root           string            `json:"root"`
	Entries        int               `json:"entries"`
	Size           int64             `json:"size"`
	Name           string            `json:"name,omitempty"`
	Version        string            `json:"version,omitempty"`
	RequiresPython string            `json:"requires_python,omitempty"`
	Scripts        map[string]string `json:"scripts,omitempty"`
}

// createInspectCommand creates the inspect subcommand
func createInspectCommand() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect ARCHIVE",
		Short: "Show checksum and project metadata of a source archive",
		Args:  cobra.ExactArgs(1),
		RunE:  executeInspect,
	}

	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print the result as JSON")
	return inspectCmd
}

// executeInspect handles the inspect command logic
func executeInspect(cmd *cobra.Command, args []string) error {
	path := args[0]

	sum, err := digest.SHA256File(path)
	if err != nil {
		return err
	}
	info, err := archive.InspectFile(path)
	if err != nil {
		return err
	}

	res := inspectOutput{
		Archive:     path,
		SHA256:      sum,
		Compression: string(info.Compression),
		Root:        info.Root,
		Entries:     info.Entries,
		Size:        info.Size,
	}
	if p := info.Project; p != nil {
		res.Name = p.Name
		res.Version = p.Version
		res.RequiresPython = p.RequiresPython
		res.Scripts = p.Scripts
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "archive:     %s\n", res.Archive)
	fmt.Fprintf(out, "sha256:      %s\n", res.SHA256)
	fmt.Fprintf(out, "compression: %s\n", res.Compression)
	fmt.Fprintf(out, "root:        %s\n", res.Root)
	fmt.Fprintf(out, "entries:     %d (%d bytes)\n", res.Entries, res.Size)
	if info.Project == nil {
		fmt.Fprintln(out, "project:     none")
		return nil
	}
	fmt.Fprintf(out, "project:     %s %s\n", res.Name, res.Version)
	if res.RequiresPython != "" {
		fmt.Fprintf(out, "python:      %s\n", res.RequiresPython)
	}
	fmt.Fprintf(out, "scripts:     %s\n", strings.Join(info.ScriptNames(), ", "))
	return nil
}
