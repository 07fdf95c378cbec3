// Package release drives a new version from the project checkout to the tap:
// bump version files, tag, pin the formula to the new archive and publish.
package release

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/tapkeeper/internal/audit"
	"github.com/open-edge-platform/tapkeeper/internal/config"
	"github.com/open-edge-platform/tapkeeper/internal/config/manifest"
	"github.com/open-edge-platform/tapkeeper/internal/formula"
	"github.com/open-edge-platform/tapkeeper/internal/ledger"
	"github.com/open-edge-platform/tapkeeper/internal/provider"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/open-edge-platform/tapkeeper/internal/version"
)

// Options control one release run.
type Options struct {
	Version string
	Config  config.ReleaseConfig

	Client *http.Client
	// Provider hosts the repository, GitHub when nil.
	Provider provider.Provider

	DryRun     bool
	WaitAssets bool
	Licenses   []string
	Ledger     *ledger.Ledger
}

// Result summarizes a release.
type Result struct {
	Version      string   `json:"version"`
	Tag          string   `json:"tag"`
	ArchiveURL   string   `json:"archive_url"`
	AssetURL     string   `json:"asset_url,omitempty"`
	SHA256       string   `json:"sha256,omitempty"`
	FormulaPath  string   `json:"formula"`
	ManifestPath string   `json:"manifest,omitempty"` // set when the tap manifest gained the release
	ChangedFiles []string `json:"changed_files,omitempty"`
	Published    bool     `json:"published"`
}

// Run executes the release flow. Any failing step aborts the run; nothing
// is published when the updated formula has audit errors.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := logger.Logger()
	cfg := opts.Config

	newVersion := version.FromTag(strings.TrimSpace(opts.Version))
	if _, err := version.Parse(newVersion); err != nil {
		return nil, err
	}
	p := opts.Provider
	if p == nil {
		gh, ok := provider.Get("github")
		if !ok {
			return nil, fmt.Errorf("github provider is not registered")
		}
		p = gh
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	tag := version.ToTag(newVersion)
	res := &Result{
		Version:     newVersion,
		Tag:         tag,
		ArchiveURL:  p.ArchiveURL(cfg.Repository, tag),
		FormulaPath: filepath.Join(cfg.ProjectRoot, cfg.Formula),
	}
	if cfg.AssetName != "" {
		res.AssetURL = p.AssetURL(cfg.Repository, tag, cfg.AssetName)
	}
	log.Infof("=== Starting release process for %s ===", tag)

	current, err := CurrentVersion(cfg.ProjectRoot, cfg.VersionFiles)
	if err != nil {
		return nil, err
	}
	if c, err := version.Compare(newVersion, current); err == nil && c < 0 {
		return nil, fmt.Errorf("version %s is older than the current %s", newVersion, current)
	} else if err == nil && c == 0 {
		log.Warnf("Version %s is already the current version", newVersion)
	}

	var git *Git
	if cfg.Git {
		git = &Git{Dir: cfg.ProjectRoot, Remote: cfg.GitRemote, Branch: cfg.GitBranch}
	}

	if opts.DryRun {
		log.Infof("Dry run: would bump %s -> %s, tag %s and pin %s to %s", current, newVersion, tag, res.FormulaPath, res.ArchiveURL)
		return res, nil
	}
	if git != nil && !commandExists("git") {
		return nil, fmt.Errorf("git is not installed; disable release.git to release without it")
	}

	if res.ChangedFiles, err = BumpVersion(cfg.ProjectRoot, cfg.VersionFiles, newVersion); err != nil {
		return res, err
	}
	if git != nil {
		log.Infof("Committing and tagging...")
		if err := git.CommitAndPush("Bump version to " + newVersion); err != nil {
			return res, err
		}
		if err := git.TagAndPush(tag); err != nil {
			return res, err
		}
	}

	if opts.WaitAssets && res.AssetURL != "" {
		if err := WaitForAsset(ctx, client, res.AssetURL, cfg.PollAttempts, cfg.PollInterval); err != nil {
			return res, err
		}
	}

	if res.SHA256, err = ComputeChecksum(ctx, client, res.ArchiveURL); err != nil {
		return res, fmt.Errorf("computing archive checksum: %w", err)
	}
	if err := UpdateFormula(res.FormulaPath, res.ArchiveURL, res.SHA256, newVersion); err != nil {
		return res, err
	}
	if err := checkFormula(ctx, res, opts); err != nil {
		return res, err
	}

	var extra []string
	if cfg.Manifest != "" && isDir(cfg.TapDir) {
		path := filepath.Join(cfg.TapDir, cfg.Manifest)
		changed, err := AppendRelease(path, manifest.Release{Version: newVersion, URL: res.ArchiveURL, SHA256: res.SHA256})
		if err != nil {
			return res, err
		}
		if changed {
			res.ManifestPath = path
			extra = append(extra, cfg.Manifest)
		}
	}

	var tapGit *Git
	if git != nil {
		tapGit = &Git{Remote: cfg.GitRemote, Branch: cfg.GitBranch}
	}
	if res.Published, err = PublishToTap(res.FormulaPath, cfg.TapDir, tapGit, newVersion, extra...); err != nil {
		return res, err
	}
	log.Infof("=== Release %s done ===", tag)
	return res, nil
}

// checkFormula audits the rewritten formula and records it in the ledger.
func checkFormula(ctx context.Context, res *Result, opts Options) error {
	d, err := formula.ParseFile(res.FormulaPath)
	if err != nil {
		return fmt.Errorf("re-reading updated formula: %w", err)
	}
	report, err := audit.New(audit.Options{Licenses: opts.Licenses, Ledger: opts.Ledger}).Run(ctx, []*formula.Descriptor{d})
	if err != nil {
		return err
	}
	if report.HasErrors() {
		var msgs []string
		for _, f := range report.Filter(audit.Error) {
			msgs = append(msgs, f.String())
		}
		return fmt.Errorf("updated formula fails audit:\n%s", strings.Join(msgs, "\n"))
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
