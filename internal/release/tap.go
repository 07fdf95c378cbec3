package release

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/open-edge-platform/tapkeeper/internal/config/manifest"
	"github.com/open-edge-platform/tapkeeper/internal/formula"
	"github.com/open-edge-platform/tapkeeper/internal/utils/digest"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/open-edge-platform/tapkeeper/internal/utils/shell"
	"github.com/open-edge-platform/tapkeeper/internal/version"
)

// git runs through these; tests replace them.
var (
	execCmd       = shell.ExecCmd
	commandExists = shell.IsCommandExist
)

// Git runs the git commands of a release in one checkout.
type Git struct {
	Dir    string
	Remote string
	Branch string
}

func (g Git) run(args string) error {
	if _, err := execCmd("git "+args, g.Dir, nil); err != nil {
		return fmt.Errorf("git %s in %s: %w", args, g.Dir, err)
	}
	return nil
}

// CommitAndPush stages paths (all changes when empty), commits with msg and
// pushes the branch.
func (g Git) CommitAndPush(msg string, paths ...string) error {
	add := "add ."
	if len(paths) > 0 {
		add = "add"
		for _, p := range paths {
			add += " " + shell.Quote(p)
		}
	}
	if err := g.run(add); err != nil {
		return err
	}
	if err := g.run("commit -m " + shell.Quote(msg)); err != nil {
		return err
	}
	return g.run("push " + shell.Quote(g.Remote) + " " + shell.Quote(g.Branch))
}

// TagAndPush creates tag and pushes it.
func (g Git) TagAndPush(tag string) error {
	if err := g.run("tag " + shell.Quote(tag)); err != nil {
		return err
	}
	return g.run("push " + shell.Quote(g.Remote) + " " + shell.Quote(tag))
}

// UpdateFormula pins the formula at path to url and sha.
func UpdateFormula(path, url, sha, newVersion string) error {
	if err := formula.RewriteFile(path, formula.Update{URL: url, SHA256: sha, Version: newVersion}); err != nil {
		return err
	}
	logger.Logger().Infof("Updated %s with SHA: %s", path, sha)
	return nil
}

// PublishToTap copies the formula into the tap checkout and, when git is
// set, commits and pushes it together with the extra tap relative files. A
// missing tap directory is not an error; it reports false.
func PublishToTap(formulaPath, tapDir string, git *Git, newVersion string, extra ...string) (bool, error) {
	log := logger.Logger()

	if !isDir(tapDir) {
		log.Warnf("Tap directory %s not found, skipping tap push", tapDir)
		return false, nil
	}

	data, err := os.ReadFile(formulaPath)
	if err != nil {
		return false, fmt.Errorf("reading formula: %w", err)
	}
	name := filepath.Base(formulaPath)
	dest := filepath.Join(tapDir, name)
	if err := renameio.WriteFile(dest, data, 0644); err != nil {
		return false, fmt.Errorf("copying formula to tap: %w", err)
	}
	log.Infof("Copied %s to %s", formulaPath, dest)

	if git != nil {
		g := *git
		g.Dir = tapDir
		if err := g.CommitAndPush("Update to "+newVersion, append([]string{name}, extra...)...); err != nil {
			return false, err
		}
		log.Infof("Homebrew tap updated")
	}
	return true, nil
}

// AppendRelease records r at the end of the tap manifest at path and reports
// whether the manifest changed. A version that is already recorded with the
// same archive is left alone; with another archive it is an error.
func AppendRelease(path string, r manifest.Release) (bool, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return false, err
	}
	for _, prev := range m.Releases {
		if !version.Match(prev.Version, r.Version) {
			continue
		}
		if prev.URL == r.URL && digest.Equal(prev.SHA256, r.SHA256) {
			return false, nil
		}
		return false, fmt.Errorf("%s already records %s with another archive", path, r.Version)
	}
	if err := m.Append(r); err != nil {
		return false, err
	}
	if err := m.Save(path); err != nil {
		return false, err
	}
	logger.Logger().Infof("Recorded %s in %s", r.Version, path)
	return true, nil
}
