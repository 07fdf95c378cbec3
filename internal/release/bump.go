package release

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/renameio/v2"

	"github.com/open-edge-platform/tapkeeper/internal/archive"
	"github.com/open-edge-platform/tapkeeper/internal/config"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
)

var (
	pyprojectVersion = regexp.MustCompile(`(?m)^(\s*version\s*=\s*)"[^"\n]*"`)
	nuspecVersion    = regexp.MustCompile(`<version>[^<]*</version>`)
	controlVersion   = regexp.MustCompile(`(?m)^Version:[ \t]*\S+`)
)

// CurrentVersion reads project.version from pyproject.toml under root.
func CurrentVersion(root string, files config.VersionFiles) (string, error) {
	path := filepath.Join(root, files.PyProject)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading project version: %w", err)
	}
	p, err := archive.ParseProject(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if p.Version == "" {
		return "", fmt.Errorf("%s: no project version", path)
	}
	return p.Version, nil
}

// BumpVersion writes newVersion into every version file under root and
// returns the files it changed. pyproject.toml is required; the Chocolatey
// and Debian files are skipped with a warning when absent.
func BumpVersion(root string, files config.VersionFiles, newVersion string) ([]string, error) {
	log := logger.Logger()

	targets := []struct {
		rel      string
		re       *regexp.Regexp
		repl     string
		required bool
	}{
		{files.PyProject, pyprojectVersion, `${1}"` + newVersion + `"`, true},
		{files.Nuspec, nuspecVersion, "<version>" + newVersion + "</version>", false},
		{files.DebianControl, controlVersion, "Version: " + newVersion, false},
	}

	var changed []string
	for _, t := range targets {
		if t.rel == "" {
			continue
		}
		path := filepath.Join(root, t.rel)
		ok, err := rewriteFirst(path, t.re, t.repl)
		switch {
		case errors.Is(err, os.ErrNotExist) && !t.required:
			log.Warnf("Version file %s not found, skipping", path)
			continue
		case err != nil:
			return changed, err
		case !ok:
			if t.required {
				return changed, fmt.Errorf("%s: no version field found", path)
			}
			log.Warnf("No version field in %s, skipping", path)
			continue
		}
		log.Infof("Updated version in %s to %s", path, newVersion)
		changed = append(changed, path)
	}
	return changed, nil
}

// rewriteFirst replaces the first match of re in path, keeping file mode.
// It reports whether a match was found.
func rewriteFirst(path string, re *regexp.Regexp, repl string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	loc := re.FindSubmatchIndex(data)
	if loc == nil {
		return false, nil
	}
	var out []byte
	out = append(out, data[:loc[0]]...)
	out = re.Expand(out, []byte(repl), data, loc)
	out = append(out, data[loc[1]:]...)

	if err := renameio.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}
