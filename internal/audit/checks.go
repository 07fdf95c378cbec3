package audit

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/open-edge-platform/tapkeeper/internal/formula"
	"github.com/open-edge-platform/tapkeeper/internal/utils/digest"
	"github.com/open-edge-platform/tapkeeper/internal/utils/general/slice"
	"github.com/open-edge-platform/tapkeeper/internal/version"
)

// licenseName matches "MIT" literals and :public_domain symbols inside a
// license expression. Operators such as any_of: are followed by a space.
var licenseName = regexp.MustCompile(`"([^"]+)"|:([a-z_]+)`)

type findings struct {
	index int
	ref   string
	out   []Finding
}

func (fs *findings) add(sev Severity, code, format string, args ...interface{}) {
	fs.out = append(fs.out, Finding{
		Severity: sev,
		Code:     code,
		Ref:      fs.ref,
		Message:  fmt.Sprintf(format, args...),
		index:    fs.index,
	})
}

// CheckDescriptor runs the static checks on a single descriptor. An empty
// licenses list accepts any license.
func CheckDescriptor(d *formula.Descriptor, licenses []string) []Finding {
	return checkDescriptor(0, d, licenses)
}

func checkDescriptor(index int, d *formula.Descriptor, licenses []string) []Finding {
	fs := &findings{index: index, ref: d.Ref()}

	if strings.TrimSpace(d.Description) == "" {
		fs.add(Error, CodeEmptyDescription, "description is empty")
	}
	if !isWebURL(d.Homepage) {
		fs.add(Error, CodeInvalidHomepage, "homepage %q is not an absolute http(s) URL", d.Homepage)
	}
	checkLicense(fs, d.License, licenses)
	checkChecksum(fs, d)
	checkSource(fs, d)
	checkDependencies(fs, d)

	if !d.UsesVirtualenv() {
		fs.add(Error, CodeInstallDirective, "install must be exactly %q with %s included", formula.VirtualenvDirective, formula.VirtualenvMixin)
	}
	checkSmokeTest(fs, d)
	return fs.out
}

func checkLicense(fs *findings, license string, known []string) {
	if license == "" {
		fs.add(Error, CodeUnknownLicense, "license is missing")
		return
	}
	if len(known) == 0 {
		return
	}
	names := []string{license}
	if m := licenseName.FindAllStringSubmatch(license, -1); strings.ContainsAny(license, ":[") && m != nil {
		names = names[:0]
		for _, sub := range m {
			if sub[1] != "" {
				names = append(names, sub[1])
			} else {
				names = append(names, sub[2])
			}
		}
	}
	for _, n := range names {
		if !slice.ContainsFold(known, n) {
			fs.add(Warning, CodeUnknownLicense, "license %q is not in the recognized set", n)
		}
	}
}

func checkChecksum(fs *findings, d *formula.Descriptor) {
	switch {
	case d.IsDraft():
		fs.add(Warning, CodeDraft, "checksum is the placeholder %s; descriptor is an unpublished draft", formula.Placeholder)
	case !digest.IsSHA256Hex(d.SHA256):
		fs.add(Error, CodeInvalidChecksum, "sha256 %q is not 64 lowercase hex characters", d.SHA256)
	}
}

func checkSource(fs *findings, d *formula.Descriptor) {
	if !isWebURL(d.URL) {
		fs.add(Error, CodeInvalidURL, "url %q is not an absolute http(s) URL", d.URL)
		return
	}
	tag, err := d.Tag()
	if err != nil {
		fs.add(Error, CodeInvalidURL, "cannot determine release tag: %v", err)
		return
	}
	v := d.ReleaseVersion()
	if _, err := version.Parse(v); err != nil {
		fs.add(Warning, CodeInvalidVersion, "release version %q is not a semantic version", v)
	}
	if d.Version != "" && !version.Match(version.FromTag(tag), d.Version) {
		fs.add(Error, CodeTagMismatch, "url tag %s does not match version %s", tag, d.Version)
	}
}

func checkDependencies(fs *findings, d *formula.Descriptor) {
	if len(d.RuntimeDependencies()) == 0 {
		fs.add(Error, CodeMissingDependency, "no runtime dependency declared")
	}
	for _, dep := range d.Dependencies {
		if dep.Name == "" {
			fs.add(Error, CodeInvalidDependency, "dependency %q has an empty name", dep.String())
			continue
		}
		if dep.Constraint != "" {
			if _, err := version.Parse(dep.Constraint); err != nil {
				fs.add(Error, CodeInvalidDependency, "dependency %s: constraint %q is not a version", dep.Name, dep.Constraint)
			}
		}
	}
}

func checkSmokeTest(fs *findings, d *formula.Descriptor) {
	if d.Test.Command == "" {
		fs.add(Error, CodeSmokeTest, "no smoke test command found")
		return
	}
	if !strings.HasPrefix(d.Test.Command, formula.BinPrefix) {
		fs.add(Error, CodeSmokeTest, "smoke test runs %q instead of an installed entry point", d.Test.Command)
		return
	}
	if len(d.Test.Args) != 1 || d.Test.Args[0] != "--help" {
		fs.add(Error, CodeSmokeTest, "smoke test must invoke %s with --help, got %q", d.EntryPoint(), strings.Join(d.Test.Args, " "))
	}
}

// CheckSeries runs the cross-release checks on descriptors in publication
// order.
func CheckSeries(ds []*formula.Descriptor) []Finding {
	var out []Finding
	if len(ds) == 0 {
		return nil
	}
	first := ds[0]

	for i, d := range ds[1:] {
		fs := &findings{index: i + 1, ref: d.Ref()}
		if d.Name != first.Name {
			fs.add(Error, CodeFieldDrift, "name %q differs from %q in %s", d.Name, first.Name, first.Ref())
		}
		if d.Homepage != first.Homepage {
			fs.add(Warning, CodeFieldDrift, "homepage %q differs from %q in %s", d.Homepage, first.Homepage, first.Ref())
		}
		if d.License != first.License {
			fs.add(Warning, CodeFieldDrift, "license %q differs from %q in %s", d.License, first.License, first.Ref())
		}
		cur, base := depList(d), depList(first)
		if added, removed := slice.Difference(cur, base), slice.Difference(base, cur); len(added)+len(removed) > 0 {
			fs.add(Warning, CodeFieldDrift, "dependencies differ from %s: added [%s], removed [%s]",
				first.Ref(), strings.Join(added, ", "), strings.Join(removed, ", "))
		}
		out = append(out, fs.out...)
	}

	versions := make([]string, len(ds))
	for i, d := range ds {
		versions[i] = d.ReleaseVersion()
	}
	// unparseable versions are reported by CheckDescriptor
	regressions, _ := version.CheckProgression(versions)
	for _, r := range regressions {
		fs := &findings{index: r.Index, ref: ds[r.Index].Ref()}
		fs.add(Error, CodeVersionRegression, "%s is published after newer %s (%s)", r.Current, r.Previous, ds[r.Index-1].Ref())
		out = append(out, fs.out...)
	}

	firstByTag := make(map[string]int)
	for i, d := range ds {
		tag, err := d.Tag()
		if err != nil {
			continue
		}
		key := d.Name + "@" + tag
		j, seen := firstByTag[key]
		if !seen || ds[j].IsDraft() {
			firstByTag[key] = i
			continue
		}
		if d.IsDraft() {
			continue
		}
		prev := ds[j]
		fs := &findings{index: i, ref: d.Ref()}
		if digest.Equal(prev.SHA256, d.SHA256) {
			fs.add(Info, CodeDuplicate, "tag %s is already published with the same checksum in %s", tag, prev.Ref())
		} else {
			fs.add(Error, CodeChecksumConflict, "tag %s pins sha256 %s but %s pins %s for the same tag",
				tag, digest.Short(d.SHA256), prev.Ref(), digest.Short(prev.SHA256))
		}
		out = append(out, fs.out...)
	}
	return out
}

func depList(d *formula.Descriptor) []string {
	parts := make([]string, len(d.Dependencies))
	for i, dep := range d.Dependencies {
		parts[i] = dep.String()
	}
	return parts
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
