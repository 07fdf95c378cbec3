package audit

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/open-edge-platform/tapkeeper/internal/formula"
)

var testLicenses = []string{"MIT", "Apache-2.0"}

func loadSeries(t *testing.T) []*formula.Descriptor {
	t.Helper()
	paths, err := filepath.Glob("../formula/testdata/boosty-milker-*.rb")
	if err != nil || len(paths) == 0 {
		t.Fatalf("no formula fixtures: %v", err)
	}
	var ds []*formula.Descriptor
	for _, p := range paths {
		d, err := formula.ParseFile(p)
		if err != nil {
			t.Fatalf("ParseFile(%s) failed: %v", p, err)
		}
		ds = append(ds, d)
	}
	return ds
}

func codes(fs []Finding) []string {
	out := []string{}
	for _, f := range fs {
		out = append(out, f.Code)
	}
	return out
}

func TestCheckDescriptorClean(t *testing.T) {
	ds := loadSeries(t)
	for _, d := range ds[1:] {
		if fs := CheckDescriptor(d, testLicenses); len(fs) != 0 {
			t.Errorf("%s: unexpected findings %v", d.Ref(), fs)
		}
	}
}

func TestCheckDescriptorDraft(t *testing.T) {
	fs := CheckDescriptor(loadSeries(t)[0], testLicenses)
	if len(fs) != 1 || fs[0].Code != CodeDraft || fs[0].Severity != Warning {
		t.Errorf("expected a single draft warning, got %v", fs)
	}
}

func TestCheckDescriptorViolations(t *testing.T) {
	base := func() *formula.Descriptor {
		d := *loadSeries(t)[3]
		return &d
	}
	tests := []struct {
		name   string
		mutate func(d *formula.Descriptor)
		want   []string
		sev    Severity
	}{
		{"empty description", func(d *formula.Descriptor) { d.Description = " " }, []string{CodeEmptyDescription}, Error},
		{"relative homepage", func(d *formula.Descriptor) { d.Homepage = "github.com/F3T1W" }, []string{CodeInvalidHomepage}, Error},
		{"unknown license", func(d *formula.Descriptor) { d.License = "WTFPL" }, []string{CodeUnknownLicense}, Warning},
		{"license expression", func(d *formula.Descriptor) { d.License = `any_of: ["MIT", "GPL-3.0-only"]` }, []string{CodeUnknownLicense}, Warning},
		{"missing license", func(d *formula.Descriptor) { d.License = "" }, []string{CodeUnknownLicense}, Error},
		{"short checksum", func(d *formula.Descriptor) { d.SHA256 = "abc123" }, []string{CodeInvalidChecksum}, Error},
		{"uppercase checksum", func(d *formula.Descriptor) {
			d.SHA256 = "2EA00627CA978112CA1BBDCAFAC231B39A23DC4DA786EFF8147C4E72B98A3203"
		}, []string{CodeInvalidChecksum}, Error},
		{"no dependency", func(d *formula.Descriptor) { d.Dependencies = nil }, []string{CodeMissingDependency}, Error},
		{"bad constraint", func(d *formula.Descriptor) {
			d.Dependencies = []formula.Dependency{{Name: "python", Constraint: "three"}}
		}, []string{CodeInvalidDependency}, Error},
		{"build only dependency", func(d *formula.Descriptor) {
			d.Dependencies = []formula.Dependency{{Name: "rust", Tags: []string{"build"}}}
		}, []string{CodeMissingDependency}, Error},
		{"custom install", func(d *formula.Descriptor) { d.Install = []string{`system "make"`} }, []string{CodeInstallDirective}, Error},
		{"no mixin", func(d *formula.Descriptor) { d.Mixins = nil }, []string{CodeInstallDirective}, Error},
		{"smoke without help", func(d *formula.Descriptor) {
			d.Test = formula.SmokeTest{Command: "#{bin}/boosty-milker", Args: []string{"--version"}}
		}, []string{CodeSmokeTest}, Error},
		{"smoke outside bin", func(d *formula.Descriptor) {
			d.Test = formula.SmokeTest{Command: "true", Args: []string{"--help"}}
		}, []string{CodeSmokeTest}, Error},
		{"no smoke", func(d *formula.Descriptor) { d.Test = formula.SmokeTest{} }, []string{CodeSmokeTest}, Error},
		{"tag mismatch", func(d *formula.Descriptor) { d.Version = "1.0.4" }, []string{CodeTagMismatch}, Error},
		{"ftp url", func(d *formula.Descriptor) { d.URL = "ftp://example.com/v1.0.3.tar.gz" }, []string{CodeInvalidURL}, Error},
		{"untagged url", func(d *formula.Descriptor) {
			d.URL = "https://github.com/F3T1W/BoostyMilker/releases/latest"
		}, []string{CodeInvalidURL}, Error},
		{"non semver tag", func(d *formula.Descriptor) {
			d.URL = "https://github.com/F3T1W/BoostyMilker/archive/refs/tags/nightly.tar.gz"
		}, []string{CodeInvalidVersion}, Warning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(d)
			fs := CheckDescriptor(d, testLicenses)
			if diff := cmp.Diff(tt.want, codes(fs)); diff != "" {
				t.Fatalf("codes mismatch (-want +got):\n%s\nfindings: %v", diff, fs)
			}
			if fs[0].Severity != tt.sev {
				t.Errorf("severity = %s, want %s", fs[0].Severity, tt.sev)
			}
		})
	}
}

func TestCheckDescriptorAnyLicense(t *testing.T) {
	d := *loadSeries(t)[3]
	d.License = "WTFPL"
	if fs := CheckDescriptor(&d, nil); len(fs) != 0 {
		t.Errorf("empty license set should accept anything, got %v", fs)
	}
}

func TestCheckSeriesOriginalHistory(t *testing.T) {
	fs := CheckSeries(loadSeries(t))
	if diff := cmp.Diff([]string{CodeChecksumConflict}, codes(fs)); diff != "" {
		t.Fatalf("codes mismatch (-want +got):\n%s", diff)
	}
	if fs[0].Severity != Error || fs[0].Ref != "boosty-milker-05.rb@1.0.3" {
		t.Errorf("unexpected conflict finding: %v", fs[0])
	}
}

func withTag(t *testing.T, tag, sha string) *formula.Descriptor {
	t.Helper()
	d := *loadSeries(t)[3]
	d.URL = "https://github.com/F3T1W/BoostyMilker/archive/refs/tags/" + tag + ".tar.gz"
	d.SHA256 = sha
	d.Source = fmt.Sprintf("%s.rb", tag)
	return &d
}

func TestCheckSeries(t *testing.T) {
	const (
		shaA = "2ea00627ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b98a3203"
		shaB = "ee3fed853e23e8160039594a33894f6564e1b1348bbd7a0088d42c4acb75cfc3"
	)

	t.Run("regression", func(t *testing.T) {
		fs := CheckSeries([]*formula.Descriptor{withTag(t, "v1.0.3", shaA), withTag(t, "v1.0.1", shaB)})
		if diff := cmp.Diff([]string{CodeVersionRegression}, codes(fs)); diff != "" {
			t.Errorf("codes mismatch:\n%s", diff)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		fs := CheckSeries([]*formula.Descriptor{withTag(t, "v1.0.3", shaA), withTag(t, "v1.0.3", shaA)})
		if diff := cmp.Diff([]string{CodeDuplicate}, codes(fs)); diff != "" {
			t.Errorf("codes mismatch:\n%s", diff)
		}
		if fs[0].Severity != Info {
			t.Errorf("duplicate severity = %s", fs[0].Severity)
		}
	})

	t.Run("draft then published", func(t *testing.T) {
		fs := CheckSeries([]*formula.Descriptor{withTag(t, "v1.0.3", formula.Placeholder), withTag(t, "v1.0.3", shaA)})
		if len(fs) != 0 {
			t.Errorf("publishing a draft is not a conflict: %v", fs)
		}
	})

	t.Run("drift", func(t *testing.T) {
		a, b := withTag(t, "v1.0.1", shaA), withTag(t, "v1.0.3", shaB)
		b.Homepage = "https://github.com/someone/fork"
		b.License = "Apache-2.0"
		b.Dependencies = []formula.Dependency{{Name: "python", Constraint: "3.12"}}
		b.Name = "boosty-milker-fork"
		fs := CheckSeries([]*formula.Descriptor{a, b})
		want := []string{CodeFieldDrift, CodeFieldDrift, CodeFieldDrift, CodeFieldDrift}
		if diff := cmp.Diff(want, codes(fs)); diff != "" {
			t.Errorf("codes mismatch:\n%s", diff)
		}
		if fs[0].Severity != Error {
			t.Errorf("name drift should be an error, got %s", fs[0].Severity)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if fs := CheckSeries(nil); fs != nil {
			t.Errorf("expected no findings, got %v", fs)
		}
	})
}
