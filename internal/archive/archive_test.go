package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

const testPyproject = `[build-system]
requires = ["setuptools>=61"]

[project]
name = "boosty-milker"
version = "1.0.3"
description = "CLI tool to download photos from Boosty"
requires-python = ">=3.11"
dependencies = ["requests>=2.31", "click"]

[project.scripts]
boosty-milker = "boosty_milker.cli:main"
`

type entry struct {
	name string
	body string
	dir  bool
}

func buildTar(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeXGlobalHeader, Name: "pax_global_header", PAXRecords: map[string]string{"comment": "abc"}}); err != nil {
		t.Fatalf("writing global header: %v", err)
	}
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr = &tar.Header{Name: e.name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing header %s: %v", e.name, err)
		}
		if !e.dir {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("writing %s: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func xzBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	if _, err := xw.Write(data); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

func sourceEntries() []entry {
	return []entry{
		{name: "BoostyMilker-1.0.3/", dir: true},
		{name: "BoostyMilker-1.0.3/README.md", body: "# BoostyMilker\n"},
		{name: "BoostyMilker-1.0.3/pyproject.toml", body: testPyproject},
		{name: "BoostyMilker-1.0.3/vendor/other/pyproject.toml", body: "[project]\nname = \"other\"\nversion = \"9.9.9\"\n"},
	}
}

func TestInspectCompressions(t *testing.T) {
	raw := buildTar(t, sourceEntries())
	tests := []struct {
		name string
		data []byte
		want Compression
	}{
		{"plain", raw, None},
		{"gzip", gzipBytes(t, raw), Gzip},
		{"xz", xzBytes(t, raw), XZ},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Inspect(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("Inspect failed: %v", err)
			}
			if info.Compression != tt.want {
				t.Errorf("Compression = %s, want %s", info.Compression, tt.want)
			}
			if info.Root != "BoostyMilker-1.0.3" {
				t.Errorf("Root = %q", info.Root)
			}
			if info.Entries != 4 {
				t.Errorf("Entries = %d, want 4", info.Entries)
			}
			if info.Project == nil {
				t.Fatal("expected project metadata")
			}
			if info.Project.Version != "1.0.3" || info.Project.Name != "boosty-milker" {
				t.Errorf("Project = %+v (nested pyproject must be ignored)", info.Project)
			}
			if info.Project.RequiresPython != ">=3.11" {
				t.Errorf("RequiresPython = %q", info.Project.RequiresPython)
			}
			if diff := cmp.Diff([]string{"boosty-milker"}, info.ScriptNames()); diff != "" {
				t.Errorf("ScriptNames mismatch:\n%s", diff)
			}
			if !info.HasScript("boosty-milker") || info.HasScript("boosty") {
				t.Error("HasScript returned unexpected result")
			}
		})
	}
}

func TestInspectWithoutProject(t *testing.T) {
	raw := buildTar(t, []entry{{name: "tool-1.0/main.go", body: "package main\n"}})
	info, err := Inspect(bytes.NewReader(gzipBytes(t, raw)))
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Project != nil {
		t.Errorf("expected no project, got %+v", info.Project)
	}
	if info.ScriptNames() != nil || info.HasScript("x") {
		t.Error("script helpers should be empty without a project")
	}
	if info.Size != int64(len("package main\n")) {
		t.Errorf("Size = %d", info.Size)
	}
}

func TestInspectErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty input", nil},
		{"corrupt gzip", append([]byte{0x1f, 0x8b}, []byte("not really gzip")...)},
		{"not a tar", []byte(strings.Repeat("x", 1024))},
		{"bad toml", gzipBytes(t, buildTar(t, []entry{{name: "p-1/pyproject.toml", body: "[project\nname="}}))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Inspect(bytes.NewReader(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestInspectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.0.3.tar.gz")
	if err := os.WriteFile(path, gzipBytes(t, buildTar(t, sourceEntries())), 0644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
	info, err := InspectFile(path)
	if err != nil {
		t.Fatalf("InspectFile failed: %v", err)
	}
	if info.Project == nil || info.Project.Version != "1.0.3" {
		t.Errorf("unexpected project: %+v", info.Project)
	}

	_, err = InspectFile(filepath.Join(t.TempDir(), "missing.tar.gz"))
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestParseProjectPoetry(t *testing.T) {
	p, err := ParseProject([]byte(`[tool.poetry]
name = "boosty-milker"
version = "1.0.1"

[tool.poetry.scripts]
boosty-milker = "boosty_milker.cli:main"
`))
	if err != nil {
		t.Fatalf("ParseProject failed: %v", err)
	}
	want := &Project{Name: "boosty-milker", Version: "1.0.1", Scripts: map[string]string{"boosty-milker": "boosty_milker.cli:main"}}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("ParseProject mismatch (-want +got):\n%s", diff)
	}
}

func TestIsTopLevelProject(t *testing.T) {
	tests := map[string]bool{
		"pyproject.toml":           true,
		"root/pyproject.toml":      true,
		"root/sub/pyproject.toml":  false,
		"root/pyproject.toml.orig": false,
		"root/not-pyproject.toml":  false,
	}
	for name, want := range tests {
		if got := isTopLevelProject(name); got != want {
			t.Errorf("isTopLevelProject(%q) = %v, want %v", name, got, want)
		}
	}
}
