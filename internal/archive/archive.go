// Package archive inspects source release tarballs without unpacking them.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pelletier/go-toml/v2"
	"github.com/ulikunitz/xz"
)

// Compression identifies the outer compression of a tarball.
type Compression string

const (
	None Compression = "none"
	Gzip Compression = "gzip"
	XZ   Compression = "xz"
)

// maxManifestSize bounds how much of pyproject.toml is read into memory.
const maxManifestSize = 1 << 20

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

	// ErrNoProject is returned when the archive has no top-level pyproject.toml.
	ErrNoProject = errors.New("no top-level pyproject.toml in archive")
)

// Project is the subset of pyproject.toml the audit cares about.
type Project struct {
	Name           string            `toml:"name"`
	Version        string            `toml:"version"`
	Description    string            `toml:"description"`
	RequiresPython string            `toml:"requires-python"`
	Scripts        map[string]string `toml:"scripts"`
	Dependencies   []string          `toml:"dependencies"`
}

type pyproject struct {
	Project Project `toml:"project"`
	Tool    struct {
		Poetry struct {
			Name    string            `toml:"name"`
			Version string            `toml:"version"`
			Scripts map[string]string `toml:"scripts"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// Info describes an inspected archive.
type Info struct {
	Compression Compression
	Root        string // top-level directory, e.g. "BoostyMilker-1.0.3"
	Entries     int
	Size        int64 // sum of regular file sizes
	Project     *Project
}

// ScriptNames returns the console script names in sorted order.
func (i *Info) ScriptNames() []string {
	if i.Project == nil {
		return nil
	}
	names := make([]string, 0, len(i.Project.Scripts))
	for n := range i.Project.Scripts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasScript reports whether the project exposes the named console script.
func (i *Info) HasScript(name string) bool {
	if i.Project == nil {
		return false
	}
	_, ok := i.Project.Scripts[name]
	return ok
}

// InspectFile opens path and inspects it.
func InspectFile(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	info, err := Inspect(f)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", path, err)
	}
	return info, nil
}

// Inspect walks the tarball read from r. The compression is sniffed from
// the leading magic bytes, so the file name does not matter. A missing
// pyproject.toml is not an error; Info.Project is left nil.
func Inspect(r io.Reader) (*Info, error) {
	br := bufio.NewReader(r)
	comp, err := sniff(br)
	if err != nil {
		return nil, err
	}

	var tr *tar.Reader
	switch comp {
	case Gzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer zr.Close()
		tr = tar.NewReader(zr)
	case XZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening xz stream: %w", err)
		}
		tr = tar.NewReader(xr)
	default:
		tr = tar.NewReader(br)
	}

	info := &Info{Compression: comp}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar entry: %w", err)
		}
		info.Entries++

		name := strings.TrimPrefix(path.Clean(hdr.Name), "./")
		if hdr.Typeflag == tar.TypeXGlobalHeader || name == "." || name == "pax_global_header" {
			info.Entries--
			continue
		}
		if info.Root == "" {
			info.Root = strings.SplitN(name, "/", 2)[0]
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		info.Size += hdr.Size

		if info.Project == nil && isTopLevelProject(name) {
			p, err := readProject(tr)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			info.Project = p
		}
	}
	if info.Entries == 0 {
		return nil, fmt.Errorf("archive is empty")
	}
	return info, nil
}

// ParseProject decodes pyproject.toml content. Poetry style projects are
// accepted when the [project] table is absent.
func ParseProject(data []byte) (*Project, error) {
	var doc pyproject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing pyproject.toml: %w", err)
	}
	p := doc.Project
	if p.Name == "" && p.Version == "" {
		p.Name = doc.Tool.Poetry.Name
		p.Version = doc.Tool.Poetry.Version
		p.Scripts = doc.Tool.Poetry.Scripts
	}
	return &p, nil
}

func readProject(r io.Reader) (*Project, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxManifestSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxManifestSize {
		return nil, fmt.Errorf("pyproject.toml exceeds %d bytes", maxManifestSize)
	}
	return ParseProject(data)
}

// isTopLevelProject matches "pyproject.toml" and "<root>/pyproject.toml".
func isTopLevelProject(name string) bool {
	if name == "pyproject.toml" {
		return true
	}
	dir, file := path.Split(name)
	return file == "pyproject.toml" && strings.Count(strings.TrimSuffix(dir, "/"), "/") == 0 && dir != ""
}

func sniff(br *bufio.Reader) (Compression, error) {
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", fmt.Errorf("reading archive header: %w", err)
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip, nil
	case bytes.HasPrefix(head, xzMagic):
		return XZ, nil
	case len(head) == 0:
		return "", fmt.Errorf("archive is empty")
	}
	return None, nil
}
