// Package manifest reads and writes tap manifests (tap.yml): the common
// fields of a package plus its ordered release history.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/open-edge-platform/tapkeeper/internal/config/validate"
	"github.com/open-edge-platform/tapkeeper/internal/formula"
	"github.com/open-edge-platform/tapkeeper/internal/version"
)

// DefaultFile is the manifest name looked up in a tap checkout.
const DefaultFile = "tap.yml"

// Release is one published version.
type Release struct {
	Version   string `yaml:"version" json:"version"`
	URL       string `yaml:"url" json:"url"`
	SHA256    string `yaml:"sha256" json:"sha256"`
	Signature string `yaml:"signature,omitempty" json:"signature,omitempty"`
}

// Manifest describes a package and its releases in publication order.
type Manifest struct {
	Name       string    `yaml:"name"`
	Class      string    `yaml:"class,omitempty"`
	Desc       string    `yaml:"desc"`
	Homepage   string    `yaml:"homepage"`
	License    string    `yaml:"license"`
	DependsOn  []string  `yaml:"depends_on,omitempty"`
	EntryPoint string    `yaml:"entry_point,omitempty"`
	Install    []string  `yaml:"install,omitempty"`
	Releases   []Release `yaml:"releases"`

	// path the manifest was loaded from, used in descriptor references
	path string
}

// Load reads, validates and decodes the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.path = path
	return m, nil
}

// Parse validates data against the tap manifest schema and decodes it.
func Parse(data []byte) (*Manifest, error) {
	if err := validate.ValidateTapManifestYAML(data); err != nil {
		return nil, err
	}
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}

// Marshal encodes m as YAML with two-space indentation.
func (m *Manifest) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save validates m and atomically writes it to path.
func (m *Manifest) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := validate.ValidateTapManifestYAML(data); err != nil {
		return fmt.Errorf("refusing to write invalid manifest: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	m.path = path
	return nil
}

// Append validates r and adds it at the end of the history.
func (m *Manifest) Append(r Release) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding release: %w", err)
	}
	if err := validate.ValidateReleaseJSON(data); err != nil {
		return fmt.Errorf("release %s: %w", r.Version, err)
	}
	m.Releases = append(m.Releases, r)
	return nil
}

// Descriptors expands every release into a descriptor, in manifest order.
func (m *Manifest) Descriptors() []*formula.Descriptor {
	out := make([]*formula.Descriptor, 0, len(m.Releases))
	for i := range m.Releases {
		out = append(out, m.descriptor(i))
	}
	return out
}

// Descriptor returns the descriptor for version v. Several releases with the
// same version are only accepted when they pin the same archive.
func (m *Manifest) Descriptor(v string) (*formula.Descriptor, error) {
	var found *formula.Descriptor
	for i, r := range m.Releases {
		if !version.Match(r.Version, v) {
			continue
		}
		d := m.descriptor(i)
		if found != nil && (found.URL != d.URL || found.SHA256 != d.SHA256) {
			return nil, fmt.Errorf("version %s is released more than once with different archives", v)
		}
		if found == nil {
			found = d
		}
	}
	if found == nil {
		return nil, fmt.Errorf("version %s not found in manifest", v)
	}
	return found, nil
}

func (m *Manifest) descriptor(i int) *formula.Descriptor {
	r := m.Releases[i]
	d := &formula.Descriptor{
		ClassName:    m.Class,
		Name:         m.Name,
		Description:  m.Desc,
		Homepage:     m.Homepage,
		URL:          r.URL,
		SHA256:       r.SHA256,
		License:      m.License,
		SignatureURL: r.Signature,
		Source:       fmt.Sprintf("%s#%d", m.sourceName(), i+1),
	}
	if d.ClassName == "" {
		d.ClassName = formula.ClassFromToken(m.Name)
	}
	// an explicit version stanza is only needed when the tag does not carry it
	if tag, err := d.Tag(); err != nil || !version.Match(version.FromTag(tag), r.Version) {
		d.Version = r.Version
	}
	for _, dep := range m.DependsOn {
		d.Dependencies = append(d.Dependencies, formula.ParseDependency(dep))
	}

	d.Install = m.Install
	if len(d.Install) == 0 {
		d.Install = []string{formula.VirtualenvDirective}
	}
	for _, line := range d.Install {
		if line == formula.VirtualenvDirective {
			d.Mixins = []string{formula.VirtualenvMixin}
			break
		}
	}

	entry := m.EntryPoint
	if entry == "" {
		entry = m.Name
	}
	d.Test = formula.SmokeTest{Command: formula.BinPrefix + entry, Args: []string{"--help"}}
	return d
}

func (m *Manifest) sourceName() string {
	if m.path == "" {
		return DefaultFile
	}
	return filepath.Base(m.path)
}

// FromDescriptors builds a manifest from descriptors of one package, taking
// the common fields from the first and one release from each.
func FromDescriptors(ds []*formula.Descriptor) (*Manifest, error) {
	if len(ds) == 0 {
		return nil, fmt.Errorf("no descriptors")
	}
	first := ds[0]
	m := &Manifest{
		Name:     first.Name,
		Desc:     first.Description,
		Homepage: first.Homepage,
		License:  first.License,
	}
	if first.ClassName != formula.ClassFromToken(first.Name) {
		m.Class = first.ClassName
	}
	for _, dep := range first.Dependencies {
		m.DependsOn = append(m.DependsOn, dep.String())
	}
	if ep := first.EntryPoint(); ep != first.Name {
		m.EntryPoint = ep
	}
	if !first.UsesVirtualenv() {
		m.Install = first.Install
	}

	for _, d := range ds {
		if d.Name != first.Name {
			return nil, fmt.Errorf("%s: package %q does not match %q", d.Ref(), d.Name, first.Name)
		}
		v := d.ReleaseVersion()
		if v == "" {
			return nil, fmt.Errorf("%s: cannot determine release version", d.Ref())
		}
		m.Releases = append(m.Releases, Release{Version: v, URL: d.URL, SHA256: d.SHA256, Signature: d.SignatureURL})
	}
	return m, nil
}
