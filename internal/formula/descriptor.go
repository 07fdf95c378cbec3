// Package formula reads, writes and rewrites package release descriptors
// expressed as Homebrew formula files.
package formula

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/open-edge-platform/tapkeeper/internal/provider"
	"github.com/open-edge-platform/tapkeeper/internal/version"
)

const (
	// Placeholder marks a descriptor whose archive checksum is not known yet.
	Placeholder = "REPLACE_WITH_SHA256"

	VirtualenvMixin     = "Language::Python::Virtualenv"
	VirtualenvDirective = "virtualenv_install_with_resources"

	// BinPrefix is the interpolated install bin directory used by smoke tests.
	BinPrefix = "#{bin}/"
)

// Descriptor is one published release of a package.
type Descriptor struct {
	ClassName    string
	Name         string
	Description  string
	Homepage     string
	URL          string
	SHA256       string
	License      string
	Version      string // explicit version stanza, usually empty
	Dependencies []Dependency
	Resources    []string
	Mixins       []string
	Install      []string
	Test         SmokeTest

	// SignatureURL points at a detached OpenPGP signature of the archive.
	// It is carried by tap manifests only.
	SignatureURL string

	// Source is the file the descriptor was read from.
	Source string
}

// Dependency is a runtime dependency such as "python@3.11".
type Dependency struct {
	Name       string
	Constraint string
	Tags       []string // e.g. "build", "test"
}

// SmokeTest is the post-install check of a formula.
type SmokeTest struct {
	Command string
	Args    []string
	Raw     []string
}

// ParseDependency splits "python@3.11" into name and version constraint.
func ParseDependency(spec string) Dependency {
	spec = strings.TrimSpace(spec)
	if i := strings.LastIndex(spec, "@"); i > 0 {
		return Dependency{Name: spec[:i], Constraint: spec[i+1:]}
	}
	return Dependency{Name: spec}
}

func (d Dependency) String() string {
	if d.Constraint == "" {
		return d.Name
	}
	return d.Name + "@" + d.Constraint
}

// IsRuntime reports whether the dependency is needed at run time.
func (d Dependency) IsRuntime() bool {
	for _, t := range d.Tags {
		if t == "build" || t == "test" {
			return false
		}
	}
	return true
}

// Tag returns the release tag the archive URL is pinned to.
func (d *Descriptor) Tag() (string, error) {
	if d.URL == "" {
		return "", fmt.Errorf("descriptor has no url")
	}
	return provider.TagFromURL(d.URL)
}

// ReleaseVersion returns the explicit version or the one derived from the
// archive tag. It is empty when neither is available.
func (d *Descriptor) ReleaseVersion() string {
	if d.Version != "" {
		return d.Version
	}
	tag, err := d.Tag()
	if err != nil {
		return ""
	}
	return version.FromTag(tag)
}

// EntryPoint is the executable name the smoke test invokes.
func (d *Descriptor) EntryPoint() string {
	cmd := strings.TrimPrefix(d.Test.Command, BinPrefix)
	if cmd == "" {
		return d.Name
	}
	return cmd
}

// IsDraft reports whether the checksum is still a placeholder.
func (d *Descriptor) IsDraft() bool {
	return d.SHA256 == "" || d.SHA256 == Placeholder
}

// UsesVirtualenv reports whether the install procedure is the isolated
// virtualenv install.
func (d *Descriptor) UsesVirtualenv() bool {
	hasMixin := false
	for _, m := range d.Mixins {
		if m == VirtualenvMixin {
			hasMixin = true
		}
	}
	return hasMixin && len(d.Install) == 1 && d.Install[0] == VirtualenvDirective
}

// RuntimeDependencies filters out build and test only dependencies.
func (d *Descriptor) RuntimeDependencies() []Dependency {
	var out []Dependency
	for _, dep := range d.Dependencies {
		if dep.IsRuntime() {
			out = append(out, dep)
		}
	}
	return out
}

// Ref identifies the descriptor in reports, e.g. "boosty-milker.rb@1.0.3".
func (d *Descriptor) Ref() string {
	src := d.Source
	if src == "" {
		src = d.Name
	}
	if v := d.ReleaseVersion(); v != "" {
		return src + "@" + v
	}
	return src
}

// versionedAT marks a versioned formula class such as PythonAT311.
var versionedAT = regexp.MustCompile(`AT(\d)`)

// TokenFromClass turns a formula class name into its token:
// "BoostyMilker" becomes "boosty-milker", "PythonAT311" becomes "python@311".
func TokenFromClass(class string) string {
	class = versionedAT.ReplaceAllString(class, "@$1")
	var b strings.Builder
	runes := []rune(class)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '@' {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ClassFromToken is the inverse of TokenFromClass.
func ClassFromToken(token string) string {
	var b strings.Builder
	upper := true
	for _, r := range token {
		switch {
		case r == '-' || r == '_' || r == '.':
			upper = true
		case r == '@':
			b.WriteString("AT")
			upper = true
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
