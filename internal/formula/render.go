package formula

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/google/renameio/v2"
)

// Render writes d as formula text in the canonical stanza order. Resource
// blocks are not reproduced; use Rewrite to update a formula that has them.
func Render(d *Descriptor, w io.Writer) error {
	class := d.ClassName
	if class == "" {
		if d.Name == "" {
			return fmt.Errorf("descriptor has neither class name nor name")
		}
		class = ClassFromToken(d.Name)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "class %s < Formula\n", class)
	for _, m := range d.Mixins {
		fmt.Fprintf(&b, "  include %s\n", m)
	}
	if len(d.Mixins) > 0 {
		b.WriteString("\n")
	}

	stanza := func(keyword, value string) {
		if value != "" {
			fmt.Fprintf(&b, "  %s %s\n", keyword, rubyQuote(value))
		}
	}
	stanza("desc", d.Description)
	stanza("homepage", d.Homepage)
	stanza("url", d.URL)
	stanza("version", d.Version)
	stanza("sha256", d.SHA256)
	if d.License != "" {
		if isLicenseExpr(d.License) {
			fmt.Fprintf(&b, "  license %s\n", d.License)
		} else {
			stanza("license", d.License)
		}
	}

	if len(d.Dependencies) > 0 {
		b.WriteString("\n")
		for _, dep := range d.Dependencies {
			fmt.Fprintf(&b, "  depends_on %s\n", renderDependency(dep))
		}
	}

	b.WriteString("\n  def install\n")
	for _, line := range d.Install {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	b.WriteString("  end\n")

	switch {
	case d.Test.Command != "":
		fmt.Fprintf(&b, "\n  test do\n    system %s\n  end\n", joinArgs(d.Test.Command, d.Test.Args))
	case len(d.Test.Raw) > 0:
		b.WriteString("\n  test do\n")
		for _, line := range d.Test.Raw {
			fmt.Fprintf(&b, "    %s\n", line)
		}
		b.WriteString("  end\n")
	}
	b.WriteString("end\n")

	if _, err := w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("writing formula %s: %w", class, err)
	}
	return nil
}

// RenderBytes renders d into memory.
func RenderBytes(d *Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(d, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile renders d and atomically replaces path with the result.
func WriteFile(path string, d *Descriptor) error {
	data, err := RenderBytes(d)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing formula %s: %w", path, err)
	}
	return nil
}

// rubyQuote produces a double quoted Ruby literal without interpolation.
func rubyQuote(s string) string {
	return `"` + escape(s, true) + `"`
}

// rubyQuoteInterp keeps #{...} interpolation intact, as in "#{bin}/tool".
func rubyQuoteInterp(s string) string {
	return `"` + escape(s, false) + `"`
}

func escape(s string, escapeInterp bool) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)
	s = r.Replace(s)
	if escapeInterp {
		s = strings.ReplaceAll(s, "#{", `\#{`)
	}
	return s
}

func joinArgs(cmd string, args []string) string {
	parts := []string{rubyQuoteInterp(cmd)}
	for _, a := range args {
		parts = append(parts, rubyQuoteInterp(a))
	}
	return strings.Join(parts, ", ")
}

// isLicenseExpr reports whether license is a symbol or any_of/all_of
// expression that must be written unquoted.
func isLicenseExpr(license string) bool {
	if strings.ContainsAny(license, "\n") || opensBlock(license) {
		return false
	}
	if !strings.HasPrefix(license, ":") && !strings.HasPrefix(license, "any_of:") && !strings.HasPrefix(license, "all_of:") {
		return false
	}
	_, err := stringLiterals(license)
	return err == nil
}

func renderDependency(d Dependency) string {
	s := rubyQuote(d.String())
	switch len(d.Tags) {
	case 0:
		return s
	case 1:
		return s + " => :" + d.Tags[0]
	default:
		tags := make([]string, len(d.Tags))
		for i, t := range d.Tags {
			tags[i] = ":" + t
		}
		return s + " => [" + strings.Join(tags, ", ") + "]"
	}
}
