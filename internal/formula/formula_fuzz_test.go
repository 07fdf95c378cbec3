package formula

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// FuzzParse feeds arbitrary formula text to the parser
func FuzzParse(f *testing.F) {
	if src, err := os.ReadFile("testdata/boosty-milker-04.rb"); err == nil {
		f.Add(string(src))
	}
	f.Add("")
	f.Add("class A < Formula\nend\n")
	f.Add("class A < Formula\n  desc \"unterminated\nend\n")
	f.Add("class A < Formula\n  def install\n    if x\n  end\nend\n")
	f.Add("class A < Formula\n  depends_on \"x\" => [:build, :test]\nend\n")

	f.Fuzz(func(t *testing.T, src string) {
		d, err := Parse(strings.NewReader(src))
		if err != nil {
			return
		}
		// Anything that parses must render and parse again
		out, err := RenderBytes(d)
		if err != nil {
			t.Fatalf("Render failed for parsed descriptor: %v", err)
		}
		if _, err := Parse(bytes.NewReader(out)); err != nil {
			t.Fatalf("re-parse of rendered output failed: %v\n%s", err, out)
		}
	})
}

// FuzzRewrite checks Rewrite never corrupts the stanzas it does not touch
func FuzzRewrite(f *testing.F) {
	f.Add("https://example.com/a-v1.tar.gz", "abc")
	f.Add("", "")
	f.Add("with \"quotes\"", "#{interp}")

	base := "class A < Formula\n  url \"https://example.com/a-v0.tar.gz\"\n  sha256 \"old\"\n  license \"MIT\"\nend\n"
	f.Fuzz(func(t *testing.T, url, sum string) {
		if strings.ContainsAny(url+sum, "\n\r") {
			return
		}
		out, err := Rewrite([]byte(base), Update{URL: url, SHA256: sum})
		if err != nil {
			t.Fatalf("Rewrite failed: %v", err)
		}
		if !bytes.Contains(out, []byte(`license "MIT"`)) {
			t.Fatalf("license stanza lost:\n%s", out)
		}
	})
}
