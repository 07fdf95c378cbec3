package formula

import (
	"fmt"
	"os"
	"regexp"

	"github.com/google/renameio/v2"
)

// Update carries the stanza values Rewrite replaces. Empty fields are left alone.
type Update struct {
	URL     string
	SHA256  string
	Version string // only applied when the formula has an explicit version stanza
}

var (
	urlStanza     = regexp.MustCompile(`(?m)^([ \t]*)url[ \t]+"[^"\n]*"`)
	sha256Stanza  = regexp.MustCompile(`(?m)^([ \t]*)sha256[ \t]+"[^"\n]*"`)
	versionStanza = regexp.MustCompile(`(?m)^([ \t]*)version[ \t]+"[^"\n]*"`)
)

// Rewrite replaces the top-level url and sha256 stanzas of formula text src,
// leaving every other byte untouched. Resource blocks follow the top-level
// stanzas in a formula, so only the first occurrence of each is replaced.
func Rewrite(src []byte, u Update) ([]byte, error) {
	out := src
	var err error
	if u.URL != "" {
		if out, err = replaceFirst(out, urlStanza, "url", u.URL); err != nil {
			return nil, err
		}
	}
	if u.SHA256 != "" {
		if out, err = replaceFirst(out, sha256Stanza, "sha256", u.SHA256); err != nil {
			return nil, err
		}
	}
	if u.Version != "" && versionStanza.Match(out) {
		if out, err = replaceFirst(out, versionStanza, "version", u.Version); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RewriteFile applies Rewrite to the formula at path and atomically replaces it.
func RewriteFile(path string, u Update) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading formula: %w", err)
	}
	out, err := Rewrite(src, u)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing formula %s: %w", path, err)
	}
	return nil
}

func replaceFirst(src []byte, re *regexp.Regexp, keyword, value string) ([]byte, error) {
	loc := re.FindSubmatchIndex(src)
	if loc == nil {
		return nil, fmt.Errorf("no %s stanza found", keyword)
	}
	indent := src[loc[2]:loc[3]]
	repl := fmt.Sprintf("%s%s %s", indent, keyword, rubyQuote(value))

	out := make([]byte, 0, len(src)+len(repl))
	out = append(out, src[:loc[0]]...)
	out = append(out, repl...)
	out = append(out, src[loc[1]:]...)
	return out, nil
}
