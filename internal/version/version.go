// Package version compares release tags and dependency constraints.
package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver"
)

// Parse parses a release version or tag. A leading "v" is accepted and
// missing minor or patch components are treated as zero.
func Parse(s string) (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// FromTag strips the conventional "v" prefix from a tag.
func FromTag(tag string) string {
	if len(tag) > 1 && (tag[0] == 'v' || tag[0] == 'V') && tag[1] >= '0' && tag[1] <= '9' {
		return tag[1:]
	}
	return tag
}

// ToTag renders a version as a "v" prefixed tag.
func ToTag(v string) string {
	return "v" + FromTag(v)
}

// Compare returns -1, 0 or 1 when a is older, equal or newer than b.
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// Match reports whether two version strings denote the same release,
// tolerating a "v" prefix and omitted zero components.
func Match(a, b string) bool {
	c, err := Compare(a, b)
	if err != nil {
		return FromTag(a) == FromTag(b)
	}
	return c == 0
}

// Regression marks a version that is older than the one before it.
type Regression struct {
	Index    int
	Previous string
	Current  string
}

func (r Regression) String() string {
	return fmt.Sprintf("%s follows newer %s", r.Current, r.Previous)
}

// CheckProgression walks versions in publication order and reports every
// entry that is older than its predecessor. Equal neighbours are allowed.
// Unparseable versions are reported through the error slice and skipped.
func CheckProgression(versions []string) ([]Regression, []error) {
	var (
		regs []Regression
		errs []error
		prev *semver.Version
		raw  string
	)
	for i, s := range versions {
		v, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		if prev != nil && v.LessThan(prev) {
			regs = append(regs, Regression{Index: i, Previous: raw, Current: s})
		}
		prev, raw = v, s
	}
	return regs, errs
}

// Satisfies reports whether version v satisfies the constraint expression,
// e.g. Satisfies("3.11", ">=3.8").
func Satisfies(v string, constraint string) (bool, error) {
	sv, err := Parse(v)
	if err != nil {
		return false, err
	}
	c, err := semver.NewConstraint(normalizeConstraint(constraint))
	if err != nil {
		return false, fmt.Errorf("invalid constraint %q: %w", constraint, err)
	}
	return c.Check(sv), nil
}

// normalizeConstraint rewrites PEP 440 style operators that the semver
// constraint grammar does not know. "~=3.10" means ">=3.10, ==3.*" which is a
// caret range, "~=3.10.2" pins the minor version which is a tilde range.
func normalizeConstraint(c string) string {
	parts := strings.Split(c, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		switch {
		case strings.HasPrefix(p, "~="):
			operand := strings.TrimSpace(p[2:])
			if strings.Count(operand, ".") >= 2 {
				p = "~" + operand
			} else {
				p = "^" + operand
			}
		case strings.HasPrefix(p, "=="):
			p = "=" + strings.TrimSpace(p[2:])
		}
		parts[i] = p
	}
	return strings.Join(parts, ",")
}
