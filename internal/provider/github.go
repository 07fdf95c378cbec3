package provider

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// GitHub lays out archives as /<owner>/<repo>/archive/refs/tags/<tag>.tar.gz
// and release assets as /<owner>/<repo>/releases/download/<tag>/<asset>.
type GitHub struct {
	Host string
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) Matches(u *url.URL) bool {
	return strings.EqualFold(u.Hostname(), g.Host) ||
		strings.EqualFold(u.Hostname(), "codeload."+g.Host)
}

func (g *GitHub) Repository(u *url.URL) (string, error) {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("no owner/repo in %s", u)
	}
	return parts[0] + "/" + strings.TrimSuffix(parts[1], ".git"), nil
}

var githubArchive = regexp.MustCompile(`^/[^/]+/[^/]+/(?:archive/(?:refs/tags/)?|tar\.gz/(?:refs/tags/)?|legacy\.tar\.gz/(?:refs/tags/)?)(.+?)(?:\.tar\.gz|\.tgz|\.tar\.xz|\.zip)?$`)

func (g *GitHub) TagFromArchiveURL(u *url.URL) (string, error) {
	m := githubArchive.FindStringSubmatch(u.Path)
	if m == nil || m[1] == "" {
		return "", fmt.Errorf("%s is not a tag archive URL", u)
	}
	return m[1], nil
}

func (g *GitHub) ArchiveURL(repository, tag string) string {
	return fmt.Sprintf("https://%s/%s/archive/refs/tags/%s.tar.gz", g.Host, repository, tag)
}

func (g *GitHub) AssetURL(repository, tag, asset string) string {
	return fmt.Sprintf("https://%s/%s/releases/download/%s/%s", g.Host, repository, tag, asset)
}

func (g *GitHub) HomepageURL(repository string) string {
	return fmt.Sprintf("https://%s/%s", g.Host, repository)
}

// GenericName is the name of the fallback provider.
const GenericName = "generic"

// Generic handles any host whose archive file name embeds the tag, e.g.
// https://example.com/downloads/tool-v1.2.0.tar.gz.
type Generic struct{}

func (g *Generic) Name() string { return GenericName }

func (g *Generic) Matches(u *url.URL) bool { return true }

func (g *Generic) Repository(u *url.URL) (string, error) {
	p := strings.Trim(u.Path, "/")
	if p == "" {
		return "", fmt.Errorf("no repository path in %s", u)
	}
	return u.Host + "/" + p, nil
}

var genericTag = regexp.MustCompile(`(v?\d+(?:\.\d+)*(?:[-+][0-9A-Za-z.\-]+)?)(?:\.tar\.gz|\.tgz|\.tar\.xz|\.zip)$`)

func (g *Generic) TagFromArchiveURL(u *url.URL) (string, error) {
	m := genericTag.FindStringSubmatch(path.Base(u.Path))
	if m == nil {
		return "", fmt.Errorf("no version tag in %s", u)
	}
	return m[1], nil
}

func (g *Generic) ArchiveURL(repository, tag string) string {
	return fmt.Sprintf("https://%s/archive/refs/tags/%s.tar.gz", repository, tag)
}

func (g *Generic) AssetURL(repository, tag, asset string) string {
	return fmt.Sprintf("https://%s/%s/%s", repository, tag, asset)
}

func (g *Generic) HomepageURL(repository string) string {
	return "https://" + repository
}
