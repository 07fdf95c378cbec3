package formula

import (
	"fmt"

	"github.com/open-edge-platform/tapkeeper/internal/provider"
)

// TagFromURL extracts the release tag from a source archive URL.
func TagFromURL(rawURL string) (string, error) {
	return provider.TagFromURL(rawURL)
}

// ArchiveURL builds the source tarball URL of tag for the project at
// homepage, e.g. <homepage>/archive/refs/tags/<tag>.tar.gz on GitHub.
func ArchiveURL(homepage, tag string) (string, error) {
	if tag == "" {
		return "", fmt.Errorf("empty tag")
	}
	p, u, err := provider.ForURL(homepage)
	if err != nil {
		return "", err
	}
	repo, err := p.Repository(u)
	if err != nil {
		return "", err
	}
	return p.ArchiveURL(repo, tag), nil
}
