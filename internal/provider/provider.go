package provider

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
)

// Provider knows the URL layout of one source hosting service.
type Provider interface {
	// Name is a unique ID, e.g. "github".
	Name() string

	// Matches reports whether rawURL is served by this provider.
	Matches(u *url.URL) bool

	// Repository extracts "owner/repo" from a homepage or archive URL.
	Repository(u *url.URL) (string, error)

	// TagFromArchiveURL returns the release tag an archive URL is pinned to.
	TagFromArchiveURL(u *url.URL) (string, error)

	// ArchiveURL returns the source tarball URL for a tag.
	ArchiveURL(repository, tag string) string

	// AssetURL returns the download URL of a release asset for a tag.
	AssetURL(repository, tag, asset string) string

	// HomepageURL returns the project page for a repository.
	HomepageURL(repository string) string
}

var (
	mu        sync.RWMutex
	providers = make(map[string]Provider)
)

// Register makes a Provider available under its Name().
func Register(p Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[p.Name()] = p
}

// Get returns the Provider by name.
func Get(name string) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := providers[name]
	return p, ok
}

// Names returns the registered provider names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ForURL returns the registered provider that serves rawURL. The generic
// provider is used when no specific provider matches.
func ForURL(rawURL string) (Provider, *url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, nil, fmt.Errorf("URL %q is not absolute", rawURL)
	}

	mu.RLock()
	defer mu.RUnlock()
	for _, name := range sortedNamesLocked() {
		if name == GenericName {
			continue
		}
		if p := providers[name]; p.Matches(u) {
			return p, u, nil
		}
	}
	return providers[GenericName], u, nil
}

// TagFromURL extracts the release tag an archive URL is pinned to.
func TagFromURL(rawURL string) (string, error) {
	p, u, err := ForURL(rawURL)
	if err != nil {
		return "", err
	}
	return p.TagFromArchiveURL(u)
}

func sortedNamesLocked() []string {
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(&GitHub{Host: "github.com"})
	Register(&Generic{})
}
