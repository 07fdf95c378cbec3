package audit

import (
	"sync"

	"github.com/open-edge-platform/tapkeeper/internal/archive"
)

// archiveCache inspects each cached archive once even when several
// descriptors pin the same URL.
type archiveCache struct {
	mu      sync.Mutex
	entries map[string]*archiveEntry
}

type archiveEntry struct {
	once sync.Once
	info *archive.Info
	err  error
}

func newArchiveCache() *archiveCache {
	return &archiveCache{entries: make(map[string]*archiveEntry)}
}

func (c *archiveCache) get(path string) (*archive.Info, error) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		e = &archiveEntry{}
		c.entries[path] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.info, e.err = archive.InspectFile(path)
	})
	return e.info, e.err
}
