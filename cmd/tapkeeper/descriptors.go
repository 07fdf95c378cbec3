package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/tapkeeper/internal/config/manifest"
	"github.com/open-edge-platform/tapkeeper/internal/formula"
)

// isManifestPath reports whether path names a tap manifest rather than a
// formula file.
func isManifestPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}

// loadDescriptors reads descriptors from formula files and tap manifests in
// argument order, which is taken as publication order.
func loadDescriptors(paths []string) ([]*formula.Descriptor, error) {
	var ds []*formula.Descriptor
	for _, path := range paths {
		if isManifestPath(path) {
			m, err := manifest.Load(path)
			if err != nil {
				return nil, err
			}
			ds = append(ds, m.Descriptors()...)
			continue
		}
		d, err := formula.ParseFile(path)
		if err != nil {
			return nil, err
		}
		ds = append(ds, d)
	}
	if len(ds) == 0 {
		return nil, fmt.Errorf("no descriptors given")
	}
	return ds, nil
}
