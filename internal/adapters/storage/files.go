// Package storage provides adapters that list and fetch region files from
// object storage backends.
package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

var regionExtensions = []string{".geojson", ".json", ".gpkg"}

// IsRegionFile reports whether name has a region file extension.
func IsRegionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range regionExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// relativeKey strips the configured prefix from an object key.
func relativeKey(prefix, key string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
}

// joinKey returns the full object key including prefix.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

// writeFile streams r into dest. dest is replaced atomically: the content
// lands in a temporary sibling first and is renamed into place.
func writeFile(dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
