package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// RegionSink receives regions read from files.
type RegionSink interface {
	ImportRegions(candidates []domain.RegionCandidate, provenance domain.Provenance) ([]domain.RegionOfInterest, error)
	RemoveRegionsByOrigin(origin string) int
}

// RegionRegistry tracks the region files replayed into a session, either
// restored from object storage or dropped into the import directory.
type RegionRegistry struct {
	mu        sync.RWMutex
	files     map[string]*regionFile
	sink      RegionSink
	reader    output.RegionReader
	storage   output.ObjectStorage
	metrics   output.MetricsCollector
	logger    *slog.Logger
	localPath string
	restored  atomic.Bool
}

type regionFile struct {
	Path     string
	Regions  []string
	LoadedAt time.Time
}

// NewRegionRegistry creates a region registry. storage may be nil when no
// session restore source is configured.
func NewRegionRegistry(
	sink RegionSink,
	reader output.RegionReader,
	storage output.ObjectStorage,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	localPath string,
) *RegionRegistry {
	return &RegionRegistry{
		files:     make(map[string]*regionFile),
		sink:      sink,
		reader:    reader,
		storage:   storage,
		metrics:   metrics,
		logger:    logger,
		localPath: localPath,
	}
}

// LoadFile reads a region file and imports its regions. Reloading a file
// replaces the regions it contributed before.
func (r *RegionRegistry) LoadFile(ctx context.Context, path string, provenance domain.Provenance) (int, error) {
	if !r.reader.Supports(path) {
		return 0, fmt.Errorf("%w: region file %s", domain.ErrUnsupported, filepath.Base(path))
	}
	r.logger.Info("loading region file", "path", path)

	candidates, err := r.reader.ReadRegions(ctx, path)
	if err != nil {
		r.logger.Error("failed to read region file", "path", path, "error", err)
		return 0, err
	}
	for i := range candidates {
		candidates[i].Origin = path
	}

	if r.IsLoaded(path) {
		r.sink.RemoveRegionsByOrigin(path)
	}

	created, err := r.sink.ImportRegions(candidates, provenance)
	if err != nil {
		r.logger.Warn("some regions were skipped", "path", path, "error", err)
	}

	names := make([]string, len(created))
	for i, c := range created {
		names[i] = c.Name
	}
	r.mu.Lock()
	r.files[path] = &regionFile{Path: path, Regions: names, LoadedAt: time.Now()}
	r.mu.Unlock()

	r.logger.Info("region file loaded", "path", path, "regions", len(created))
	return len(created), nil
}

// UnloadFile removes the regions a file contributed.
func (r *RegionRegistry) UnloadFile(_ context.Context, path string) int {
	r.mu.Lock()
	_, ok := r.files[path]
	delete(r.files, path)
	r.mu.Unlock()
	if !ok {
		return 0
	}

	n := r.sink.RemoveRegionsByOrigin(path)
	r.logger.Info("region file unloaded", "path", path, "regions", n)
	return n
}

// IsLoaded returns true if a file has been imported.
func (r *RegionRegistry) IsLoaded(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.files[path]
	return ok
}

// FileCount returns the number of imported files.
func (r *RegionRegistry) FileCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}

// RegionCount returns the number of regions contributed by imported files.
func (r *RegionRegistry) RegionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, f := range r.files {
		n += len(f.Regions)
	}
	return n
}

// Restored reports whether the initial session restore has run.
func (r *RegionRegistry) Restored() bool {
	return r.restored.Load()
}

// Restore replays every region file in object storage once, with provenance
// sessionRestored.
func (r *RegionRegistry) Restore(ctx context.Context) error {
	defer r.restored.Store(true)
	if r.storage == nil {
		return nil
	}
	r.logger.Info("restoring session regions from storage")

	objects, err := r.list(ctx)
	if err != nil {
		return err
	}

	for _, obj := range objects {
		localPath, err := r.download(ctx, obj.Key)
		if err != nil {
			continue
		}
		if _, err := r.LoadFile(ctx, localPath, domain.ProvenanceSessionRestored); err != nil {
			r.logger.Error("failed to restore region file", "path", localPath, "error", err)
		}
	}
	return nil
}

// SyncStats contains statistics from a sync operation.
type SyncStats struct {
	Added          int // files
	Removed        int
	RegionsAdded   int
	RegionsRemoved int
}

// Sync imports region files that appeared in storage since the last sync
// and drops regions whose file was deleted there.
func (r *RegionRegistry) Sync(ctx context.Context) (SyncStats, error) {
	if r.storage == nil {
		return SyncStats{}, domain.ErrStorageUnavailable
	}
	r.logger.Info("syncing region files from storage")

	objects, err := r.list(ctx)
	if err != nil {
		return SyncStats{}, err
	}

	remote := make(map[string]string, len(objects)) // local path -> object key
	for _, obj := range objects {
		if path, err := r.cachePath(obj.Key); err == nil {
			remote[path] = obj.Key
		}
	}

	stats := SyncStats{}
	for localPath, key := range remote {
		if r.IsLoaded(localPath) {
			continue
		}
		if _, err := r.download(ctx, key); err != nil {
			continue
		}
		n, err := r.LoadFile(ctx, localPath, domain.ProvenanceSessionRestored)
		if err != nil {
			continue
		}
		stats.Added++
		stats.RegionsAdded += n
	}

	for _, localPath := range r.findFilesToRemove(remote) {
		stats.RegionsRemoved += r.UnloadFile(ctx, localPath)
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to delete local copy", "path", localPath, "error", err)
		}
		stats.Removed++
	}

	r.logger.Info("sync completed",
		"files_added", stats.Added,
		"files_removed", stats.Removed,
		"regions_added", stats.RegionsAdded,
		"regions_removed", stats.RegionsRemoved,
		"files", r.FileCount(),
	)
	return stats, nil
}

// findFilesToRemove returns storage-backed files that are no longer remote.
// Files outside the storage cache directory (import dir) are left alone.
func (r *RegionRegistry) findFilesToRemove(remote map[string]string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for path := range r.files {
		if !isWithin(r.localPath, path) {
			continue
		}
		if _, ok := remote[path]; !ok {
			out = append(out, path)
		}
	}
	return out
}

func (r *RegionRegistry) list(ctx context.Context) ([]output.StorageObject, error) {
	start := time.Now()
	objects, err := r.storage.List(ctx)
	r.metrics.ObserveStorageDuration("list", time.Since(start))
	r.metrics.IncStorageOperations("list", err == nil)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: err}
	}

	supported := objects[:0]
	for _, obj := range objects {
		if r.reader.Supports(obj.Key) {
			supported = append(supported, obj)
		}
	}
	return supported, nil
}

// cachePath maps an object key into the local cache directory. Keys that
// would resolve outside of it are rejected.
func (r *RegionRegistry) cachePath(key string) (string, error) {
	path := filepath.Join(r.localPath, key)
	if !isWithin(r.localPath, path) {
		return "", fmt.Errorf("%w: object key %q escapes the cache directory", domain.ErrInvalidInput, key)
	}
	return path, nil
}

func (r *RegionRegistry) download(ctx context.Context, key string) (string, error) {
	localPath, err := r.cachePath(key)
	if err != nil {
		r.logger.Warn("skipping region file", "key", key, "error", err)
		return "", &domain.StorageError{Operation: "download", Key: key, Err: err}
	}
	start := time.Now()
	err = r.storage.Download(ctx, key, localPath)
	r.metrics.ObserveStorageDuration("download", time.Since(start))
	r.metrics.IncStorageOperations("download", err == nil)
	if err != nil {
		r.logger.Error("failed to download region file", "key", key, "error", err)
		return "", &domain.StorageError{Operation: "download", Key: key, Err: err}
	}
	return localPath, nil
}

func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
