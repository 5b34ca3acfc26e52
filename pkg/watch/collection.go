package watch

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/model"
)

// CollectionWatcher keeps one PackageWatcher per watched local package. It
// starts suspended; while suspended, or once dirty until Reset, package
// notifications do not propagate.
type CollectionWatcher struct {
	onDirty func(*model.PackageMetadata)

	mu        sync.Mutex
	watchers  map[string]*PackageWatcher
	suspended bool

	dirty atomic.Bool
}

// NewCollectionWatcher creates a suspended, empty collection. onDirty runs
// once per dirty period with the package that changed first.
func NewCollectionWatcher(onDirty func(*model.PackageMetadata)) *CollectionWatcher {
	return &CollectionWatcher{
		onDirty:   onDirty,
		watchers:  make(map[string]*PackageWatcher),
		suspended: true,
	}
}

// Sync brings the watchers in line with packages: existing folders get the
// new metadata, new folders are watched unless their watch mode is none and
// folders no longer listed are dropped. Packages without local source
// information are ignored.
func (c *CollectionWatcher) Sync(packages []*model.PackageMetadata) error {
	c.mu.Lock()
	var result *multierror.Error
	seen := make(map[string]struct{})
	for _, pkg := range packages {
		if pkg.Local == nil {
			continue
		}
		key := folderKey(pkg.Local.ProjectFolder)
		if w, ok := c.watchers[key]; ok {
			seen[key] = struct{}{}
			w.Update(pkg)
			continue
		}
		if pkg.Local.WatchMode == model.WatchNone || pkg.Local.WatchMode == "" {
			continue
		}
		w := NewPackageWatcher(pkg, c.packageDirty)
		if err := w.Start(); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		seen[key] = struct{}{}
		c.watchers[key] = w
	}

	var removed []*PackageWatcher
	for key, w := range c.watchers {
		if _, ok := seen[key]; !ok {
			removed = append(removed, w)
			delete(c.watchers, key)
		}
	}
	c.mu.Unlock()

	// Closing waits for the event loop, which may be calling packageDirty.
	for _, w := range removed {
		logger.Debug("Stopped watching local package", logger.Fields{"package": w.Metadata().ID})
		if err := w.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *CollectionWatcher) packageDirty(w *PackageWatcher) {
	if c.dirty.Load() {
		return
	}
	c.mu.Lock()
	if c.suspended || c.dirty.Load() {
		c.mu.Unlock()
		return
	}
	c.dirty.Store(true)
	c.mu.Unlock()

	metadata := w.Metadata()
	logger.Info("Local extension changed", logger.Fields{"package": metadata.ID})
	if c.onDirty != nil {
		c.onDirty(metadata)
	}
}

// Resume lets notifications propagate.
func (c *CollectionWatcher) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = false
}

// Suspend stops notifications from propagating.
func (c *CollectionWatcher) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended = true
}

// Suspended reports whether notifications are held back.
func (c *CollectionWatcher) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Dirty reports whether a notification fired since the last Reset.
func (c *CollectionWatcher) Dirty() bool {
	return c.dirty.Load()
}

// Reset re-arms the collection and every package watcher.
func (c *CollectionWatcher) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.watchers {
		w.Reset()
	}
	c.dirty.Store(false)
}

// Watched returns the ids of the watched packages, sorted.
func (c *CollectionWatcher) Watched() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.watchers))
	for _, w := range c.watchers {
		ids = append(ids, w.Metadata().ID)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every package watcher.
func (c *CollectionWatcher) Close() error {
	c.mu.Lock()
	watchers := c.watchers
	c.watchers = make(map[string]*PackageWatcher)
	c.mu.Unlock()

	var result *multierror.Error
	for _, w := range watchers {
		if err := w.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func folderKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
