// Package watch raises one-shot dirty notifications when the sources or the
// build output of locally built extensions change.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/model"
)

// defaultIgnores are never registered and never classified.
var defaultIgnores = []string{
	"**/.git/**",
	"**/.hg/**",
	"**/.svn/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

// PackageWatcher observes one local package. The first relevant change marks
// it dirty and calls onDirty; later changes are ignored until Reset.
type PackageWatcher struct {
	onDirty func(*PackageWatcher)

	mu       sync.Mutex
	metadata *model.PackageMetadata
	fsw      *fsnotify.Watcher
	done     chan struct{}

	dirty  atomic.Bool
	closed atomic.Bool
}

// NewPackageWatcher creates a watcher for metadata, which must carry local
// source information. Nothing is observed until Start.
func NewPackageWatcher(metadata *model.PackageMetadata, onDirty func(*PackageWatcher)) *PackageWatcher {
	return &PackageWatcher{metadata: metadata, onDirty: onDirty}
}

// Start registers the project folder and the binary directory, recursively,
// and begins processing events.
func (w *PackageWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return fmt.Errorf("watch: %s already started", w.metadata.ID)
	}
	if w.metadata.Local == nil {
		return fmt.Errorf("watch: %s is not a local package", w.metadata.ID)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	for _, root := range watchRoots(w.metadata.Local) {
		if err := addTree(fsw, root); err != nil {
			fsw.Close() //nolint:errcheck // best-effort cleanup
			return err
		}
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	go w.run(fsw, w.done)
	logger.Debug("Watching local package", logger.Fields{"package": w.metadata.ID, "folder": w.metadata.Local.ProjectFolder})
	return nil
}

func (w *PackageWatcher) run(fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case evt, ok := <-fsw.Events:
			if !ok {
				return
			}
			if isIgnored(evt.Name) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				maybeAddDir(fsw, evt.Name)
			}
			w.handle(evt.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if isFatalFsnotifyError(err) {
				logger.Error("Package watcher stopped", logger.Fields{"package": w.Metadata().ID, "error": err.Error()})
				return
			}
			logger.Warn("Package watcher error", logger.Fields{"package": w.Metadata().ID, "error": err.Error()})
		}
	}
}

// handle latches the dirty flag for a relevant path. The flag is checked
// without the lock, confirmed under it and only then acted upon.
func (w *PackageWatcher) handle(path string) {
	if w.closed.Load() || w.dirty.Load() {
		return
	}
	if !w.Triggers(path) {
		return
	}
	w.mu.Lock()
	if w.dirty.Load() {
		w.mu.Unlock()
		return
	}
	w.dirty.Store(true)
	id := w.metadata.ID
	w.mu.Unlock()

	logger.Debug("Local package changed", logger.Fields{"package": id, "path": path})
	if w.onDirty != nil {
		w.onDirty(w)
	}
}

// Triggers reports whether a change to path makes the package dirty. The
// project file always does; in full mode so do the recorded source files,
// in output mode anything under the binary directory.
func (w *PackageWatcher) Triggers(path string) bool {
	w.mu.Lock()
	local := w.metadata.Local
	w.mu.Unlock()
	if local == nil {
		return false
	}

	path = filepath.Clean(path)
	if samePath(path, local.ProjectFile) {
		return true
	}
	switch local.WatchMode {
	case model.WatchFull:
		for _, f := range local.SourceFiles {
			if samePath(path, f) {
				return true
			}
		}
	case model.WatchOutput:
		return local.BinaryDirectory != "" && within(local.BinaryDirectory, path)
	}
	return false
}

// Update replaces the metadata used for classification. The registered
// folders are not changed.
func (w *PackageWatcher) Update(metadata *model.PackageMetadata) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.metadata = metadata
}

// Metadata returns the current metadata.
func (w *PackageWatcher) Metadata() *model.PackageMetadata {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metadata
}

// Dirty reports whether a relevant change was seen since the last Reset.
func (w *PackageWatcher) Dirty() bool {
	return w.dirty.Load()
}

// Reset re-arms the watcher.
func (w *PackageWatcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dirty.Store(false)
}

// Close stops observing and waits for the event loop to exit.
func (w *PackageWatcher) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	w.mu.Lock()
	fsw, done := w.fsw, w.done
	w.mu.Unlock()
	if fsw == nil {
		return nil
	}
	err := fsw.Close()
	<-done
	return err
}

func watchRoots(local *model.LocalSource) []string {
	roots := []string{local.ProjectFolder}
	if local.BinaryDirectory != "" && !within(local.ProjectFolder, local.BinaryDirectory) {
		roots = append(roots, local.BinaryDirectory)
	}
	return roots
}

// addTree registers root and every directory below it that is not ignored.
// A missing root is skipped; the binary directory may not exist yet.
func addTree(fsw *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logger.Debug("Skipping inaccessible path", logger.Fields{"path": path, "error": err.Error()})
			return nil //nolint:nilerr // inaccessible paths are not watched
		}
		if !d.IsDir() {
			return nil
		}
		if isIgnored(path) || isIgnored(path+"/") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return nil
}

func maybeAddDir(fsw *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || isIgnored(path+"/") {
		return
	}
	if err := addTree(fsw, path); err != nil {
		logger.Warn("Failed to watch new directory", logger.Fields{"path": path, "error": err.Error()})
	}
}

func isIgnored(path string) bool {
	normalized := strings.TrimPrefix(filepath.ToSlash(path[len(filepath.VolumeName(path)):]), "/")
	for _, pat := range defaultIgnores {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

func samePath(a, b string) bool {
	if b == "" {
		return false
	}
	return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
