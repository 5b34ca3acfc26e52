// Package depcache persists the resolved registry package graph so a later
// run with an unchanged configuration can skip the registry entirely.
package depcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/fsutil"
	"github.com/glorpus-work/extly/pkg/model"
)

const (
	// FileName is the cache document stored in the extensions directory.
	FileName = "extensions.deps.json"
	// LockSuffix is appended to the cache path to derive the lock file.
	LockSuffix = ".lock"

	formatVersion = "1"

	DefaultLockTimeout  = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Entry is one cached package.
type Entry struct {
	ID           string               `json:"id"`
	Version      string               `json:"version"`
	InstallPath  string               `json:"install_path"`
	LibraryFiles []string             `json:"library_files"`
	EntryPoint   string               `json:"entry_point,omitempty"`
	Dependencies []string             `json:"dependencies,omitempty"`
	Kind         model.DependencyKind `json:"kind"`
}

// Document is the on-disk cache layout.
type Document struct {
	FormatVersion string    `json:"format_version"`
	LastUpdate    time.Time `json:"last_update"`
	Packages      []Entry   `json:"packages"`
}

// Cache reads and writes the dependency cache of one extensions directory.
type Cache struct {
	path         string
	lockTimeout  time.Duration
	pollInterval time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithLockTimeout bounds how long Save waits for the lock. Zero waits until
// the context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Cache) { c.lockTimeout = d }
}

// WithPollInterval sets the delay between lock attempts.
func WithPollInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// New returns the cache for extensionsDir.
func New(extensionsDir string, opts ...Option) *Cache {
	c := &Cache{
		path:         filepath.Join(extensionsDir, FileName),
		lockTimeout:  DefaultLockTimeout,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// LockPath returns the path of the lock file guarding writers.
func (c *Cache) LockPath() string {
	return c.path + LockSuffix
}

// Load reads the cached graph. A missing file yields (nil, nil); an
// unreadable or malformed one wraps errors.ErrCacheCorrupt.
func (c *Cache) Load() (*model.InstalledPackages, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrCacheCorrupt, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrCacheCorrupt, err)
	}
	if doc.FormatVersion != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %q", errors.ErrCacheCorrupt, doc.FormatVersion)
	}

	installed := &model.InstalledPackages{Packages: make([]*model.PackageMetadata, 0, len(doc.Packages))}
	for _, e := range doc.Packages {
		if e.ID == "" || e.Version == "" || e.InstallPath == "" {
			return nil, fmt.Errorf("%w: incomplete entry %q", errors.ErrCacheCorrupt, e.ID)
		}
		kind := e.Kind
		if kind != model.KindRoot {
			kind = model.KindDependency
		}
		installed.Packages = append(installed.Packages, &model.PackageMetadata{
			ID:            e.ID,
			Version:       e.Version,
			InstallFolder: e.InstallPath,
			EntryPoint:    e.EntryPoint,
			LibraryFiles:  append([]string(nil), e.LibraryFiles...),
			Kind:          kind,
			Dependencies:  append([]string(nil), e.Dependencies...),
		})
	}
	return installed, nil
}

// Save rewrites the cache with the registry packages of installed. Locally
// built packages are never cached. Writers serialize on an exclusive lock
// on LockPath so the cache file itself stays readable by anyone.
func (c *Cache) Save(ctx context.Context, installed *model.InstalledPackages) error {
	doc := Document{
		FormatVersion: formatVersion,
		LastUpdate:    time.Now().UTC(),
		Packages:      make([]Entry, 0),
	}
	if installed != nil {
		for _, pkg := range installed.Packages {
			if pkg.Local != nil {
				continue
			}
			doc.Packages = append(doc.Packages, Entry{
				ID:           pkg.ID,
				Version:      pkg.Version,
				InstallPath:  pkg.InstallFolder,
				LibraryFiles: pkg.LibraryFiles,
				EntryPoint:   pkg.EntryPoint,
				Dependencies: pkg.Dependencies,
				Kind:         pkg.Kind,
			})
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dependency cache: %w", err)
	}
	if err := fsutil.EnsureFileDir(c.path); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	lock, err := acquireLock(ctx, c.LockPath(), c.lockTimeout, c.pollInterval)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := writeAtomic(c.path, data); err != nil {
		return err
	}
	logger.Debug("Dependency cache written", logger.Fields{"path": c.path, "packages": len(doc.Packages)})
	return nil
}

// Clear removes the cache file under the writer lock.
func (c *Cache) Clear(ctx context.Context) error {
	if err := fsutil.EnsureFileDir(c.path); err != nil {
		return err
	}
	lock, err := acquireLock(ctx, c.LockPath(), c.lockTimeout, c.pollInterval)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove dependency cache: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "extly-deps-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write to temporary file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to sync temporary file to disk: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpPath, fsutil.FileModeDefault); err != nil {
		return fmt.Errorf("failed to set permissions on temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temporary file to %s: %w", path, err)
	}
	return nil
}
