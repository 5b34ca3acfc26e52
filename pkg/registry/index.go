package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/fsutil"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/platform"
)

const (
	// IndexFormatVersion is written into every index this package produces.
	IndexFormatVersion = "1"

	// IndexFileName is the conventional name of an index document.
	IndexFileName = "index.json"

	// InitialPackageCapacity is the initial capacity for the packages slice.
	InitialPackageCapacity = 100
)

// Index is the document a package source publishes.
type Index struct {
	FormatVersion string    `json:"format_version"`
	LastUpdate    time.Time `json:"last_update"`
	Packages      []*Entry  `json:"packages"`
}

// Entry describes one published version of a package.
type Entry struct {
	ID           string                    `json:"id"`
	Version      string                    `json:"version"`
	URL          string                    `json:"url"`
	Checksum     string                    `json:"checksum,omitempty"`
	Tags         []string                  `json:"tags,omitempty"`
	EntryPoint   string                    `json:"entry_point,omitempty"`
	OS           string                    `json:"os,omitempty"`
	Arch         string                    `json:"arch,omitempty"`
	Dependencies []model.DependencyRequest `json:"dependencies,omitempty"`
}

// GetVersion parses the entry version; it returns nil when malformed.
func (e *Entry) GetVersion() *version.Version {
	v, err := version.NewVersion(e.Version)
	if err != nil {
		return nil
	}
	return v
}

// Platform returns the platform the entry was built for.
func (e *Entry) Platform() platform.Platform {
	return platform.Platform{OS: e.OS, Arch: e.Arch}
}

// HasTag reports whether the entry declares tag.
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// NewIndex creates an empty index with the current timestamp.
func NewIndex() *Index {
	return &Index{
		FormatVersion: IndexFormatVersion,
		LastUpdate:    time.Now().UTC(),
		Packages:      make([]*Entry, 0, InitialPackageCapacity),
	}
}

// ParseIndex parses an index from JSON data.
func ParseIndex(data []byte) (*Index, error) {
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidIndex, err)
	}
	if index.FormatVersion == "" {
		return nil, errors.Wrap(errors.ErrInvalidIndex, "missing format version")
	}
	return &index, nil
}

// ParseIndexFromReader parses an index from an io.Reader.
func ParseIndexFromReader(reader io.Reader) (*Index, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read index data")
	}
	return ParseIndex(data)
}

// ParseIndexFromFile parses the index stored at filePath.
func ParseIndexFromFile(filePath string) (*Index, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open index file %s", filePath)
	}
	defer func() { _ = file.Close() }()
	return ParseIndexFromReader(file)
}

// ToJSON converts the index to JSON bytes.
func (idx *Index) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal index to JSON")
	}
	return data, nil
}

// WriteFile stores the index at path.
func (idx *Index) WriteFile(path string) error {
	data, err := idx.ToJSON()
	if err != nil {
		return err
	}
	if err := fsutil.EnsureFileDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, fsutil.FileModeDefault)
}

// AddPackage adds an entry, replacing one with the same id and version.
func (idx *Index) AddPackage(entry *Entry) {
	v := entry.GetVersion()
	for i, existing := range idx.Packages {
		ev := existing.GetVersion()
		if strings.EqualFold(existing.ID, entry.ID) && v != nil && ev != nil && ev.Equal(v) {
			idx.Packages[i] = entry
			idx.LastUpdate = time.Now().UTC()
			return
		}
	}
	idx.Packages = append(idx.Packages, entry)
	idx.LastUpdate = time.Now().UTC()
}

// RemovePackage removes every entry of the package id.
func (idx *Index) RemovePackage(id string) bool {
	kept := idx.Packages[:0]
	for _, entry := range idx.Packages {
		if !strings.EqualFold(entry.ID, id) {
			kept = append(kept, entry)
		}
	}
	removed := len(kept) != len(idx.Packages)
	idx.Packages = kept
	if removed {
		idx.LastUpdate = time.Now().UTC()
	}
	return removed
}

// FindPackages returns the entries for id usable on runtime. Entries with a
// malformed version are skipped.
func (idx *Index) FindPackages(id string, runtime platform.Platform) []*Entry {
	packages := make([]*Entry, 0, 5)
	for _, entry := range idx.Packages {
		if !strings.EqualFold(entry.ID, id) {
			continue
		}
		if entry.GetVersion() == nil || !runtime.Matches(entry.Platform()) {
			continue
		}
		packages = append(packages, entry)
	}
	return packages
}

// Find returns the entry for the exact identity, or nil.
func (idx *Index) Find(identity model.PackageIdentity, runtime platform.Platform) *Entry {
	if identity.Version == nil {
		return nil
	}
	for _, entry := range idx.FindPackages(identity.ID, runtime) {
		if entry.GetVersion().Equal(identity.Version) {
			return entry
		}
	}
	return nil
}

// IndexPath returns the index file inside a source directory. A path that
// already names a JSON file is returned as is.
func IndexPath(location string) string {
	if strings.EqualFold(filepath.Ext(location), ".json") {
		return location
	}
	return filepath.Join(location, IndexFileName)
}
