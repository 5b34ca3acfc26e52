// Package testutil builds fixture package registries for tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glorpus-work/extly/pkg/archive"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/registry"
)

// Package describes one fixture package version.
type Package struct {
	ID      string
	Version string
	// Files maps archive-relative paths to contents. Nil yields a single
	// lib/<id>.so file.
	Files        map[string]string
	Tags         []string
	EntryPoint   string
	OS           string
	Arch         string
	Dependencies []model.DependencyRequest
}

// Deps builds dependency requests from "id range" pairs.
func Deps(pairs ...string) []model.DependencyRequest {
	out := make([]model.DependencyRequest, 0, len(pairs))
	for _, p := range pairs {
		id, rng, _ := strings.Cut(p, " ")
		out = append(out, model.DependencyRequest{ID: id, VersionRange: strings.TrimSpace(rng)})
	}
	return out
}

// Registry is a package source on disk: an index plus tar.gz archives.
type Registry struct {
	t     testing.TB
	Dir   string
	Index *registry.Index
}

// NewRegistry creates an empty registry in a temporary directory.
func NewRegistry(t testing.TB) *Registry {
	t.Helper()
	return &Registry{t: t, Dir: t.TempDir(), Index: registry.NewIndex()}
}

// Add packs pkg into an archive and records it in the index. The index is
// rewritten on every call.
func (r *Registry) Add(pkg Package) *registry.Entry {
	r.t.Helper()

	files := pkg.Files
	if files == nil {
		files = map[string]string{"lib/" + strings.ToLower(pkg.ID) + ".so": pkg.ID + " " + pkg.Version}
	}
	staging := filepath.Join(r.t.TempDir(), "payload")
	for rel, content := range files {
		path := filepath.Join(staging, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			r.t.Fatalf("staging %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			r.t.Fatalf("staging %s: %v", rel, err)
		}
	}

	name := strings.ToLower(pkg.ID) + "-" + pkg.Version + ".tar.gz"
	archivePath := filepath.Join(r.Dir, "archives", name)
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		r.t.Fatalf("archives dir: %v", err)
	}
	if err := archive.NewManager().Create(context.Background(), staging, archivePath); err != nil {
		r.t.Fatalf("packing %s@%s: %v", pkg.ID, pkg.Version, err)
	}

	entry := &registry.Entry{
		ID:           pkg.ID,
		Version:      pkg.Version,
		URL:          "archives/" + name,
		Checksum:     Checksum(r.t, archivePath),
		Tags:         pkg.Tags,
		EntryPoint:   pkg.EntryPoint,
		OS:           pkg.OS,
		Arch:         pkg.Arch,
		Dependencies: pkg.Dependencies,
	}
	r.Index.AddPackage(entry)
	r.Write()
	return entry
}

// Write stores the index and returns its path.
func (r *Registry) Write() string {
	r.t.Helper()
	path := r.IndexPath()
	if err := r.Index.WriteFile(path); err != nil {
		r.t.Fatalf("writing index: %v", err)
	}
	return path
}

// IndexPath returns the location of index.json.
func (r *Registry) IndexPath() string {
	return filepath.Join(r.Dir, registry.IndexFileName)
}

// Checksum returns the hex SHA-256 of the file at path.
func Checksum(t testing.TB, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("checksum %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		t.Fatalf("checksum %s: %v", path, err)
	}
	return hex.EncodeToString(h.Sum(nil))
}
