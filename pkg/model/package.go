package model

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/extly/pkg/errors"
)

// PackageIdentity names one concrete package version.
type PackageIdentity struct {
	ID      string
	Version *version.Version
}

func (p PackageIdentity) String() string {
	if p.Version == nil {
		return p.ID
	}
	return p.ID + "@" + p.Version.Original()
}

// Key is a case-insensitive map key for the identity.
func (p PackageIdentity) Key() string {
	return strings.ToLower(p.String())
}

// DependencyKind marks whether a package was requested by configuration.
type DependencyKind string

const (
	KindRoot       DependencyKind = "root"
	KindDependency DependencyKind = "dependency"
)

// LocalSource carries what the watcher needs to know about a locally built
// package.
type LocalSource struct {
	ProjectFile     string
	ProjectFolder   string
	BinaryDirectory string
	SourceFiles     []string
	WatchMode       WatchMode
}

// PackageMetadata describes one installed unit. EntryPoint and LibraryFiles
// are relative to InstallFolder.
type PackageMetadata struct {
	ID            string
	Version       string
	InstallFolder string
	EntryPoint    string
	LibraryFiles  []string
	Kind          DependencyKind
	Dependencies  []string
	Local         *LocalSource
}

// IsRoot reports whether the package was requested by configuration.
func (m *PackageMetadata) IsRoot() bool {
	return m.Kind == KindRoot
}

// EntryPointPath returns the absolute entry point path, or "" when the
// package has none.
func (m *PackageMetadata) EntryPointPath() string {
	if m.EntryPoint == "" {
		return ""
	}
	return filepath.Join(m.InstallFolder, filepath.FromSlash(m.EntryPoint))
}

// LibraryPaths returns the absolute paths of the package's library files.
func (m *PackageMetadata) LibraryPaths() []string {
	out := make([]string, 0, len(m.LibraryFiles))
	for _, f := range m.LibraryFiles {
		out = append(out, filepath.Join(m.InstallFolder, filepath.FromSlash(f)))
	}
	return out
}

// InstalledPackages is the materialized result of an installation.
type InstalledPackages struct {
	Packages []*PackageMetadata
}

// Find returns the package with the given id, ignoring case.
func (p *InstalledPackages) Find(id string) *PackageMetadata {
	if p == nil {
		return nil
	}
	for _, pkg := range p.Packages {
		if strings.EqualFold(pkg.ID, id) {
			return pkg
		}
	}
	return nil
}

// Roots returns the packages requested by configuration.
func (p *InstalledPackages) Roots() []*PackageMetadata {
	if p == nil {
		return nil
	}
	var roots []*PackageMetadata
	for _, pkg := range p.Packages {
		if pkg.IsRoot() {
			roots = append(roots, pkg)
		}
	}
	return roots
}

// IDs returns the sorted package ids.
func (p *InstalledPackages) IDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.Packages))
	for _, pkg := range p.Packages {
		ids = append(ids, pkg.ID)
	}
	sort.Strings(ids)
	return ids
}

// LibraryPaths returns the flat union of every package's library files in
// package order.
func (p *InstalledPackages) LibraryPaths() []string {
	if p == nil {
		return nil
	}
	var out []string
	for _, pkg := range p.Packages {
		out = append(out, pkg.LibraryPaths()...)
	}
	return out
}

// CheckClosure verifies that every dependency id resolves to a package in
// the collection or to a library the host supplies.
func (p *InstalledPackages) CheckClosure(host HostContext) error {
	if p == nil {
		return nil
	}
	for _, pkg := range p.Packages {
		for _, dep := range pkg.Dependencies {
			if p.Find(dep) == nil && !host.IsSupplied(dep) {
				return errors.Wrapf(errors.ErrDanglingDependency, "%s depends on %s", pkg.ID, dep)
			}
		}
	}
	return nil
}

// Merge appends the packages of other whose ids are not present yet. The
// first occurrence of an id wins.
func (p *InstalledPackages) Merge(other *InstalledPackages) {
	if other == nil {
		return
	}
	for _, pkg := range other.Packages {
		if p.Find(pkg.ID) == nil {
			p.Packages = append(p.Packages, pkg)
		}
	}
}
