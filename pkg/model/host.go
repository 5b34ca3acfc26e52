package model

import (
	"path/filepath"
	"strings"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/platform"
)

// HostContext describes the application consuming the extensions.
type HostContext struct {
	Runtime platform.Platform
	// SuppliedLibraries maps library ids the host already ships to their
	// versions. Such libraries never enter the resolved graph.
	SuppliedLibraries map[string]string
	// EntryPointTag, when set, restricts entry points to packages that
	// declare the tag.
	EntryPointTag string
}

// IsSupplied reports whether the host already provides the library id.
func (h HostContext) IsSupplied(id string) bool {
	for supplied := range h.SuppliedLibraries {
		if strings.EqualFold(supplied, id) {
			return true
		}
	}
	return false
}

// HostEnvironment locates the host on disk.
type HostEnvironment struct {
	RootDir       string
	ExtensionsDir string
}

// NewHostEnvironment validates that both directories are absolute.
func NewHostEnvironment(rootDir, extensionsDir string) (HostEnvironment, error) {
	if !filepath.IsAbs(rootDir) {
		return HostEnvironment{}, errors.Fail("configure", "",
			errors.Wrapf(errors.ErrInvalidPath, "root directory %q must be absolute", rootDir))
	}
	if !filepath.IsAbs(extensionsDir) {
		return HostEnvironment{}, errors.Fail("configure", "",
			errors.Wrapf(errors.ErrInvalidPath, "extensions directory %q must be absolute", extensionsDir))
	}
	return HostEnvironment{
		RootDir:       filepath.Clean(rootDir),
		ExtensionsDir: filepath.Clean(extensionsDir),
	}, nil
}

// ResolveFolder makes path absolute relative to the host root.
func (e HostEnvironment) ResolveFolder(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(e.RootDir, path)
}
