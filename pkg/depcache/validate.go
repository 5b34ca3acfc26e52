package depcache

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/versioning"
)

// Validate decides whether cached can stand in for a fresh resolution of
// specs plus the additional dependencies discovered by local builds.
//
// Every spec must match a cached root entry whose version satisfies the
// range (and is not a prerelease unless allowed). Every additional
// dependency must match some cached entry by range alone. Cached roots that
// no spec asked for make the cache stale. A malformed range is a
// configuration error and is returned as such.
func Validate(specs []model.ExtensionSpec, additional []model.DependencyRequest, cached *model.InstalledPackages) (bool, error) {
	if cached == nil {
		return false, nil
	}

	roots := make(map[string]*model.PackageMetadata)
	for _, pkg := range cached.Roots() {
		roots[strings.ToLower(pkg.ID)] = pkg
	}

	valid := true
	for _, spec := range specs {
		rng, err := spec.Range()
		if err != nil {
			return false, errors.Fail("validate", spec.PackageID, err)
		}

		key := strings.ToLower(spec.PackageID)
		entry, ok := roots[key]
		if !ok {
			logger.Debug("Cache miss: root not cached", logger.Fields{"package": spec.PackageID})
			valid = false
			continue
		}
		delete(roots, key)

		v, err := version.NewVersion(entry.Version)
		if err != nil || !rng.Satisfies(v) {
			logger.Debug("Cache miss: cached version out of range",
				logger.Fields{"package": spec.PackageID, "version": entry.Version, "range": spec.VersionRange})
			valid = false
			continue
		}
		if versioning.IsPrerelease(v) && !spec.AllowPrerelease {
			logger.Debug("Cache miss: prerelease not allowed",
				logger.Fields{"package": spec.PackageID, "version": entry.Version})
			valid = false
		}
	}

	for _, dep := range additional {
		rng, err := versioning.ParseRange(dep.VersionRange)
		if err != nil {
			return false, errors.Fail("validate", dep.ID, err)
		}
		entry := cached.Find(dep.ID)
		if entry == nil {
			logger.Debug("Cache miss: dependency not cached", logger.Fields{"package": dep.ID})
			valid = false
			continue
		}
		v, err := version.NewVersion(entry.Version)
		if err != nil || !rng.Satisfies(v) {
			logger.Debug("Cache miss: cached dependency out of range",
				logger.Fields{"package": dep.ID, "version": entry.Version, "range": dep.VersionRange})
			valid = false
		}
	}

	for _, stale := range roots {
		logger.Debug("Cache miss: root no longer requested", logger.Fields{"package": stale.ID})
		valid = false
	}
	return valid, nil
}

// VerifyFilesPresent returns cached when every install folder and every
// declared file still exists, and nil as soon as anything is missing.
func VerifyFilesPresent(cached *model.InstalledPackages) *model.InstalledPackages {
	if cached == nil {
		return nil
	}
	for _, pkg := range cached.Packages {
		info, err := os.Stat(pkg.InstallFolder)
		if err != nil || !info.IsDir() {
			logger.Debug("Cache rejected: install folder missing", logger.Fields{"package": pkg.ID, "folder": pkg.InstallFolder})
			return nil
		}
		files := pkg.LibraryFiles
		if pkg.EntryPoint != "" {
			files = append(append([]string(nil), files...), pkg.EntryPoint)
		}
		for _, f := range files {
			if _, err := os.Stat(filepath.Join(pkg.InstallFolder, filepath.FromSlash(f))); err != nil {
				logger.Debug("Cache rejected: file missing", logger.Fields{"package": pkg.ID, "file": f})
				return nil
			}
		}
	}
	return cached
}
