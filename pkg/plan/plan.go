// Package plan models installable package sets: resolution results that have
// not been materialized on disk yet.
package plan

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
)

//go:generate mockgen -destination=./mocks/set.go -package=mocks . Set

// Set is a resolved, installable plan.
type Set interface {
	// PackageIDs lists the ids the set would install.
	PackageIDs() []string
	// Valid reports whether the set can be installed.
	Valid() bool
	// Err returns the reason the set is invalid, or nil.
	Err() error
	// Install materializes the set. Partial results are never returned.
	Install(ctx context.Context) (*model.InstalledPackages, error)
}

// DependencyProvider is implemented by sets that discovered external
// dependencies another resolver has to satisfy.
type DependencyProvider interface {
	AdditionalDependencies() []model.DependencyRequest
}

func notInstallable(cause error) error {
	return errors.Fail("install", "", fmt.Errorf("%w: %w", errors.ErrInvalidPackageSet, cause))
}

type emptySet struct{}

// Empty returns a valid set that installs nothing.
func Empty() Set { return emptySet{} }

func (emptySet) PackageIDs() []string { return nil }
func (emptySet) Valid() bool          { return true }
func (emptySet) Err() error           { return nil }

func (emptySet) Install(ctx context.Context) (*model.InstalledPackages, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &model.InstalledPackages{}, nil
}

type invalidSet struct {
	err error
}

// Invalid returns a set that carries err and refuses to install.
func Invalid(err error) Set {
	if err == nil {
		err = errors.ErrInvalidPackageSet
	}
	return &invalidSet{err: err}
}

func (s *invalidSet) PackageIDs() []string { return nil }
func (s *invalidSet) Valid() bool          { return false }
func (s *invalidSet) Err() error           { return s.err }

func (s *invalidSet) Install(context.Context) (*model.InstalledPackages, error) {
	return nil, notInstallable(s.err)
}

type installedSet struct {
	packages *model.InstalledPackages
}

// Installed wraps an already materialized result, typically a cache hit.
func Installed(packages *model.InstalledPackages) Set {
	if packages == nil {
		packages = &model.InstalledPackages{}
	}
	return &installedSet{packages: packages}
}

func (s *installedSet) PackageIDs() []string { return s.packages.IDs() }
func (s *installedSet) Valid() bool          { return true }
func (s *installedSet) Err() error           { return nil }

func (s *installedSet) Install(ctx context.Context) (*model.InstalledPackages, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.packages, nil
}

type compositeSet struct {
	children []Set
}

// Composite combines children discovered in order. It is valid only when
// every child is; installation runs the children in reverse order so the
// set that completes the dependency closure installs first.
func Composite(children ...Set) Set {
	return &compositeSet{children: children}
}

func (s *compositeSet) PackageIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, child := range s.children {
		for _, id := range child.PackageIDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *compositeSet) Valid() bool {
	for _, child := range s.children {
		if !child.Valid() {
			return false
		}
	}
	return true
}

func (s *compositeSet) Err() error {
	var result *multierror.Error
	for _, child := range s.children {
		if err := child.Err(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (s *compositeSet) Install(ctx context.Context) (*model.InstalledPackages, error) {
	if !s.Valid() {
		return nil, notInstallable(s.Err())
	}

	merged := &model.InstalledPackages{}
	for i := len(s.children) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		installed, err := s.children[i].Install(ctx)
		if err != nil {
			return nil, err
		}
		merged.Merge(installed)
	}
	return merged, nil
}

// AdditionalDependencies collects the dependencies exported by children.
func (s *compositeSet) AdditionalDependencies() []model.DependencyRequest {
	var deps []model.DependencyRequest
	for _, child := range s.children {
		if p, ok := child.(DependencyProvider); ok {
			deps = append(deps, p.AdditionalDependencies()...)
		}
	}
	return deps
}
