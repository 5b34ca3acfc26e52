// Package orchestrator drives a resolution through planning and installation
// and keeps the extensions directory tidy.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/plan"
	"github.com/glorpus-work/extly/pkg/registry"
	"github.com/glorpus-work/extly/pkg/resolver"
)

// New creates an Orchestrator over r.
func New(r resolver.Resolver, hooks Hooks) *Orchestrator {
	return &Orchestrator{Resolver: r, Hooks: hooks}
}

// Sync refreshes the index of every source that supports it. All sources
// are attempted; the errors are aggregated.
func (o *Orchestrator) Sync(ctx context.Context, sources []registry.Source) error {
	var result *multierror.Error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, ok := src.(registry.Refresher)
		if !ok {
			continue
		}
		emit(o.Hooks, Event{Phase: "syncing", ID: src.Name()})
		if err := r.Refresh(ctx); err != nil {
			emit(o.Hooks, Event{Phase: "error", ID: src.Name(), Msg: err.Error()})
			result = multierror.Append(result, fmt.Errorf("%s: %w", src.Name(), err))
		}
	}
	return result.ErrorOrNil()
}

// Plan resolves req into an installable set. Fatal errors and invalid sets
// are both reported as an *errors.ExtensionError.
func (o *Orchestrator) Plan(ctx context.Context, req resolver.Request) (plan.Set, error) {
	if o.Resolver == nil {
		return nil, fmt.Errorf("resolver is not configured")
	}
	emit(o.Hooks, Event{Phase: "planning", Msg: fmt.Sprintf("%d remote, %d local", len(req.Specs), len(req.LocalSpecs))})
	set, err := o.Resolver.Resolve(ctx, resolver.NewContext(req))
	if err != nil {
		return nil, errors.Fail("resolve", "", err)
	}
	if !set.Valid() {
		return nil, errors.Fail("resolve", "", fmt.Errorf("%w: %w", errors.ErrInvalidPackageSet, set.Err()))
	}
	for _, id := range set.PackageIDs() {
		emit(o.Hooks, Event{Phase: "planning", ID: id})
	}
	return set, nil
}

// Install resolves and materializes req. A dry run stops after planning and
// returns nil packages. Nothing is returned unless the whole set installed
// and satisfies the dependency closure.
func (o *Orchestrator) Install(ctx context.Context, req resolver.Request, opts InstallOptions) (*model.InstalledPackages, error) {
	set, err := o.Plan(ctx, req)
	if err != nil {
		emit(o.Hooks, Event{Phase: "error", Msg: err.Error()})
		return nil, err
	}
	if opts.DryRun {
		emit(o.Hooks, Event{Phase: "done", Msg: "dry-run"})
		return nil, nil
	}

	emit(o.Hooks, Event{Phase: "installing", Msg: fmt.Sprintf("%d packages", len(set.PackageIDs()))})
	installed, err := set.Install(ctx)
	if err == nil {
		err = installed.CheckClosure(req.Host)
	}
	if err != nil {
		err = errors.Fail("install", "", err)
		emit(o.Hooks, Event{Phase: "error", Msg: err.Error()})
		return nil, err
	}
	for _, pkg := range installed.Packages {
		emit(o.Hooks, Event{Phase: "installing", ID: pkg.ID, Msg: pkg.Version})
	}
	emit(o.Hooks, Event{Phase: "done"})
	return installed, nil
}

// Cleanup removes package folders under extensionsDir that installed does
// not reference. Package folders live two levels deep (<id>/<version> and
// local/<id>); dot-prefixed entries and plain files are left alone. The
// removed (or, on a dry run, removable) folders are returned.
func (o *Orchestrator) Cleanup(ctx context.Context, extensionsDir string, installed *model.InstalledPackages, opts CleanupOptions) ([]string, error) {
	keep := make(map[string]struct{})
	if installed != nil {
		for _, pkg := range installed.Packages {
			keep[folderKey(pkg.InstallFolder)] = struct{}{}
		}
	}

	groups, err := os.ReadDir(extensionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", extensionsDir)
	}

	var removed []string
	for _, group := range groups {
		if !group.IsDir() || strings.HasPrefix(group.Name(), ".") || preserved(opts.Preserve, group.Name()) {
			continue
		}
		groupDir := filepath.Join(extensionsDir, group.Name())
		children, err := os.ReadDir(groupDir)
		if err != nil {
			return removed, errors.Wrapf(err, "failed to read %s", groupDir)
		}
		left := len(children)
		for _, child := range children {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			folder := filepath.Join(groupDir, child.Name())
			if !child.IsDir() {
				continue
			}
			if _, ok := keep[folderKey(folder)]; ok {
				continue
			}
			emit(o.Hooks, Event{Phase: "cleaning", ID: folder})
			removed = append(removed, folder)
			if opts.DryRun {
				continue
			}
			if err := os.RemoveAll(folder); err != nil {
				return removed, errors.Wrapf(err, "failed to remove %s", folder)
			}
			logger.Debug("Removed stale package folder", logger.Fields{"folder": folder})
			left--
		}
		if left == 0 && !opts.DryRun {
			_ = os.Remove(groupDir)
		}
	}
	return removed, nil
}

func preserved(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func folderKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
