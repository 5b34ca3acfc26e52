package remote

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/archive"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/fsutil"
	"github.com/glorpus-work/extly/pkg/hooks"
	"github.com/glorpus-work/extly/pkg/model"
)

// CompleteMarker is written into a package folder once extraction and the
// post-install hook succeeded.
const CompleteMarker = ".extly-package.json"

const libraryPattern = "lib/**"

// registrySet is the installable result of a successful resolution.
type registrySet struct {
	resolver *Resolver
	host     model.HostContext
	packages []*node
	roots    map[string]bool
}

func (s *registrySet) PackageIDs() []string {
	ids := make([]string, 0, len(s.packages))
	for _, n := range s.packages {
		ids = append(ids, n.identity.ID)
	}
	return ids
}

func (s *registrySet) Valid() bool { return true }
func (s *registrySet) Err() error  { return nil }

// Identities returns the selected identities in discovery order.
func (s *registrySet) Identities() []model.PackageIdentity {
	out := make([]model.PackageIdentity, 0, len(s.packages))
	for _, n := range s.packages {
		out = append(out, n.identity)
	}
	return out
}

// Install materializes every selected package with bounded parallelism,
// checks the dependency closure and rewrites the dependency cache.
func (s *registrySet) Install(ctx context.Context) (*model.InstalledPackages, error) {
	opts := s.resolver.opts
	if err := fsutil.EnsureDir(opts.InstallDir); err != nil {
		return nil, errors.Fail("install", "", err)
	}

	results := make([]*model.PackageMetadata, len(s.packages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, n := range s.packages {
		g.Go(func() error {
			meta, err := s.installOne(gctx, n)
			if err != nil {
				return errors.Fail("install", n.identity.ID, err)
			}
			results[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	installed := &model.InstalledPackages{Packages: results}
	if err := installed.CheckClosure(s.host); err != nil {
		return nil, errors.Fail("install", "", err)
	}
	if opts.Cache != nil {
		if err := opts.Cache.Save(ctx, installed); err != nil {
			return nil, err
		}
	}
	return installed, nil
}

// PackageFolder returns the deterministic install folder of an identity.
func PackageFolder(installDir string, identity model.PackageIdentity) string {
	return filepath.Join(installDir, strings.ToLower(identity.ID), identity.Version.String())
}

func (s *registrySet) installOne(ctx context.Context, n *node) (*model.PackageMetadata, error) {
	opts := s.resolver.opts
	folder := PackageFolder(opts.InstallDir, n.identity)

	if fsutil.Exists(filepath.Join(folder, CompleteMarker)) {
		logger.Debug("Reusing installed package", logger.Fields{"package": n.identity.String(), "folder": folder})
	} else {
		if err := s.extract(ctx, n, folder); err != nil {
			return nil, err
		}
	}

	libs, err := libraryFiles(folder)
	if err != nil {
		return nil, err
	}

	meta := &model.PackageMetadata{
		ID:            n.identity.ID,
		Version:       n.identity.Version.Original(),
		InstallFolder: folder,
		LibraryFiles:  libs,
		Kind:          model.KindDependency,
		EntryPoint:    s.entryPoint(n, folder),
	}
	if s.roots[strings.ToLower(n.identity.ID)] {
		meta.Kind = model.KindRoot
	}
	for _, dep := range n.deps {
		meta.Dependencies = append(meta.Dependencies, dep.id)
	}
	return meta, nil
}

// extract downloads the archive, unpacks it next to its final location and
// moves it into place, so a cancelled install never leaves a folder that
// looks complete.
func (s *registrySet) extract(ctx context.Context, n *node, folder string) error {
	opts := s.resolver.opts
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("Installing package", logger.Fields{"package": n.identity.String(), "source": n.source.Name()})

	archivePath, err := n.source.Download(ctx, n.identity, opts.DownloadDir)
	if err != nil {
		return err
	}

	parent := filepath.Dir(folder)
	if err := fsutil.EnsureDir(parent); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(parent, ".extract-*")
	if err != nil {
		return errors.Wrap(err, "could not create extraction folder")
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	if err := archive.NewManager().ExtractAll(ctx, archivePath, tmp); err != nil {
		return err
	}
	if err := os.RemoveAll(folder); err != nil {
		return errors.Wrapf(err, "could not remove stale folder %s", folder)
	}
	if err := fsutil.Move(tmp, folder); err != nil {
		return err
	}

	if err := hooks.Run(ctx, folder, hooks.PostInstall, hooks.HookContext{
		PackageID:      n.identity.ID,
		PackageVersion: n.identity.Version.Original(),
		InstallPath:    folder,
		ExtensionsDir:  opts.InstallDir,
	}); err != nil {
		return err
	}
	return writeMarker(folder, n)
}

func (s *registrySet) entryPoint(n *node, folder string) string {
	ep := n.info.EntryPoint
	if ep == "" {
		return ""
	}
	if tag := s.host.EntryPointTag; tag != "" && !hasTag(n.info.Tags, tag) {
		return ""
	}
	if !fsutil.Exists(filepath.Join(folder, filepath.FromSlash(ep))) {
		logger.Warn("Declared entry point missing from package", logger.Fields{"package": n.identity.String(), "entry_point": ep})
		return ""
	}
	return path.Clean(filepath.ToSlash(ep))
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// libraryFiles lists lib/** when the package has a lib folder and every
// payload file otherwise.
func libraryFiles(folder string) ([]string, error) {
	files, err := fsutil.ListFiles(folder, func(rel string, d fs.DirEntry) bool {
		return rel == CompleteMarker || rel == hooks.HookDir || strings.HasPrefix(rel, hooks.HookDir+"/")
	})
	if err != nil {
		return nil, err
	}
	var libs []string
	for _, f := range files {
		if ok, _ := doublestar.Match(libraryPattern, f); ok {
			libs = append(libs, f)
		}
	}
	if len(libs) > 0 {
		return libs, nil
	}
	return files, nil
}

type marker struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Source  string `json:"source"`
}

func writeMarker(folder string, n *node) error {
	data, err := json.Marshal(marker{
		ID:      n.identity.ID,
		Version: n.identity.Version.Original(),
		Source:  n.source.Name(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(folder, CompleteMarker), data, fsutil.FileModeDefault)
}
