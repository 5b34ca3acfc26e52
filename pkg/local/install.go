package local

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/fsutil"
	"github.com/glorpus-work/extly/pkg/hooks"
	"github.com/glorpus-work/extly/pkg/model"
)

// vcsDirs never contribute source files.
var vcsDirs = map[string]bool{".git": true, ".hg": true, ".svn": true, ".bzr": true}

// localSet installs built projects by copying their output trees.
type localSet struct {
	extensionsDir string
	packages      []*built
}

func (s *localSet) PackageIDs() []string {
	ids := make([]string, 0, len(s.packages))
	for _, b := range s.packages {
		ids = append(ids, b.project.PackageID())
	}
	return ids
}

func (s *localSet) Valid() bool { return true }
func (s *localSet) Err() error  { return nil }

// AdditionalDependencies returns the external dependencies of every built
// project, for the registry resolver to satisfy.
func (s *localSet) AdditionalDependencies() []model.DependencyRequest {
	seen := make(map[string]bool)
	var deps []model.DependencyRequest
	for _, b := range s.packages {
		for _, d := range b.deps {
			key := strings.ToLower(d.ID) + "|" + d.VersionRange
			if seen[key] {
				continue
			}
			seen[key] = true
			deps = append(deps, d)
		}
	}
	return deps
}

// Install copies each output tree to <extensions>/local/<id>, replacing what
// was there, and runs the project's post-build hook.
func (s *localSet) Install(ctx context.Context) (*model.InstalledPackages, error) {
	installed := &model.InstalledPackages{}
	for _, b := range s.packages {
		meta, err := s.installOne(ctx, b)
		if err != nil {
			return nil, errors.Fail("install", b.project.PackageID(), err)
		}
		installed.Packages = append(installed.Packages, meta)
	}
	return installed, nil
}

// Folder returns the install folder of a local package.
func Folder(extensionsDir, id string) string {
	return filepath.Join(extensionsDir, LocalDir, strings.ToLower(id))
}

func (s *localSet) installOne(ctx context.Context, b *built) (*model.PackageMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := b.project
	dest := Folder(s.extensionsDir, p.PackageID())

	if err := os.RemoveAll(dest); err != nil {
		return nil, errors.Wrapf(err, "could not clear %s", dest)
	}
	if err := fsutil.EnsureDir(dest); err != nil {
		return nil, err
	}
	if err := fsutil.CopyDir(ctx, b.output, dest, nil); err != nil {
		return nil, errors.Wrapf(err, "could not copy build output of %s", p.PackageID())
	}

	if err := hooks.Run(ctx, p.Dir, hooks.PostBuild, hooks.HookContext{
		PackageID:      p.PackageID(),
		PackageVersion: p.PackageVersion(),
		InstallPath:    dest,
		ExtensionsDir:  s.extensionsDir,
	}); err != nil {
		return nil, err
	}

	files, err := fsutil.ListFiles(dest, nil)
	if err != nil {
		return nil, err
	}

	meta := &model.PackageMetadata{
		ID:            p.PackageID(),
		Version:       p.PackageVersion(),
		InstallFolder: dest,
		LibraryFiles:  files,
		Kind:          model.KindRoot,
		Local: &model.LocalSource{
			ProjectFile:     p.File,
			ProjectFolder:   p.Dir,
			BinaryDirectory: b.output,
			WatchMode:       b.watch,
		},
	}
	if fsutil.Exists(filepath.Join(dest, p.EntryPoint())) {
		meta.EntryPoint = p.EntryPoint()
	} else {
		logger.Warn("Build output has no entry point", logger.Fields{"package": p.PackageID(), "entry_point": p.EntryPoint()})
	}
	for _, d := range b.deps {
		meta.Dependencies = append(meta.Dependencies, d.ID)
	}

	if b.watch == model.WatchFull {
		sources, err := SourceFiles(p, b.output)
		if err != nil {
			return nil, err
		}
		meta.Local.SourceFiles = sources
	}

	logger.Info("Installed local extension", logger.Fields{"package": p.PackageID(), "folder": dest})
	return meta, nil
}

// SourceFiles lists every file under the project folder as absolute paths,
// leaving out the output folder and VCS metadata.
func SourceFiles(p *Project, output string) ([]string, error) {
	outRel, err := filepath.Rel(p.Dir, output)
	if err != nil || strings.HasPrefix(outRel, "..") {
		outRel = ""
	}
	outRel = filepath.ToSlash(outRel)

	rel, err := fsutil.ListFiles(p.Dir, func(rel string, d fs.DirEntry) bool {
		if d.IsDir() && vcsDirs[d.Name()] {
			return true
		}
		return outRel != "" && outRel != "." && (rel == outRel || strings.HasPrefix(rel, outRel+"/"))
	})
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(rel))
	for _, f := range rel {
		files = append(files, filepath.Join(p.Dir, filepath.FromSlash(f)))
	}
	return files, nil
}
