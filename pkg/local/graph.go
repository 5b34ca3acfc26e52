package local

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
)

// Graph is the project reference graph of one resolution batch.
type Graph struct {
	// Projects holds every project reached, batch projects first.
	Projects []*Project
	refs     map[string][]*Project
	batch    map[string]bool
}

// BuildGraph loads the references of files transitively. Reference paths
// are relative to the referencing project's folder and may name either a
// project file or a folder holding one.
func BuildGraph(files []string, patterns []string) (*Graph, error) {
	g := &Graph{
		refs:  make(map[string][]*Project),
		batch: make(map[string]bool),
	}
	byFile := make(map[string]*Project)

	var queue []*Project
	for _, file := range files {
		key := fileKey(file)
		if _, ok := byFile[key]; ok {
			continue
		}
		p, err := LoadProject(file)
		if err != nil {
			return nil, err
		}
		byFile[key] = p
		g.batch[key] = true
		g.Projects = append(g.Projects, p)
		queue = append(queue, p)
	}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, ref := range p.References {
			file, err := referenceFile(p.Dir, ref, patterns)
			if err != nil {
				return nil, errors.Wrapf(err, "reference of %s", p.File)
			}
			key := fileKey(file)
			target, ok := byFile[key]
			if !ok {
				target, err = LoadProject(file)
				if err != nil {
					return nil, err
				}
				byFile[key] = target
				g.Projects = append(g.Projects, target)
				queue = append(queue, target)
			}
			g.refs[fileKey(p.File)] = append(g.refs[fileKey(p.File)], target)
		}
	}
	return g, nil
}

func referenceFile(base, ref string, patterns []string) (string, error) {
	path := filepath.FromSlash(ref)
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(errors.ErrProjectNotFound, "%s", path)
	}
	if info.IsDir() {
		return FindProject(path, patterns)
	}
	return path, nil
}

func fileKey(file string) string {
	abs, err := filepath.Abs(file)
	if err != nil {
		abs = file
	}
	return strings.ToLower(filepath.Clean(abs))
}

// References returns the projects p references directly.
func (g *Graph) References(p *Project) []*Project {
	return g.refs[fileKey(p.File)]
}

// Roots returns the batch projects no other project references, in batch
// order. Each root is built once and pulls its references in. Batch
// projects only reachable through a reference cycle become roots as well.
func (g *Graph) Roots() []*Project {
	referenced := make(map[string]bool)
	for _, targets := range g.refs {
		for _, t := range targets {
			referenced[fileKey(t.File)] = true
		}
	}

	covered := make(map[string]bool)
	var roots []*Project
	add := func(p *Project) {
		roots = append(roots, p)
		for _, c := range g.Closure(p) {
			covered[fileKey(c.File)] = true
		}
	}
	for _, p := range g.Projects {
		key := fileKey(p.File)
		if g.batch[key] && !referenced[key] {
			add(p)
		}
	}
	for _, p := range g.Projects {
		key := fileKey(p.File)
		if g.batch[key] && !covered[key] {
			add(p)
		}
	}
	return roots
}

// Closure returns p and every project it reaches through references.
func (g *Graph) Closure(p *Project) []*Project {
	seen := map[string]bool{fileKey(p.File): true}
	out := []*Project{p}
	for i := 0; i < len(out); i++ {
		for _, ref := range g.References(out[i]) {
			key := fileKey(ref.File)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ref)
		}
	}
	return out
}

// ExternalDependencies collects the non-private, not host-supplied
// dependencies of p and its references. Identical requests are merged.
func (g *Graph) ExternalDependencies(p *Project, host model.HostContext) []model.DependencyRequest {
	seen := make(map[string]bool)
	var deps []model.DependencyRequest
	for _, proj := range g.Closure(p) {
		for _, d := range proj.ExternalDependencies(host) {
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
