package local

import (
	"context"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/plan"
)

// LocalDir is the folder under the extensions directory receiving the output
// of local builds.
const LocalDir = "local"

// Options configure a Resolver.
type Options struct {
	Builder  Builder
	Patterns []string
}

// Resolver locates, builds and exposes local extension projects.
type Resolver struct {
	builder  Builder
	patterns []string
}

// New creates a Resolver. A nil Builder selects a CommandBuilder running
// DefaultBuildCommand.
func New(opts Options) *Resolver {
	if opts.Builder == nil {
		opts.Builder = NewCommandBuilder("", nil)
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = DefaultPatterns
	}
	return &Resolver{builder: opts.Builder, patterns: opts.Patterns}
}

// built is one built graph root ready to be installed.
type built struct {
	project *Project
	output  string
	watch   model.WatchMode
	deps    []model.DependencyRequest
}

// Resolve finds the project of every spec, builds each graph root once and
// returns the outputs as an installable set. A missing folder or project file
// yields an invalid set; a failed build is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, specs []model.LocalExtensionSpec, env model.HostEnvironment, host model.HostContext) (plan.Set, error) {
	if len(specs) == 0 {
		return plan.Empty(), nil
	}

	files := make([]string, 0, len(specs))
	watch := make(map[string]model.WatchMode, len(specs))
	for _, spec := range specs {
		folder := env.ResolveFolder(spec.Folder)
		file, err := FindProject(folder, r.patterns)
		if err != nil {
			return plan.Invalid(errors.Fail("resolve", spec.Folder, err)), nil
		}
		logger.Debug("Found local project", logger.Fields{"folder": folder, "project": file})
		files = append(files, file)
		watch[fileKey(file)] = spec.Watch
	}

	graph, err := BuildGraph(files, r.patterns)
	if err != nil {
		return plan.Invalid(errors.Fail("resolve", "", err)), nil
	}

	roots := graph.Roots()
	results := make([]*built, 0, len(roots))
	for _, p := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.builder.Build(ctx, p)
		if err != nil {
			return nil, errors.Fail("build", p.PackageID(), err)
		}
		output := res.OutputDir
		if output == "" {
			output = p.OutputDir()
		}
		results = append(results, &built{
			project: p,
			output:  output,
			watch:   watch[fileKey(p.File)],
			deps:    graph.ExternalDependencies(p, host),
		})
	}

	return &localSet{
		extensionsDir: env.ExtensionsDir,
		packages:      results,
	}, nil
}
