package resolver

import (
	"context"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/local"
	"github.com/glorpus-work/extly/pkg/plan"
)

// LocalBuild adapts the local build resolver to the chain and forwards the
// dependencies its projects declare.
type LocalBuild struct {
	resolver *local.Resolver
}

// NewLocalBuild creates a LocalBuild.
func NewLocalBuild(r *local.Resolver) *LocalBuild {
	return &LocalBuild{resolver: r}
}

func (l *LocalBuild) Resolve(ctx context.Context, rc *Context) (plan.Set, error) {
	for _, spec := range rc.LocalSpecs {
		if err := spec.Validate(); err != nil {
			return nil, errors.Fail("configure", spec.Folder, err)
		}
	}
	set, err := l.resolver.Resolve(ctx, rc.LocalSpecs, rc.Environment, rc.Host)
	if err != nil {
		return nil, err
	}
	if p, ok := set.(plan.DependencyProvider); ok {
		rc.AdditionalDependencies = append(rc.AdditionalDependencies, p.AdditionalDependencies()...)
	}
	return set, nil
}
