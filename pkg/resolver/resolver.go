// Package resolver combines the local build resolver and the cache-backed
// registry resolver into the single resolution step the installer runs.
package resolver

import (
	"context"

	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/plan"
)

//go:generate mockgen -destination=./mocks/resolver.go -package=mocks . Resolver,Registry

// Request is what the host asks to have installed.
type Request struct {
	Specs       []model.ExtensionSpec
	LocalSpecs  []model.LocalExtensionSpec
	Host        model.HostContext
	Environment model.HostEnvironment
}

// Context carries a Request through the resolver chain. Resolvers append
// the external dependencies they discover for later resolvers to satisfy.
type Context struct {
	Request
	AdditionalDependencies []model.DependencyRequest
}

// NewContext starts a resolution for req.
func NewContext(req Request) *Context {
	return &Context{Request: req}
}

// Resolver turns a resolution context into an installable set. A returned
// error is fatal; recoverable problems are reported through an invalid set.
type Resolver interface {
	Resolve(ctx context.Context, rc *Context) (plan.Set, error)
}

// Registry resolves registry packages. *remote.Resolver implements it.
type Registry interface {
	Resolve(ctx context.Context, specs []model.ExtensionSpec, additional []model.DependencyRequest, host model.HostContext) plan.Set
}

// Composite runs its children in order and composes their sets so that
// installation runs in reverse order.
type Composite struct {
	children []Resolver
}

// NewComposite creates a Composite over children.
func NewComposite(children ...Resolver) *Composite {
	return &Composite{children: children}
}

// Resolve runs every child even when an earlier one produced an invalid
// set, so the composite error lists every problem.
func (c *Composite) Resolve(ctx context.Context, rc *Context) (plan.Set, error) {
	sets := make([]plan.Set, 0, len(c.children))
	for _, child := range c.children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		set, err := child.Resolve(ctx, rc)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return plan.Composite(sets...), nil
}
