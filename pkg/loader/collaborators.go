package loader

import (
	"log/slog"
	"reflect"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/model"
)

// Collaborators is the whitelist of values constructors may ask for, keyed
// by their exact type.
type Collaborators struct {
	values map[reflect.Type]reflect.Value
}

// NewCollaborators creates an empty whitelist.
func NewCollaborators() *Collaborators {
	return &Collaborators{values: make(map[reflect.Type]reflect.Value)}
}

// Provide registers v under T. Interface types are registered as such, so a
// constructor asking for the interface receives v.
func Provide[T any](c *Collaborators, v T) {
	c.values[reflect.TypeFor[T]()] = reflect.ValueOf(&v).Elem()
}

func (c *Collaborators) lookup(t reflect.Type) (reflect.Value, bool) {
	if c == nil {
		return reflect.Value{}, false
	}
	v, ok := c.values[t]
	return v, ok
}

// CollaboratorFactory supplies the whitelist for one package.
type CollaboratorFactory func(pkg *model.PackageMetadata) *Collaborators

// DefaultCollaborators offers a logger tagged with the package, the host
// environment and the package metadata.
func DefaultCollaborators(env model.HostEnvironment) CollaboratorFactory {
	return func(pkg *model.PackageMetadata) *Collaborators {
		c := NewCollaborators()
		Provide(c, logger.GetLogger().With(slog.String("package", pkg.ID)))
		Provide(c, env)
		Provide(c, pkg)
		return c
	}
}
