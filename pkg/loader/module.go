// Package loader instantiates extension entry points from installed packages
// inside a load context that is scoped to one load and released as a unit.
package loader

//go:generate mockgen -destination=./mocks/loader.go -package=mocks . Module,Opener

// Export describes one type a module makes available. Constructors are
// functions returning the type, optionally followed by an error; their
// parameters must be collaborator types.
type Export struct {
	Name         string
	Abstract     bool
	Constructors []any
}

// Module is an opened library inside a Context.
type Module interface {
	Path() string
	Exports() []Export
	// Close releases what the module holds. The Context calls it exactly
	// once, when its last reference is released.
	Close() error
}

// Opener opens a module file for a Context. The Context is passed so that a
// module can pull in the libraries it references through Require.
type Opener interface {
	Open(lc *Context, path string) (Module, error)
}

type module struct {
	path    string
	exports []Export
	closer  func() error
}

func (m *module) Path() string      { return m.path }
func (m *module) Exports() []Export { return m.exports }

func (m *module) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}
