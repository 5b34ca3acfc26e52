package loader

import (
	"fmt"
	"plugin"

	"github.com/glorpus-work/extly/pkg/errors"
)

// ExportsSymbol is the function a plugin module exposes. Its type must be
// func() []loader.Export.
const ExportsSymbol = "ExtensionExports"

// PluginOpener opens Go plugin shared objects.
type PluginOpener struct{}

func (PluginOpener) Open(_ *Context, path string) (Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrPluginUnsupported, path, err)
	}
	sym, err := p.Lookup(ExportsSymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrPluginUnsupported, path, err)
	}
	exports, ok := sym.(func() []Export)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %s has type %T", errors.ErrPluginUnsupported, path, ExportsSymbol, sym)
	}
	// Go cannot unload plugins; closing only drops the context's handle.
	return &module{path: path, exports: exports()}, nil
}
