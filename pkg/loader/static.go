package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/glorpus-work/extly/pkg/errors"
)

// StaticOpener serves modules compiled into the host. Modules are registered
// under a file name or a full path. An opened path matches a full-path
// registration first and falls back to its base name.
type StaticOpener struct {
	mu      sync.RWMutex
	modules map[string]func(lc *Context) ([]Export, error)
}

// NewStaticOpener creates an empty StaticOpener.
func NewStaticOpener() *StaticOpener {
	return &StaticOpener{modules: make(map[string]func(lc *Context) ([]Export, error))}
}

// Register serves exports for files named name, or for the single file at
// name when it contains a directory.
func (o *StaticOpener) Register(name string, exports ...Export) {
	o.RegisterFunc(name, func(*Context) ([]Export, error) { return exports, nil })
}

// RegisterFunc serves the result of init for files named name. init runs
// every time a context opens the module.
func (o *StaticOpener) RegisterFunc(name string, init func(lc *Context) ([]Export, error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modules[staticKey(name)] = init
}

func staticKey(name string) string {
	if filepath.Base(name) != name {
		return strings.ToLower(filepath.Clean(name))
	}
	return strings.ToLower(name)
}

func (o *StaticOpener) Open(lc *Context, path string) (Module, error) {
	o.mu.RLock()
	init, ok := o.modules[strings.ToLower(filepath.Clean(path))]
	if !ok {
		init, ok = o.modules[strings.ToLower(filepath.Base(path))]
	}
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrLibraryNotFound, path)
	}
	exports, err := init(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", path, err)
	}
	return &module{path: path, exports: exports}, nil
}
