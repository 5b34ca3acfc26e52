package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/errors"
)

// Context resolves module references by file name against a fixed set of
// library files instead of any search path. It is reference counted: it
// starts with one reference and closes every module it opened, in reverse
// open order, when the last reference is released.
type Context struct {
	opener    Opener
	libraries []string

	mu       sync.Mutex
	refs     int
	modules  map[string]Module
	order    []Module
	unloaded bool
}

// NewContext creates a context over libraries. When two libraries share a
// file name the first one wins.
func NewContext(libraries []string, opener Opener) *Context {
	return &Context{
		opener:    opener,
		libraries: libraries,
		refs:      1,
		modules:   make(map[string]Module),
	}
}

// Locate returns the library file whose base name matches name.
func (c *Context) Locate(name string) (string, error) {
	base := filepath.Base(name)
	for _, lib := range c.libraries {
		if strings.EqualFold(filepath.Base(lib), base) {
			return lib, nil
		}
	}
	return "", fmt.Errorf("%w: %s", errors.ErrLibraryNotFound, name)
}

// Require opens the library named name, locating it by file name.
func (c *Context) Require(name string) (Module, error) {
	path, err := c.Locate(name)
	if err != nil {
		return nil, err
	}
	return c.Open(path)
}

// Open opens the module at path. Modules are keyed by their cleaned path, so
// entry points of different packages that share a file name stay distinct;
// opening the same path again returns the module already open.
func (c *Context) Open(path string) (Module, error) {
	key := moduleKey(path)

	c.mu.Lock()
	if c.unloaded {
		c.mu.Unlock()
		return nil, errors.ErrContextUnloaded
	}
	if m, ok := c.modules[key]; ok {
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	// The opener may call back into Require, so it runs unlocked.
	m, err := c.opener.Open(c, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.modules[key]; ok {
		_ = m.Close()
		return existing, nil
	}
	if c.unloaded {
		_ = m.Close()
		return nil, errors.ErrContextUnloaded
	}
	c.modules[key] = m
	c.order = append(c.order, m)
	logger.Debug("Opened module", logger.Fields{"path": path})
	return m, nil
}

func moduleKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// Modules returns the open modules in open order.
func (c *Context) Modules() []Module {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Module(nil), c.order...)
}

// Acquire adds a reference.
func (c *Context) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unloaded {
		return errors.ErrContextUnloaded
	}
	c.refs++
	return nil
}

// Release drops a reference. Dropping the last one closes every module.
func (c *Context) Release() error {
	c.mu.Lock()
	if c.unloaded {
		c.mu.Unlock()
		return errors.ErrContextUnloaded
	}
	c.refs--
	if c.refs > 0 {
		c.mu.Unlock()
		return nil
	}
	c.unloaded = true
	modules := c.order
	c.order = nil
	c.modules = nil
	c.mu.Unlock()

	var result *multierror.Error
	for i := len(modules) - 1; i >= 0; i-- {
		if err := modules[i].Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", modules[i].Path(), err))
		}
	}
	return result.ErrorOrNil()
}

// Unloaded reports whether the last reference was released.
func (c *Context) Unloaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unloaded
}
