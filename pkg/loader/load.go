package loader

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
)

// State is the lifecycle position of a Loaded set.
type State int

const (
	StateLoaded State = iota
	StateUnloading
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateUnloading:
		return "unloading"
	case StateUnloaded:
		return "unloaded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Instance is one constructed entry point.
type Instance[T any] struct {
	Package string
	Type    string
	Value   T
}

// Loaded owns the load context and the entry point instances created in it.
type Loaded[T any] struct {
	lc *Context

	mu        sync.Mutex
	state     State
	instances []Instance[T]
}

// Instances returns the constructed entry points in package order.
func (l *Loaded[T]) Instances() []Instance[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Instance[T](nil), l.instances...)
}

// Values returns the entry point values in package order.
func (l *Loaded[T]) Values() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, 0, len(l.instances))
	for _, inst := range l.instances {
		out = append(out, inst.Value)
	}
	return out
}

// State returns the current lifecycle state.
func (l *Loaded[T]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Context returns the load context.
func (l *Loaded[T]) Context() *Context {
	return l.lc
}

// Close disposes every instance implementing io.Closer in reverse order,
// forgets them and then releases the load context. Later calls are no-ops.
func (l *Loaded[T]) Close() error {
	l.mu.Lock()
	if l.state != StateLoaded {
		l.mu.Unlock()
		return nil
	}
	l.state = StateUnloading
	instances := l.instances
	l.instances = nil
	l.mu.Unlock()

	var result *multierror.Error
	for i := len(instances) - 1; i >= 0; i-- {
		c, ok := any(instances[i].Value).(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", instances[i].Type, err))
		}
	}
	if err := l.lc.Release(); err != nil {
		result = multierror.Append(result, err)
	}

	l.mu.Lock()
	l.state = StateUnloaded
	l.mu.Unlock()
	return result.ErrorOrNil()
}

// Load opens the entry point of every installed package in a fresh Context
// and constructs the single export implementing T. Failures on root packages
// abort the load and are returned as *errors.ExtensionError; dependencies
// that fail are skipped.
func Load[T any](ctx context.Context, installed *model.InstalledPackages, opener Opener, factory CollaboratorFactory) (*Loaded[T], error) {
	l := &Loaded[T]{lc: NewContext(installed.LibraryPaths(), opener)}
	if installed == nil {
		return l, nil
	}

	for _, pkg := range installed.Packages {
		if err := ctx.Err(); err != nil {
			_ = l.Close()
			return nil, err
		}
		inst, err := loadPackage[T](l.lc, pkg, factory)
		if err != nil {
			if pkg.IsRoot() {
				if cerr := l.Close(); cerr != nil {
					logger.Warn("Failed to unload after load error", logger.Fields{"error": cerr.Error()})
				}
				return nil, errors.Fail("load", pkg.ID, err)
			}
			logger.Debug("Skipping dependency without loadable entry point", logger.Fields{"package": pkg.ID, "reason": err.Error()})
			continue
		}
		logger.Debug("Loaded extension", logger.Fields{"package": pkg.ID, "type": inst.Type})
		l.instances = append(l.instances, *inst)
	}
	return l, nil
}

func loadPackage[T any](lc *Context, pkg *model.PackageMetadata, factory CollaboratorFactory) (*Instance[T], error) {
	entry := pkg.EntryPointPath()
	if entry == "" {
		return nil, errors.ErrEntryPointNotFound
	}
	mod, err := lc.Open(entry)
	if err != nil {
		return nil, err
	}

	target := reflect.TypeFor[T]()
	export, err := findImplementation(mod, target)
	if err != nil {
		return nil, err
	}
	var collaborators *Collaborators
	if factory != nil {
		collaborators = factory(pkg)
	}
	value, err := construct(export, target, collaborators)
	if err != nil {
		return nil, err
	}
	return &Instance[T]{Package: pkg.ID, Type: export.Name, Value: value.Interface().(T)}, nil
}

func findImplementation(mod Module, target reflect.Type) (*Export, error) {
	var found []*Export
	exports := mod.Exports()
	for i := range exports {
		e := &exports[i]
		if e.Abstract || !produces(e, target) {
			continue
		}
		found = append(found, e)
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s in %s", errors.ErrNoImplementation, target, mod.Path())
	case 1:
		return found[0], nil
	default:
		names := make([]string, 0, len(found))
		for _, e := range found {
			names = append(names, e.Name)
		}
		return nil, fmt.Errorf("%w: %s in %s: %s", errors.ErrAmbiguousImplementation, target, mod.Path(), strings.Join(names, ", "))
	}
}

var errorType = reflect.TypeFor[error]()

// produces reports whether any constructor of e returns a value assignable
// to target.
func produces(e *Export, target reflect.Type) bool {
	for _, c := range e.Constructors {
		if rt := resultType(reflect.TypeOf(c)); rt != nil && rt.AssignableTo(target) {
			return true
		}
	}
	return false
}

// resultType returns the constructed type of a func returning T or
// (T, error), or nil for anything else.
func resultType(ft reflect.Type) reflect.Type {
	if ft == nil || ft.Kind() != reflect.Func || ft.IsVariadic() {
		return nil
	}
	switch ft.NumOut() {
	case 1:
		return ft.Out(0)
	case 2:
		if ft.Out(1) == errorType {
			return ft.Out(0)
		}
	}
	return nil
}

func construct(e *Export, target reflect.Type, collaborators *Collaborators) (reflect.Value, error) {
	var rejected reflect.Type
	for _, c := range e.Constructors {
		fv := reflect.ValueOf(c)
		rt := resultType(fv.Type())
		if rt == nil || !rt.AssignableTo(target) {
			continue
		}
		args := make([]reflect.Value, 0, fv.Type().NumIn())
		for i := 0; i < fv.Type().NumIn(); i++ {
			arg, ok := collaborators.lookup(fv.Type().In(i))
			if !ok {
				rejected = fv.Type().In(i)
				break
			}
			args = append(args, arg)
		}
		if len(args) != fv.Type().NumIn() {
			continue
		}
		return invoke(e.Name, fv, args)
	}
	if rejected != nil {
		return reflect.Value{}, fmt.Errorf("%w: %s: parameter type %s is not a collaborator", errors.ErrBadConstructor, e.Name, rejected)
	}
	return reflect.Value{}, fmt.Errorf("%w: %s", errors.ErrBadConstructor, e.Name)
}

func invoke(name string, fn reflect.Value, args []reflect.Value) (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", errors.ErrConstruction, name, r)
		}
	}()
	out := fn.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: %s: %w", errors.ErrConstruction, name, out[1].Interface().(error))
	}
	if isNil(out[0]) {
		return reflect.Value{}, fmt.Errorf("%w: %s: constructor returned nil", errors.ErrConstruction, name)
	}
	return out[0], nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	}
	return false
}
