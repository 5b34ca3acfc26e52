// Package sdk is what extension modules build against: the capability the
// extly command loads and helpers to describe exports.
//
// A plugin module built with -buildmode=plugin exposes
//
//	func ExtensionExports() []loader.Export {
//		return []loader.Export{sdk.Export("hello", NewHello)}
//	}
package sdk

import (
	"github.com/glorpus-work/extly/pkg/loader"
)

// Extension is the capability the extly command loads.
type Extension interface {
	Name() string
}

// Export describes a concrete type built by the given constructors.
func Export(name string, constructors ...any) loader.Export {
	return loader.Export{Name: name, Constructors: constructors}
}

// Abstract describes a type that is never constructed.
func Abstract(name string) loader.Export {
	return loader.Export{Name: name, Abstract: true}
}
