// Package hooks runs the Tengo scripts a package ships to react to its own
// installation.
package hooks

// HookType represents the type of hook.
type HookType string

// Supported hook types.
const (
	PostInstall HookType = "post-install"
	PostBuild   HookType = "post-build"
)

// HookDir is the package-relative folder holding hook scripts.
const HookDir = "hooks"

// ScriptExtension is the file extension of hook scripts.
const ScriptExtension = ".tengo"

// Hook represents a hook script with its type and content.
type Hook struct {
	Type    HookType
	Content string
}

// HookContext contains information passed to hooks.
type HookContext struct {
	PackageID      string
	PackageVersion string
	// InstallPath is the folder the package was installed into.
	InstallPath string
	// ExtensionsDir is the shared extensions folder of the host.
	ExtensionsDir string
	Vars          map[string]interface{}
}
