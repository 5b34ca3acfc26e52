package orchestrator

import (
	"github.com/glorpus-work/extly/pkg/resolver"
)

// Orchestrator ties the resolver chain and the registry sources together
// for installs.
type Orchestrator struct {
	Resolver resolver.Resolver
	Hooks    Hooks // Hooks for progress and event notifications
}

// Event represents a simple progress notification.
type Event struct {
	Phase string // syncing|planning|installing|cleaning|done|error
	ID    string // package or source name
	Msg   string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

// InstallOptions control orchestrator install execution.
type InstallOptions struct {
	DryRun bool
}

// CleanupOptions control removal of stale package folders.
type CleanupOptions struct {
	DryRun bool
	// Preserve names top-level folders of the extensions directory that are
	// never touched.
	Preserve []string
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}
