package policy

import (
	"sort"
	"strings"
)

// App is an application that needs stretched overlay timing.
type App struct {
	ID   string // Package identifier as reported by the focus source
	Name string // Human-readable name for display
}

// DefaultSpecialApps returns the browsers and video apps known to emit
// transient focus events and repaint over the overlay during startup.
func DefaultSpecialApps() []App {
	return []App{
		{ID: "com.android.chrome", Name: "Chrome"},
		{ID: "com.google.android.youtube", Name: "YouTube"},
		{ID: "org.mozilla.firefox", Name: "Firefox"},
		{ID: "com.brave.browser", Name: "Brave"},
	}
}

// Registry holds the special-app allowlist.
// It is read concurrently after construction; Register is not safe
// to call while the registry is in use.
type Registry struct {
	apps map[string]App
}

// NewRegistry creates a registry with the default special apps.
func NewRegistry() *Registry {
	return NewRegistryWithApps(DefaultSpecialApps()...)
}

// NewRegistryWithApps creates a registry with custom apps (for config and tests).
func NewRegistryWithApps(apps ...App) *Registry {
	r := &Registry{
		apps: make(map[string]App, len(apps)),
	}
	for _, a := range apps {
		r.Register(a)
	}
	return r
}

// NewRegistryFromIDs creates a registry from bare identifiers.
// Blank identifiers are ignored.
func NewRegistryFromIDs(ids []string) *Registry {
	apps := make([]App, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		apps = append(apps, App{ID: id, Name: id})
	}
	return NewRegistryWithApps(apps...)
}

// Register adds an app to the registry.
func (r *Registry) Register(a App) {
	if a.Name == "" {
		a.Name = a.ID
	}
	r.apps[a.ID] = a
}

// IsSpecial reports whether id needs stretched timing.
func (r *Registry) IsSpecial(id string) bool {
	if r == nil || id == "" {
		return false
	}
	_, ok := r.apps[id]
	return ok
}

// Get returns an app by ID.
func (r *Registry) Get(id string) (App, bool) {
	a, ok := r.apps[id]
	return a, ok
}

// List returns all app IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.apps))
	for id := range r.apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
