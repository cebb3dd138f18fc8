package page

import (
	"context"
	"sync"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/definition"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// Registry keeps one open page per definition id.
type Registry struct {
	defs *definition.Registry
	deps Deps

	mu    sync.Mutex
	pages map[string]*Page
}

// NewRegistry creates an empty page registry over the loaded definitions.
func NewRegistry(defs *definition.Registry, deps Deps) *Registry {
	return &Registry{defs: defs, deps: deps, pages: make(map[string]*Page)}
}

// Get returns the page for id, opening it on scope the first time. An open
// page is re-scoped when scope is set and differs from its current scope.
func (r *Registry) Get(ctx context.Context, id, scope string) (*Page, error) {
	r.mu.Lock()
	p, ok := r.pages[id]
	if !ok {
		def, found := r.defs.GetPage(id)
		if !found {
			r.mu.Unlock()
			return nil, model.Errorf(model.ErrNotFound, "page %q not found", id)
		}
		var err error
		p, err = New(def, r.deps)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.pages[id] = p
		r.mu.Unlock()
		p.Open(ctx, scope)
		return p, nil
	}
	r.mu.Unlock()

	if scope != "" && scope != p.Scope() {
		p.SetScope(ctx, scope)
	}
	return p, nil
}

// Lookup returns an already open page.
func (r *Registry) Lookup(id string) (*Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[id]
	if !ok {
		if _, found := r.defs.GetPage(id); !found {
			return nil, model.Errorf(model.ErrNotFound, "page %q not found", id)
		}
		return nil, model.Errorf(model.ErrBadRequest, "page %q is not open", id)
	}
	return p, nil
}

// Close closes one page. It is opened again by the next Get.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	p, ok := r.pages[id]
	delete(r.pages, id)
	r.mu.Unlock()
	if ok {
		p.Close()
	}
}

// CloseAll closes every open page.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pages := r.pages
	r.pages = make(map[string]*Page)
	r.mu.Unlock()
	for _, p := range pages {
		p.Close()
	}
}

// Open returns the number of open pages.
func (r *Registry) Open() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}
