package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

// snapshot is an immutable collection of all page definitions indexed by ID.
type snapshot struct {
	pages    map[string]model.PageDefinition
	order    []string
	checksum string
}

// Registry is a read-optimized, thread-safe store of all loaded page
// definitions. It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.DefinitionFile) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions. Pages keep their load order.
func (r *Registry) Replace(defs []model.DefinitionFile) {
	s := &snapshot{pages: make(map[string]model.PageDefinition)}

	var checksumParts []string
	for _, def := range defs {
		checksumParts = append(checksumParts, def.Checksum)
		for _, p := range def.Pages {
			if _, dup := s.pages[p.ID]; !dup {
				s.order = append(s.order, p.ID)
			}
			s.pages[p.ID] = p
		}
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetPage returns the page definition with the given ID.
func (r *Registry) GetPage(pageID string) (model.PageDefinition, bool) {
	p, ok := r.current().pages[pageID]
	return p, ok
}

// AllPages returns all page definitions in load order.
func (r *Registry) AllPages() []model.PageDefinition {
	s := r.current()
	out := make([]model.PageDefinition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.pages[id])
	}
	return out
}

// Summaries returns the navigation entries of all pages in load order.
func (r *Registry) Summaries() []model.PageSummary {
	pages := r.AllPages()
	out := make([]model.PageSummary, 0, len(pages))
	for _, p := range pages {
		out = append(out, model.PageSummary{
			ID:     p.ID,
			Title:  p.Title,
			Entity: p.Entity,
			Route:  p.Route,
			Icon:   p.Icon,
		})
	}
	return out
}

// Count returns the number of loaded pages.
func (r *Registry) Count() int {
	return len(r.current().order)
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
