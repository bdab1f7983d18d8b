// Package registry implements the build-scoped identity registry for
// referenceable entities. It assigns and validates unique entity ids,
// enforces namespace-prefix rules and preserves first-declaration order for
// the numbering pass.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/prologbook/prologbook/internal/errors"
	"github.com/prologbook/prologbook/internal/types"
)

// EntityRegistry manages all entities registered during a build pass. It is
// an explicit build-session object: a full build starts from Reset, an
// incremental rebuild removes only the affected pages' entries and retains
// the rest.
type EntityRegistry struct {
	mu       sync.RWMutex
	entities map[string]*types.Entity
	// order holds ids in first-declaration order (page order, then in-page
	// order), which the numbering pass depends on.
	order []string
}

// NewEntityRegistry creates an empty registry.
func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{
		entities: make(map[string]*types.Entity),
	}
}

// Register validates and records an entity. The id must carry the namespace
// prefix of its kind, must not carry a file extension, and must be unique
// across all kinds within the build.
func (r *EntityRegistry) Register(entity *types.Entity) error {
	if !entity.Kind.Valid() {
		return errors.NewInternalError("unrecognised entity kind "+string(entity.Kind), nil)
	}
	if !strings.HasPrefix(entity.ID, entity.Kind.Prefix()) {
		return errors.ErrInvalidPrefix(entity.ID, entity.Kind.Prefix()).
			WithLocation(string(entity.Page), entity.Location.Line)
	}
	if strings.HasSuffix(entity.ID, ".pl") || strings.HasSuffix(entity.ID, ".md") {
		return errors.ErrInvalidPrefix(entity.ID, entity.Kind.Prefix()).
			WithLocation(string(entity.Page), entity.Location.Line)
	}
	if types.LocalName(entity.ID) == "" {
		return errors.ErrInvalidPrefix(entity.ID, entity.Kind.Prefix()).
			WithLocation(string(entity.Page), entity.Location.Line)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.entities[entity.ID]; exists {
		return errors.ErrDuplicateID(entity.ID, string(existing.Page)).
			WithLocation(string(entity.Page), entity.Location.Line)
	}

	r.entities[entity.ID] = entity
	r.order = append(r.order, entity.ID)

	return nil
}

// Lookup retrieves an entity by id, failing with UnknownId for dangling
// references.
func (r *EntityRegistry) Lookup(id string) (*types.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entity, exists := r.entities[id]
	if !exists {
		return nil, errors.ErrUnknownID(id)
	}
	return entity, nil
}

// Get retrieves an entity by id.
func (r *EntityRegistry) Get(id string) (*types.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entity, exists := r.entities[id]
	return entity, exists
}

// InOrder returns all entities in first-declaration order.
func (r *EntityRegistry) InOrder() []*types.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*types.Entity, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.entities[id])
	}
	return result
}

// ByKind returns the entities of one kind in first-declaration order.
func (r *EntityRegistry) ByKind(kind types.EntityKind) []*types.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*types.Entity
	for _, id := range r.order {
		if e := r.entities[id]; e.Kind == kind {
			result = append(result, e)
		}
	}
	return result
}

// OnPage returns the entities declared on the given page in declaration
// order.
func (r *EntityRegistry) OnPage(page types.PageRef) []*types.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*types.Entity
	for _, id := range r.order {
		if e := r.entities[id]; e.Page == page {
			result = append(result, e)
		}
	}
	return result
}

// RemovePage drops every entity declared on the given page, retaining
// entities on unaffected pages for incremental rebuilds. It returns the
// removed ids.
func (r *EntityRegistry) RemovePage(page types.PageRef) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	kept := r.order[:0]
	for _, id := range r.order {
		if r.entities[id].Page == page {
			delete(r.entities, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept

	return removed
}

// Pages returns the sorted set of pages with at least one registered entity.
func (r *EntityRegistry) Pages() []types.PageRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[types.PageRef]struct{})
	for _, e := range r.entities {
		seen[e.Page] = struct{}{}
	}
	pages := make([]types.PageRef, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	return pages
}

// Reset clears the registry at the start of a full build.
func (r *EntityRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*types.Entity)
	r.order = nil
}

// Count returns the number of registered entities.
func (r *EntityRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entities)
}
