// Package numbering assigns sequence numbers to exercise/solution pairs.
// It runs once per build, strictly after every page is parsed, and keeps a
// number cache keyed by id across incremental builds so the engine can tell
// which pages need re-rendering because a number moved.
package numbering

import (
	"sync"

	"github.com/prologbook/prologbook/internal/errors"
	"github.com/prologbook/prologbook/internal/registry"
	"github.com/prologbook/prologbook/internal/types"
)

// Assigner numbers exercises 1..N in first-declaration order (page order,
// then in-page order) and stamps each linked solution with its exercise's
// number.
type Assigner struct {
	mu    sync.Mutex
	cache map[string]int
}

// NewAssigner creates an assigner with an empty number cache.
func NewAssigner() *Assigner {
	return &Assigner{cache: make(map[string]int)}
}

// Assign stamps numbers onto the registered exercises and solutions and
// returns the ids whose number differs from the previous build, so only
// their pages re-render. A solution without a matching exercise is a
// build-fatal error, not a silently skipped entity.
func (a *Assigner) Assign(reg *registry.EntityRegistry) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	exercises := reg.ByKind(types.KindExercise)

	next := make(map[string]int, len(exercises))
	var changed []string
	for i, exercise := range exercises {
		number := i + 1
		exercise.Number = number
		next[exercise.ID] = number
		if previous, ok := a.cache[exercise.ID]; !ok || previous != number {
			changed = append(changed, exercise.ID)
		}
	}

	for _, solution := range reg.ByKind(types.KindSolution) {
		exerciseID := types.ExerciseID(solution.ID)
		exercise, err := reg.Lookup(exerciseID)
		if err != nil {
			return nil, errors.ErrUnlinkedSolution(solution.ID, exerciseID).
				WithLocation(string(solution.Page), solution.Location.Line)
		}
		solution.Number = exercise.Number
		next[solution.ID] = exercise.Number
		if previous, ok := a.cache[solution.ID]; !ok || previous != exercise.Number {
			changed = append(changed, solution.ID)
		}
	}

	// the cache mirrors exactly the current entity set; stale ids drop out
	a.cache = next

	return changed, nil
}

// NumberOf returns the cached number for an id from the last Assign pass.
func (a *Assigner) NumberOf(id string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	number, ok := a.cache[id]
	return number, ok
}

// Reset clears the cache, forcing the next Assign to report every id as
// changed.
func (a *Assigner) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cache = make(map[string]int)
}
