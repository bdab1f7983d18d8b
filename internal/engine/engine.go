// Package engine orchestrates a build session over the whole book. A build
// runs in two phases: phase 1 parses pages independently (directive
// conversion, option parsing, content resolution), phase 2 runs globally
// over the complete entity set (numbering, solution fallback, association
// validation, reference rendering, artifact composition and emission).
//
// Phase 1 failures are scoped: a broken directive produces a diagnostic and
// drops only that entity, a broken manifest drops only that page. Phase 2
// failures that invalidate global state (an unlinked solution, a cross-page
// inherit) abort the build.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prologbook/prologbook/internal/compose"
	"github.com/prologbook/prologbook/internal/config"
	"github.com/prologbook/prologbook/internal/errors"
	"github.com/prologbook/prologbook/internal/logging"
	"github.com/prologbook/prologbook/internal/numbering"
	"github.com/prologbook/prologbook/internal/page"
	"github.com/prologbook/prologbook/internal/refs"
	"github.com/prologbook/prologbook/internal/registry"
	"github.com/prologbook/prologbook/internal/resolver"
	"github.com/prologbook/prologbook/internal/tracker"
	"github.com/prologbook/prologbook/internal/types"
)

// Diagnostic is one attributed, non-fatal build problem.
type Diagnostic struct {
	Page types.PageRef
	Err  error
}

// RenderedRef pairs a reference token with its resolved link text.
type RenderedRef struct {
	Ref  types.Reference
	Text string
}

// Artifact pairs an emitted composite artifact with the entity it belongs to.
type Artifact struct {
	EntityID string
	Location types.ArtifactLocation
}

// Report summarises one build pass.
type Report struct {
	// Pages lists the pages parsed during this pass.
	Pages []types.PageRef
	// Affected lists the pages whose rendered output changed: the parsed
	// pages plus every page touched by a renumbered entity, declared or
	// referenced.
	Affected []types.PageRef
	// Entities is the registered entity count after the pass.
	Entities int
	// Renumbered lists the ids whose sequence number changed.
	Renumbered []string
	Rendered   []RenderedRef
	Artifacts  []Artifact
	// Diagnostics holds the non-fatal problems of the whole current build
	// state, including ones carried over from pages not re-parsed this pass.
	Diagnostics []Diagnostic
}

// HasDiagnostics reports whether any non-fatal problem was recorded.
func (r *Report) HasDiagnostics() bool {
	return len(r.Diagnostics) > 0
}

// pageState is the retained phase-1 result for one page. It survives
// incremental rebuilds of other pages.
type pageState struct {
	source      page.Source
	manifest    *page.Manifest
	entities    []*types.Entity
	diagnostics []Diagnostic
}

// Session is a long-lived build session, reused across incremental rebuilds
// by the watch loop.
type Session struct {
	cfg *config.Config
	log logging.Logger

	registry *registry.EntityRegistry
	changes  *tracker.ChangeTracker
	resolver *resolver.ContentResolver
	assigner *numbering.Assigner
	renderer *refs.Renderer
	builder  *compose.Builder
	loader   *page.Loader

	mu      sync.Mutex
	sources []page.Source
	pages   map[types.PageRef]*pageState
}

// NewSession wires a session from the configuration.
func NewSession(cfg *config.Config, log logging.Logger) *Session {
	reg := registry.NewEntityRegistry()
	changes := tracker.NewChangeTracker()
	res := resolver.NewContentResolver(cfg.Content, changes)

	return &Session{
		cfg:      cfg,
		log:      log.WithComponent("engine"),
		registry: reg,
		changes:  changes,
		resolver: res,
		assigner: numbering.NewAssigner(),
		renderer: refs.NewRenderer(reg, cfg.Numbering),
		builder:  compose.NewBuilder(reg, res, cfg.Book, cfg.Swish),
		loader:   page.NewLoader(changes),
	}
}

// Registry exposes the entity registry for read-only inspection (the list
// command).
func (s *Session) Registry() *registry.EntityRegistry {
	return s.registry
}

// Tracker exposes the change tracker so the watch loop can map filesystem
// events onto pages.
func (s *Session) Tracker() *tracker.ChangeTracker {
	return s.changes
}

// Build runs a full build: every page is parsed and the global pass runs
// over the complete entity set.
func (s *Session) Build(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources, err := s.loader.Discover(s.cfg.Book.Pages)
	if err != nil {
		return nil, err
	}

	s.sources = sources
	s.pages = make(map[types.PageRef]*pageState, len(sources))
	s.changes.Reset()

	states, err := s.parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	parsed := make([]types.PageRef, 0, len(states))
	for _, state := range states {
		s.pages[state.source.Page] = state
		parsed = append(parsed, state.source.Page)
	}

	s.log.Info(ctx, "full build", "pages", len(parsed))
	return s.finish(ctx, parsed)
}

// Rebuild re-parses only the given pages and re-runs the global pass over
// the retained state of every other page. Page discovery is refreshed first,
// so newly created or deleted page files are picked up.
func (s *Session) Rebuild(ctx context.Context, pages []types.PageRef) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources, err := s.loader.Discover(s.cfg.Book.Pages)
	if err != nil {
		return nil, err
	}
	s.sources = sources

	known := make(map[types.PageRef]page.Source, len(sources))
	for _, src := range sources {
		known[src.Page] = src
	}

	// drop pages whose manifest file disappeared
	for ref := range s.pages {
		if _, ok := known[ref]; !ok {
			delete(s.pages, ref)
			s.changes.ResetPage(ref)
		}
	}

	requested := make(map[types.PageRef]struct{}, len(pages))
	for _, ref := range pages {
		requested[ref] = struct{}{}
	}
	var stale []page.Source
	for _, src := range sources {
		_, wanted := requested[src.Page]
		_, seen := s.pages[src.Page]
		if wanted || !seen {
			stale = append(stale, src)
			s.changes.ResetPage(src.Page)
		}
	}

	states, err := s.parse(ctx, stale)
	if err != nil {
		return nil, err
	}
	parsed := make([]types.PageRef, 0, len(states))
	for _, state := range states {
		s.pages[state.source.Page] = state
		parsed = append(parsed, state.source.Page)
	}

	s.log.Info(ctx, "incremental rebuild", "pages", len(parsed))
	return s.finish(ctx, parsed)
}

// OutdatedPages returns the pages whose tracked dependencies changed on disk
// since they were read.
func (s *Session) OutdatedPages() []types.PageRef {
	return s.changes.OutdatedPages()
}

// PagesForFiles maps changed file paths onto the pages depending on them.
func (s *Session) PagesForFiles(paths []string) []types.PageRef {
	return s.changes.FilesChanged(paths)
}

// parse runs phase 1 over the given sources, page-parallel.
func (s *Session) parse(ctx context.Context, sources []page.Source) ([]*pageState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	states := make([]*pageState, len(sources))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, src page.Source) {
			defer wg.Done()
			defer func() { <-sem }()
			states[i] = s.parsePage(src)
		}(i, src)
	}
	wg.Wait()

	return states, ctx.Err()
}

// parsePage loads one manifest and converts its directives into entities.
// Every failure is recorded as a page-scoped diagnostic.
func (s *Session) parsePage(src page.Source) *pageState {
	state := &pageState{source: src}

	manifest, err := s.loader.Load(src)
	if err != nil {
		state.diagnostics = append(state.diagnostics, Diagnostic{Page: src.Page, Err: err})
		return state
	}
	state.manifest = manifest

	anonymous := 0
	for _, directive := range manifest.Directives {
		if directive.Kind == types.KindInfobox && directive.ID == "" {
			anonymous++
			directive.ID = anonymousInfoboxID(src.Page, anonymous)
		}
		entity, err := s.entityFromDirective(directive)
		if err != nil {
			state.diagnostics = append(state.diagnostics, Diagnostic{Page: src.Page, Err: err})
			continue
		}
		state.entities = append(state.entities, entity)
	}

	return state
}

// anonymousInfoboxID generates a page-local target for an infobox declared
// without an id. The slash substitution keeps the local name out of the
// authorable namespace.
func anonymousInfoboxID(ref types.PageRef, n int) string {
	slug := strings.ReplaceAll(string(ref), "/", "-")
	return types.KindInfobox.Prefix() + slug + "-box-" + strconv.Itoa(n)
}

// entityFromDirective validates a directive's options and resolves its
// content.
func (s *Session) entityFromDirective(d types.Directive) (*types.Entity, error) {
	entity := &types.Entity{
		ID:       d.ID,
		Kind:     d.Kind,
		Page:     d.Page,
		Location: types.SourceLocation{Page: d.Page, Line: d.Line},
		Title:    d.Title,
	}

	switch d.Kind {
	case types.KindInfobox:
		if d.Title == "" {
			return nil, directiveError(d, "an infobox requires a title")
		}
		if err := rejectOptions(d); err != nil {
			return nil, err
		}
	case types.KindExercise, types.KindSolution:
		if err := rejectOptions(d); err != nil {
			return nil, err
		}
	case types.KindCode:
		attrs, err := parseCodeOptions(d)
		if err != nil {
			return nil, err
		}
		entity.Code = attrs
	case types.KindQuery:
		attrs, err := parseQueryOptions(d)
		if err != nil {
			return nil, err
		}
		entity.Query = attrs
	}

	content, err := s.resolver.Resolve(d)
	if err != nil {
		return nil, err
	}
	entity.Content = content

	return entity, nil
}

// finish runs phase 2. The registry is rebuilt from the retained page states
// in page order on every pass, which keeps first-declaration order stable no
// matter which subset of pages was re-parsed.
func (s *Session) finish(ctx context.Context, parsed []types.PageRef) (*Report, error) {
	report := &Report{Pages: parsed}

	s.registry.Reset()
	for _, src := range s.sources {
		state, ok := s.pages[src.Page]
		if !ok {
			continue
		}
		report.Diagnostics = append(report.Diagnostics, state.diagnostics...)
		for _, entity := range state.entities {
			if err := s.registry.Register(entity); err != nil {
				report.Diagnostics = append(report.Diagnostics,
					Diagnostic{Page: entity.Page, Err: err})
			}
		}
	}
	report.Entities = s.registry.Count()

	renumbered, err := s.assigner.Assign(s.registry)
	if err != nil {
		return report, err
	}
	report.Renumbered = renumbered

	if err := s.fillSolutionContent(); err != nil {
		return report, err
	}

	for _, entity := range s.registry.InOrder() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch entity.Kind {
		case types.KindCode:
			if err := s.builder.ValidateAssociations(entity); err != nil {
				return report, err
			}
			composed, err := s.builder.Compose(entity)
			if err != nil {
				return report, err
			}
			if !entity.Code.BuildFile {
				continue
			}
			location, err := s.builder.Emit(entity, composed)
			if err != nil {
				// the page still renders; its artifact link will 404
				s.log.Warn(ctx, err, "artifact emission failed", "entity", entity.ID)
				report.Diagnostics = append(report.Diagnostics,
					Diagnostic{Page: entity.Page, Err: err})
				continue
			}
			report.Artifacts = append(report.Artifacts,
				Artifact{EntityID: entity.ID, Location: location})
		case types.KindQuery:
			if err := s.builder.ValidateAssociations(entity); err != nil {
				return report, err
			}
		}
	}

	for _, src := range s.sources {
		state, ok := s.pages[src.Page]
		if !ok || state.manifest == nil {
			continue
		}
		for _, ref := range state.manifest.References {
			text, err := s.renderer.Render(ref)
			if err != nil {
				report.Diagnostics = append(report.Diagnostics,
					Diagnostic{Page: ref.Page, Err: err})
				continue
			}
			report.Rendered = append(report.Rendered, RenderedRef{Ref: ref, Text: text})
		}
	}

	report.Affected = s.affectedPages(parsed, renumbered)

	s.log.Info(ctx, "build pass complete",
		"entities", report.Entities,
		"artifacts", len(report.Artifacts),
		"renumbered", len(renumbered),
		"diagnostics", len(report.Diagnostics))

	return report, nil
}

// fillSolutionContent copies the linked exercise's resolved content into
// every solution that deferred to it. Runs after numbering, which already
// guaranteed each solution's exercise exists.
func (s *Session) fillSolutionContent() error {
	for _, solution := range s.registry.ByKind(types.KindSolution) {
		if solution.Content.Source != types.SourceExercise {
			continue
		}
		exercise, err := s.registry.Lookup(types.ExerciseID(solution.ID))
		if err != nil {
			return errors.NewInternalError(
				"solution "+solution.ID+" survived numbering without an exercise", err)
		}
		solution.Content.Text = exercise.Content.Text
		solution.Content.Path = exercise.Content.Path
		// edits to the exercise's file must invalidate the solution's page too
		if solution.Content.Path != "" {
			s.changes.Watch(solution.Content.Path, solution.Page)
		}
	}
	return nil
}

// affectedPages unions the parsed pages with every page a renumbered entity
// is declared on or referenced from.
func (s *Session) affectedPages(parsed []types.PageRef, renumbered []string) []types.PageRef {
	affected := make(map[types.PageRef]struct{}, len(parsed))
	for _, ref := range parsed {
		affected[ref] = struct{}{}
	}

	moved := make(map[string]struct{}, len(renumbered))
	for _, id := range renumbered {
		moved[id] = struct{}{}
		if entity, ok := s.registry.Get(id); ok {
			affected[entity.Page] = struct{}{}
		}
	}
	if len(moved) > 0 {
		for _, state := range s.pages {
			if state.manifest == nil {
				continue
			}
			for _, ref := range state.manifest.References {
				if _, ok := moved[ref.TargetID]; ok {
					affected[state.source.Page] = struct{}{}
					break
				}
			}
		}
	}

	pages := make([]types.PageRef, 0, len(affected))
	for ref := range affected {
		pages = append(pages, ref)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	return pages
}

// rejectOptions fails on any option for kinds that take none.
func rejectOptions(d types.Directive) error {
	for key := range d.Options {
		return directiveError(d, fmt.Sprintf("%s directives take no %q option", d.Kind, key))
	}
	return nil
}

// parseCodeOptions maps a code directive's options onto CodeAttrs.
func parseCodeOptions(d types.Directive) (*types.CodeAttrs, error) {
	attrs := &types.CodeAttrs{}
	for key, value := range d.Options {
		switch key {
		case "inherit-id":
			ids, err := parseIDList(d, key, value, types.KindCode)
			if err != nil {
				return nil, err
			}
			attrs.InheritIDs = ids
		case "query-id":
			ids, err := parseIDList(d, key, value, types.KindQuery)
			if err != nil {
				return nil, err
			}
			attrs.QueryIDs = ids
		case "query-text":
			attrs.QueryText = splitLines(value)
		case "source-text-start":
			attrs.SourceTextStart = strings.TrimSpace(value)
		case "source-text-end":
			attrs.SourceTextEnd = strings.TrimSpace(value)
		case "hide-examples":
			flag, err := parseFlag(d, key, value)
			if err != nil {
				return nil, err
			}
			attrs.HideExamples = &flag
		case "build-file":
			flag, err := parseFlag(d, key, value)
			if err != nil {
				return nil, err
			}
			attrs.BuildFile = flag
		default:
			return nil, directiveError(d, fmt.Sprintf("unknown code option %q", key))
		}
	}
	return attrs, nil
}

// parseQueryOptions maps a query directive's options onto QueryAttrs.
func parseQueryOptions(d types.Directive) (*types.QueryAttrs, error) {
	attrs := &types.QueryAttrs{Inline: d.Inline}
	for key, value := range d.Options {
		switch key {
		case "source-id":
			if d.Inline {
				return nil, directiveError(d, "an inline query cannot set source-id")
			}
			ids, err := parseIDList(d, key, value, types.KindCode)
			if err != nil {
				return nil, err
			}
			attrs.SourceIDs = ids
		default:
			return nil, directiveError(d, fmt.Sprintf("unknown query option %q", key))
		}
	}
	return attrs, nil
}

// parseIDList splits a whitespace-separated id option, enforcing the target
// namespace prefix, the extension ban and in-list uniqueness.
func parseIDList(d types.Directive, option, value string, want types.EntityKind) ([]string, error) {
	fields := strings.Fields(value)
	ids := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, id := range fields {
		if !strings.HasPrefix(id, want.Prefix()) || strings.HasSuffix(id, ".pl") {
			return nil, errors.ErrInvalidPrefix(id, want.Prefix()).
				WithLocation(string(d.Page), d.Line)
		}
		if _, dup := seen[id]; dup {
			return nil, directiveError(d, fmt.Sprintf("duplicate id %q in %s", id, option))
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// splitLines breaks a multi-line option value into its non-empty lines.
func splitLines(value string) []string {
	var lines []string
	for _, line := range strings.Split(value, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseFlag interprets a bare option as true and otherwise parses a boolean.
func parseFlag(d types.Directive, option, value string) (bool, error) {
	if value == "" {
		return true, nil
	}
	flag, err := strconv.ParseBool(value)
	if err != nil {
		return false, directiveError(d, fmt.Sprintf("%s must be a boolean, got %q", option, value))
	}
	return flag, nil
}

func directiveError(d types.Directive, message string) error {
	err := errors.NewConfigError(message).WithLocation(string(d.Page), d.Line)
	if d.ID != "" {
		err = err.WithEntity(d.ID)
	}
	return err
}
