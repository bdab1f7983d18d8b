// Package types provides common type definitions used throughout prologbook.
// This package contains shared types to avoid circular dependencies between packages.
package types

import "strings"

// EntityKind identifies one of the five referenceable content block kinds.
// The set is closed: directive dispatch is a switch over these values, not
// an open plugin registry.
type EntityKind string

const (
	// KindInfobox is a titled information box (`ibox:` namespace).
	KindInfobox EntityKind = "ibox"
	// KindExercise is a numbered exercise (`ex:` namespace).
	KindExercise EntityKind = "ex"
	// KindSolution is the solution paired with an exercise (`sol:` namespace).
	// Solutions are derived from the exercise id, never authored with their
	// own free-form label.
	KindSolution EntityKind = "sol"
	// KindCode is an interactive SWISH code box (`swish:` namespace).
	KindCode EntityKind = "swish"
	// KindQuery is a SWISH query box or inline query listing (`swishq:` namespace).
	KindQuery EntityKind = "swishq"
)

// Prefix returns the namespace prefix entity ids of this kind must carry,
// including the trailing colon.
func (k EntityKind) Prefix() string {
	return string(k) + ":"
}

// Valid reports whether k is one of the five recognised kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindInfobox, KindExercise, KindSolution, KindCode, KindQuery:
		return true
	}
	return false
}

// ContentExtension returns the extension appended to the prefix-stripped id
// when deriving a content fallback file, or "" for kinds that have no file
// fallback (infoboxes and queries are inline-only).
func (k EntityKind) ContentExtension() string {
	switch k {
	case KindExercise:
		return ".md"
	case KindSolution:
		return ".sol.md"
	case KindCode:
		return ".pl"
	}
	return ""
}

// KindForID derives the entity kind from an id's namespace prefix.
// The longer `swishq:` prefix is checked before `swish:`.
func KindForID(id string) (EntityKind, bool) {
	for _, k := range []EntityKind{KindQuery, KindCode, KindSolution, KindExercise, KindInfobox} {
		if strings.HasPrefix(id, k.Prefix()) {
			return k, true
		}
	}
	return "", false
}

// LocalName strips the namespace prefix from an entity id. Ids without a
// recognised prefix are returned unchanged.
func LocalName(id string) string {
	if k, ok := KindForID(id); ok {
		return strings.TrimPrefix(id, k.Prefix())
	}
	return id
}

// SolutionID derives the paired solution id from an exercise id by
// substituting the `sol:` prefix for `ex:`.
func SolutionID(exerciseID string) string {
	return KindSolution.Prefix() + strings.TrimPrefix(exerciseID, KindExercise.Prefix())
}

// ExerciseID derives the paired exercise id from a solution id.
func ExerciseID(solutionID string) string {
	return KindExercise.Prefix() + strings.TrimPrefix(solutionID, KindSolution.Prefix())
}

// PageRef names the document a directive was declared on.
type PageRef string

// SourceLocation attributes a directive or reference to its declaration site
// for diagnostics.
type SourceLocation struct {
	Page PageRef
	Line int
}

// ContentSource distinguishes where an entity's resolved body came from.
type ContentSource int

const (
	// SourceEmpty means no content: permitted only for kinds that allow it.
	SourceEmpty ContentSource = iota
	// SourceInline means the directive carried the content verbatim.
	SourceInline
	// SourceFile means the content was read from a derived fallback file.
	SourceFile
	// SourceExercise marks a solution whose body falls through to its
	// linked exercise's resolved content. The text is filled in during the
	// global pass, once the exercise is guaranteed to be registered.
	SourceExercise
)

// String returns a short label for diagnostics.
func (s ContentSource) String() string {
	switch s {
	case SourceInline:
		return "inline"
	case SourceFile:
		return "file"
	case SourceExercise:
		return "exercise"
	default:
		return "empty"
	}
}

// ResolvedContent is the final body of an entity together with its provenance.
// Path is set only for SourceFile.
type ResolvedContent struct {
	Source ContentSource
	Path   string
	Text   string
}

// CodeAttrs carries the SWISH code box options.
type CodeAttrs struct {
	// InheritIDs lists code entities whose resolved content is concatenated
	// ahead of this entity's own content when composing. Inheritance is one
	// level deep: an inherited entity's own inherit chain is never expanded.
	InheritIDs []string
	// QueryIDs lists query entities associated with this code box. They must
	// live on the same page.
	QueryIDs []string
	// QueryText holds literal example queries. May coexist with QueryIDs;
	// both take effect and together override examples embedded in the
	// resolved content.
	QueryText []string
	// SourceTextStart / SourceTextEnd name fragment files (resolved by
	// filename in the code content directory, outside the id namespace)
	// prepended / appended at composition time.
	SourceTextStart string
	SourceTextEnd   string
	// HideExamples is tri-state: nil falls back to the build-wide default.
	HideExamples *bool
	// BuildFile triggers composite-artifact emission for this entity.
	BuildFile bool
}

// QueryAttrs carries the SWISH query box options.
type QueryAttrs struct {
	// SourceIDs lists code entities this query attaches to (same page only).
	SourceIDs []string
	// Inline marks a query declared inside reference text rather than as a
	// standalone block. Inline queries may not set SourceIDs.
	Inline bool
}

// Entity is a uniquely identified, referenceable content unit.
type Entity struct {
	ID       string
	Kind     EntityKind
	Page     PageRef
	Location SourceLocation
	// Title is set for infoboxes and doubles as their default reference text.
	Title   string
	Content ResolvedContent
	// Number is the paired sequence number stamped on exercises and
	// solutions during the global pass. Zero for other kinds.
	Number int
	// Code is non-nil only for KindCode.
	Code *CodeAttrs
	// Query is non-nil only for KindQuery.
	Query *QueryAttrs
}

// Directive is the wire contract consumed from the host pipeline: one
// directive invocation with its argument, options, raw content and source
// location.
type Directive struct {
	Kind    EntityKind
	ID      string
	Title   string
	Options map[string]string
	Content string
	Inline  bool
	Page    PageRef
	Line    int
}

// Reference is a cross-document reference token found on a page.
type Reference struct {
	// TargetID is the referenced entity id.
	TargetID string
	// Display overrides the whole link text when non-empty.
	Display string
	// Format overrides the numbered format string when non-empty. A
	// reference with a format (or Numbered set) renders as a numbered label.
	Format   string
	Numbered bool
	Page     PageRef
	Line     int
}

// ArtifactLocation describes an emitted composite artifact.
type ArtifactLocation struct {
	// Path is the filesystem location under the build output subtree.
	Path string
	// RelPath is the stable output-relative path derived from the entity id.
	RelPath string
	// URL is RelPath made absolute against the configured book base URL.
	URL string
	// SwishURL opens the artifact in the configured SWISH server, which
	// loads the program from URL through its code query parameter.
	SwishURL string
}
