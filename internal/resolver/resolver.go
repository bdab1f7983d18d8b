// Package resolver determines the final content of an entity from its
// inline content and/or a derived fallback file, applying the inline > file
// > empty precedence and registering every consulted file with the change
// tracker.
package resolver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/prologbook/prologbook/internal/config"
	"github.com/prologbook/prologbook/internal/errors"
	"github.com/prologbook/prologbook/internal/tracker"
	"github.com/prologbook/prologbook/internal/types"
)

// ContentResolver resolves entity bodies and start/end source fragments.
type ContentResolver struct {
	exerciseDir string
	codeDir     string
	tracker     *tracker.ChangeTracker
}

// NewContentResolver creates a resolver over the configured content
// directories. Either directory may be empty when no entity of the matching
// kinds needs a file fallback.
func NewContentResolver(content config.ContentConfig, changes *tracker.ChangeTracker) *ContentResolver {
	return &ContentResolver{
		exerciseDir: content.ExerciseDir,
		codeDir:     content.CodeDir,
		tracker:     changes,
	}
}

// Resolve produces the resolved content for a directive. Inline content wins
// outright; otherwise the kind-specific fallback file is read and its path
// registered with the change tracker. A solution without inline content and
// without a dedicated solution file falls through to its linked exercise's
// resolved content, which the global pass fills in once every exercise is
// registered.
func (r *ContentResolver) Resolve(d types.Directive) (types.ResolvedContent, error) {
	if strings.TrimSpace(d.Content) != "" {
		return types.ResolvedContent{Source: types.SourceInline, Text: d.Content}, nil
	}

	switch d.Kind {
	case types.KindInfobox, types.KindQuery:
		// inline-only kinds
		return types.ResolvedContent{}, errors.ErrMissingContent(d.ID, "").
			WithLocation(string(d.Page), d.Line)

	case types.KindExercise, types.KindCode:
		path, err := r.contentPath(d)
		if err != nil {
			return types.ResolvedContent{}, err
		}
		text, err := r.readWatched(path, d.Page)
		if err != nil {
			return types.ResolvedContent{}, errors.ErrMissingContent(d.ID, path).
				WithLocation(string(d.Page), d.Line)
		}
		return types.ResolvedContent{Source: types.SourceFile, Path: path, Text: text}, nil

	case types.KindSolution:
		path, err := r.contentPath(d)
		if err != nil {
			return types.ResolvedContent{}, err
		}
		text, err := r.readWatched(path, d.Page)
		if err != nil {
			// no dedicated solution file: defer to the linked exercise
			return types.ResolvedContent{Source: types.SourceExercise}, nil
		}
		return types.ResolvedContent{Source: types.SourceFile, Path: path, Text: text}, nil
	}

	return types.ResolvedContent{}, errors.NewInternalError(
		"cannot resolve content for kind "+string(d.Kind), nil)
}

// Fragment loads a named start/end source fragment from the code directory.
// Fragment names live outside the id namespace and are resolved by filename;
// the `.pl` extension is appended when missing.
func (r *ContentResolver) Fragment(name string, page types.PageRef) (string, error) {
	dir, err := r.requireDir(r.codeDir, "content.code_dir")
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(name, ".pl") {
		name += ".pl"
	}
	path := filepath.Join(dir, name)
	text, err := r.readWatched(path, page)
	if err != nil {
		return "", errors.ErrMissingContent(name, path)
	}
	return text, nil
}

// contentPath derives the fallback file path for a directive: the namespace
// prefix is stripped and the kind-specific extension appended inside the
// kind's content directory.
func (r *ContentResolver) contentPath(d types.Directive) (string, error) {
	var dir, key string
	switch d.Kind {
	case types.KindExercise, types.KindSolution:
		dir, key = r.exerciseDir, "content.exercise_dir"
	case types.KindCode:
		dir, key = r.codeDir, "content.code_dir"
	}

	dir, err := r.requireDir(dir, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, types.LocalName(d.ID)+d.Kind.ContentExtension()), nil
}

func (r *ContentResolver) requireDir(dir, key string) (string, error) {
	if dir == "" {
		return "", errors.NewConfigError(key + " must be set when loading content from a file")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", errors.NewConfigError(key + " (" + dir + ") does not exist")
	}
	return dir, nil
}

// readWatched reads a file and registers it with the change tracker before
// returning, so that future edits invalidate the dependent page even when
// the read itself later fails.
func (r *ContentResolver) readWatched(path string, page types.PageRef) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if r.tracker != nil {
		r.tracker.Watch(path, page)
	}
	return string(content), nil
}
