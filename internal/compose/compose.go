// Package compose expands a code entity's inheritance, prefix/suffix
// fragment and query graph into a single concatenated source text and, for
// entities marked build-file, emits it as a composite artifact at a stable,
// id-derived path.
//
// Inheritance is one level deep: an inherited entity contributes its own
// resolved content only, never its own inherited chain. Inherit, query and
// source references must resolve to entities on the same page.
package compose

import (
	stderrors "errors"
	"fmt"
	"hash/crc32"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/prologbook/prologbook/internal/config"
	"github.com/prologbook/prologbook/internal/errors"
	"github.com/prologbook/prologbook/internal/registry"
	"github.com/prologbook/prologbook/internal/resolver"
	"github.com/prologbook/prologbook/internal/types"
)

const (
	// ArtifactDir is the output subtree holding emitted artifacts.
	ArtifactDir = "prolog_build_files"
	// ArtifactSuffix is appended to the prefix-stripped entity id to form
	// the artifact filename.
	ArtifactSuffix = "-merged.pl"
)

// examplesPattern matches a /** <examples> ... */ block including its
// surrounding blank lines.
var examplesPattern = regexp.MustCompile(`(?mis)\s*^/\*\*\s*<examples>\s*$.*?^\*/\s*$\s*`)

// StripExamples removes every examples block from a source text.
func StripExamples(text string) string {
	return strings.TrimSpace(examplesPattern.ReplaceAllString(text, "\n"))
}

// Builder composes and emits composite artifacts. It caches a checksum of
// each entity's composed output so unchanged artifacts are not rewritten on
// incremental builds.
type Builder struct {
	registry *registry.EntityRegistry
	resolver *resolver.ContentResolver

	outputDir           string
	bookURL             string
	serverURL           string
	hideExamplesDefault bool

	mu       sync.Mutex
	crcTable *crc32.Table
	hashes   map[string]uint32
}

// NewBuilder creates a builder writing under book.OutputDir and addressing
// artifacts against swish.BookURL.
func NewBuilder(reg *registry.EntityRegistry, res *resolver.ContentResolver, book config.BookConfig, swish config.SwishConfig) *Builder {
	return &Builder{
		registry:            reg,
		resolver:            res,
		outputDir:           book.OutputDir,
		bookURL:             swish.BookURL,
		serverURL:           swish.ServerURL,
		hideExamplesDefault: swish.HideExamples,
		crcTable:            crc32.MakeTable(crc32.Castagnoli),
		hashes:              make(map[string]uint32),
	}
}

// HideExamples resolves the tri-state per-entity flag against the
// build-wide default.
func (b *Builder) HideExamples(entity *types.Entity) bool {
	if entity.Code != nil && entity.Code.HideExamples != nil {
		return *entity.Code.HideExamples
	}
	return b.hideExamplesDefault
}

// Compose produces the concatenated source for a code entity in strict
// order: start fragment, each inherited entity's own resolved content in
// listed order, this entity's resolved content, end fragment.
func (b *Builder) Compose(entity *types.Entity) (string, error) {
	if entity.Kind != types.KindCode || entity.Code == nil {
		return "", errors.NewInternalError("compose called on non-code entity "+entity.ID, nil)
	}
	attrs := entity.Code

	var chunks []string

	if attrs.SourceTextStart != "" {
		text, err := b.resolver.Fragment(attrs.SourceTextStart, entity.Page)
		if err != nil {
			return "", attributed(err, entity)
		}
		chunks = append(chunks,
			"/*Begin ~source text start~*/",
			StripExamples(text),
			"/*End ~source text start~*/\n")
	}

	for _, inheritID := range attrs.InheritIDs {
		if inheritID == entity.ID {
			return "", errors.NewInternalError(
				fmt.Sprintf("the %s code block inherits itself", entity.ID), nil).
				WithEntity(entity.ID)
		}
		inherited, err := b.registry.Lookup(inheritID)
		if err != nil {
			return "", attributed(err, entity)
		}
		if inherited.Page != entity.Page {
			return "", errors.ErrCrossPageRef(entity.ID, inheritID, string(inherited.Page)).
				WithLocation(string(entity.Page), entity.Location.Line)
		}
		chunks = append(chunks,
			"/*This part is inherited from: "+inheritID+"*/",
			StripExamples(inherited.Content.Text),
			"/*This is the end of inheritance.*/\n")
	}

	contents := entity.Content.Text
	if b.HideExamples(entity) {
		contents = StripExamples(contents)
	}
	chunks = append(chunks, strings.TrimSpace(contents))

	if attrs.SourceTextEnd != "" {
		text, err := b.resolver.Fragment(attrs.SourceTextEnd, entity.Page)
		if err != nil {
			return "", attributed(err, entity)
		}
		chunks = append(chunks,
			"\n/*Begin ~source text end~*/",
			StripExamples(text),
			"/*End ~source text end~*/\n")
	}

	return strings.Join(chunks, "\n"), nil
}

// Emit writes the composed source to its deterministic location under the
// build output subtree and returns that location together with its absolute
// URL. The write goes through a scoped temp file renamed into place, so a
// failure never leaves a truncated artifact at the stable path. Unchanged
// artifacts are left untouched.
func (b *Builder) Emit(entity *types.Entity, composed string) (types.ArtifactLocation, error) {
	if b.bookURL == "" {
		return types.ArtifactLocation{}, errors.ErrArtifactEmit(entity.ID,
			"swish.book_base_url must be configured when a code block sets build-file", nil).
			WithLocation(string(entity.Page), entity.Location.Line)
	}

	relPath := filepath.Join(ArtifactDir, types.LocalName(entity.ID)+ArtifactSuffix)
	path := filepath.Join(b.outputDir, relPath)
	location := types.ArtifactLocation{
		Path:    path,
		RelPath: relPath,
		URL:     strings.TrimRight(b.bookURL, "/") + "/" + filepath.ToSlash(relPath),
	}
	if b.serverURL != "" {
		location.SwishURL = strings.TrimRight(b.serverURL, "/") + "/?code=" + url.QueryEscape(location.URL)
	}

	checksum := crc32.Checksum([]byte(composed), b.crcTable)
	b.mu.Lock()
	previous, cached := b.hashes[entity.ID]
	b.mu.Unlock()
	if cached && previous == checksum {
		if _, err := os.Stat(path); err == nil {
			return location, nil
		}
	}

	if err := b.write(path, composed); err != nil {
		return types.ArtifactLocation{}, errors.ErrArtifactEmit(entity.ID, "writing artifact", err).
			WithLocation(string(entity.Page), entity.Location.Line)
	}

	b.mu.Lock()
	b.hashes[entity.ID] = checksum
	b.mu.Unlock()

	return location, nil
}

// write creates the artifact through a temp file in the target directory
// and renames it into place on success.
func (b *Builder) write(path, composed string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := tmp.WriteString(composed); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// ValidateAssociations checks that every query association of a code entity
// and every source association of a query entity resolves to an entity on
// the same page. It runs in the global pass when the registry is complete.
func (b *Builder) ValidateAssociations(entity *types.Entity) error {
	switch entity.Kind {
	case types.KindCode:
		for _, queryID := range entity.Code.QueryIDs {
			target, err := b.registry.Lookup(queryID)
			if err != nil {
				return attributed(err, entity)
			}
			if target.Page != entity.Page {
				return errors.ErrCrossPageRef(entity.ID, queryID, string(target.Page)).
					WithLocation(string(entity.Page), entity.Location.Line)
			}
		}
	case types.KindQuery:
		for _, sourceID := range entity.Query.SourceIDs {
			target, err := b.registry.Lookup(sourceID)
			if err != nil {
				return attributed(err, entity)
			}
			if target.Page != entity.Page {
				return errors.ErrCrossPageRef(entity.ID, sourceID, string(target.Page)).
					WithLocation(string(entity.Page), entity.Location.Line)
			}
		}
	}
	return nil
}

func attributed(err error, entity *types.Entity) error {
	var be *errors.BuildError
	if stderrors.As(err, &be) {
		return be.WithLocation(string(entity.Page), entity.Location.Line).AsFatal()
	}
	return err
}
