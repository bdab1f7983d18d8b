package page

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prologbook/prologbook/internal/errors"
	"github.com/prologbook/prologbook/internal/tracker"
	"github.com/prologbook/prologbook/internal/types"
)

const chapterManifest = `title: Lists and recursion
directives:
  - id: ibox:tail
    title: Tail recursion
    content: |
      A call in tail position reuses the frame.
  - id: ex:2.9
  - id: swish:2.9
    content: "len([], 0)."
    options:
      inherit-id: [swish:base, swish:extra]
      build-file:
      hide-examples: "true"
references:
  - target: ex:2.9
    numbered: true
  - target: ibox:tail
    display: see the infobox
`

func writePage(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writePage(t, dir, "chapter2.yaml", chapterManifest)

	changes := tracker.NewChangeTracker()
	loader := NewLoader(changes)
	m, err := loader.Load(Source{Page: "chapter2", Path: path})
	require.NoError(t, err)

	assert.Equal(t, "Lists and recursion", m.Title)
	require.Len(t, m.Directives, 3)
	require.Len(t, m.References, 2)

	ibox := m.Directives[0]
	assert.Equal(t, types.KindInfobox, ibox.Kind)
	assert.Equal(t, "ibox:tail", ibox.ID)
	assert.Equal(t, "Tail recursion", ibox.Title)
	assert.Contains(t, ibox.Content, "tail position")
	assert.Equal(t, types.PageRef("chapter2"), ibox.Page)
	assert.Greater(t, ibox.Line, 0)

	assert.Equal(t, types.KindExercise, m.Directives[1].Kind)

	code := m.Directives[2]
	assert.Equal(t, types.KindCode, code.Kind)
	assert.Equal(t, "swish:base swish:extra", code.Options["inherit-id"])
	assert.Equal(t, "", code.Options["build-file"])
	assert.Equal(t, "true", code.Options["hide-examples"])

	assert.Equal(t, "ex:2.9", m.References[0].TargetID)
	assert.True(t, m.References[0].Numbered)
	assert.Equal(t, "see the infobox", m.References[1].Display)

	// the manifest file itself becomes a tracked dependency of the page
	assert.Contains(t, changes.DependenciesOf("chapter2"), path)
}

func TestLoadRejectsUnknownPrefix(t *testing.T) {
	dir := t.TempDir()
	path := writePage(t, dir, "bad.yaml", "directives:\n  - id: box:1.1\n")

	loader := NewLoader(tracker.NewChangeTracker())
	_, err := loader.Load(Source{Page: "bad", Path: path})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidPrefix))
	assert.Contains(t, err.Error(), "bad:2")
}

func TestLoadRejectsMissingID(t *testing.T) {
	dir := t.TempDir()
	path := writePage(t, dir, "bad.yaml", "directives:\n  - title: no id here\n")

	loader := NewLoader(tracker.NewChangeTracker())
	_, err := loader.Load(Source{Page: "bad", Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing its id")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(tracker.NewChangeTracker())

	path := writePage(t, dir, "a.yaml", "directive:\n  - id: ex:1.1\n")
	_, err := loader.Load(Source{Page: "a", Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown manifest key "directive"`)

	path = writePage(t, dir, "b.yaml", "references:\n  - target: ex:1.1\n    text: x\n")
	_, err = loader.Load(Source{Page: "b", Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown reference field "text"`)
}

func TestLoadAnonymousInfobox(t *testing.T) {
	dir := t.TempDir()
	path := writePage(t, dir, "anon.yaml",
		"directives:\n  - kind: ibox\n    title: Aside\n    content: just a box\n")

	loader := NewLoader(tracker.NewChangeTracker())
	m, err := loader.Load(Source{Page: "anon", Path: path})
	require.NoError(t, err)
	require.Len(t, m.Directives, 1)
	assert.Equal(t, types.KindInfobox, m.Directives[0].Kind)
	assert.Empty(t, m.Directives[0].ID)
}

func TestLoadRejectsKindMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writePage(t, dir, "bad.yaml", "directives:\n  - id: ex:1.1\n    kind: swish\n")

	loader := NewLoader(tracker.NewChangeTracker())
	_, err := loader.Load(Source{Page: "bad", Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match declared kind")
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader(tracker.NewChangeTracker())
	_, err := loader.Load(Source{Page: "gone", Path: filepath.Join(t.TempDir(), "gone.yaml")})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestLoadEmptyManifest(t *testing.T) {
	dir := t.TempDir()
	path := writePage(t, dir, "empty.yaml", "")

	loader := NewLoader(tracker.NewChangeTracker())
	m, err := loader.Load(Source{Page: "empty", Path: path})
	require.NoError(t, err)
	assert.Empty(t, m.Directives)
	assert.Empty(t, m.References)
}

func TestDiscoverWalksDirectoriesInOrder(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, "b-chapter.yaml", "")
	writePage(t, dir, "a-chapter.yaml", "")
	writePage(t, dir, filepath.Join("part2", "c-chapter.yml"), "")
	writePage(t, dir, "notes.txt", "ignored")

	loader := NewLoader(tracker.NewChangeTracker())
	sources, err := loader.Discover([]string{dir})
	require.NoError(t, err)

	var pages []types.PageRef
	for _, s := range sources {
		pages = append(pages, s.Page)
	}
	assert.Equal(t, []types.PageRef{"a-chapter", "b-chapter", "part2/c-chapter"}, pages)
}

func TestDiscoverAcceptsSingleFiles(t *testing.T) {
	dir := t.TempDir()
	path := writePage(t, dir, "intro.yaml", "")

	loader := NewLoader(tracker.NewChangeTracker())
	sources, err := loader.Discover([]string{path})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, types.PageRef("intro"), sources[0].Page)
}

func TestDiscoverMissingEntry(t *testing.T) {
	loader := NewLoader(tracker.NewChangeTracker())
	_, err := loader.Discover([]string{filepath.Join(t.TempDir(), "absent")})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}
