// Package page discovers and loads page manifests. A page is a YAML
// document listing the directive blocks declared on it and the reference
// tokens appearing in its prose, in declaration order. The loader keeps the
// yaml node tree around long enough to attribute every block and reference
// to its manifest line, so downstream diagnostics point at the authored
// source rather than at an engine internal.
package page

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/prologbook/prologbook/internal/errors"
	"github.com/prologbook/prologbook/internal/tracker"
	"github.com/prologbook/prologbook/internal/types"
)

// Source pairs a page name with the manifest file backing it.
type Source struct {
	Page types.PageRef
	Path string
}

// Manifest is one parsed page: its directives and references in declaration
// order.
type Manifest struct {
	Page       types.PageRef
	Path       string
	Title      string
	Directives []types.Directive
	References []types.Reference
}

// Loader reads page manifests and registers them with the change tracker.
type Loader struct {
	changes *tracker.ChangeTracker
}

// NewLoader creates a loader feeding file dependencies into changes.
func NewLoader(changes *tracker.ChangeTracker) *Loader {
	return &Loader{changes: changes}
}

// Discover expands the configured page entries into concrete sources. A
// directory entry contributes every .yaml/.yml file under it; a file entry
// contributes itself. The result is sorted by path, which fixes the page
// order numbering depends on.
func (l *Loader) Discover(entries []string) ([]Source, error) {
	var sources []Source
	for _, entry := range entries {
		info, err := os.Stat(entry)
		if err != nil {
			return nil, errors.NewConfigError(
				fmt.Sprintf("book.pages entry %q: %v", entry, err))
		}

		if !info.IsDir() {
			sources = append(sources, Source{Page: pageName(filepath.Base(entry)), Path: entry})
			continue
		}

		root := entry
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !manifestFile(path) {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			sources = append(sources, Source{Page: pageName(rel), Path: path})
			return nil
		})
		if err != nil {
			return nil, errors.NewConfigError(
				fmt.Sprintf("book.pages entry %q: %v", entry, err))
		}
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	return sources, nil
}

// Load parses one manifest.
func (l *Loader) Load(src Source) (*Manifest, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, errors.NewConfigError(
			fmt.Sprintf("page %s: %v", src.Page, err))
	}
	l.changes.Watch(src.Path, src.Page)

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewConfigError(
			fmt.Sprintf("page %s: %v", src.Page, err))
	}

	manifest := &Manifest{Page: src.Page, Path: src.Path}
	if len(doc.Content) == 0 {
		return manifest, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, pageError(src.Page, root.Line, "manifest root must be a mapping")
	}

	for i := 0; i < len(root.Content)-1; i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "title":
			manifest.Title = value.Value
		case "directives":
			if value.Kind != yaml.SequenceNode {
				return nil, pageError(src.Page, value.Line, "directives must be a sequence")
			}
			for _, item := range value.Content {
				directive, err := decodeDirective(src.Page, item)
				if err != nil {
					return nil, err
				}
				manifest.Directives = append(manifest.Directives, directive)
			}
		case "references":
			if value.Kind != yaml.SequenceNode {
				return nil, pageError(src.Page, value.Line, "references must be a sequence")
			}
			for _, item := range value.Content {
				reference, err := decodeReference(src.Page, item)
				if err != nil {
					return nil, err
				}
				manifest.References = append(manifest.References, reference)
			}
		default:
			return nil, pageError(src.Page, key.Line,
				fmt.Sprintf("unknown manifest key %q", key.Value))
		}
	}

	return manifest, nil
}

func decodeDirective(page types.PageRef, node *yaml.Node) (types.Directive, error) {
	directive := types.Directive{Page: page, Line: node.Line}
	if node.Kind != yaml.MappingNode {
		return directive, pageError(page, node.Line, "directive entry must be a mapping")
	}

	var declaredKind types.EntityKind
	for i := 0; i < len(node.Content)-1; i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "id":
			directive.ID = value.Value
		case "kind":
			declaredKind = types.EntityKind(value.Value)
			if !declaredKind.Valid() {
				return directive, pageError(page, value.Line,
					fmt.Sprintf("unknown directive kind %q", value.Value))
			}
		case "title":
			directive.Title = value.Value
		case "content":
			directive.Content = value.Value
		case "inline":
			inline, err := strconv.ParseBool(value.Value)
			if err != nil {
				return directive, pageError(page, value.Line,
					fmt.Sprintf("inline must be a boolean, got %q", value.Value))
			}
			directive.Inline = inline
		case "options":
			if value.Kind != yaml.MappingNode {
				return directive, pageError(page, value.Line, "options must be a mapping")
			}
			directive.Options = make(map[string]string, len(value.Content)/2)
			for j := 0; j < len(value.Content)-1; j += 2 {
				optKey, optValue := value.Content[j], value.Content[j+1]
				text, err := optionText(page, optValue)
				if err != nil {
					return directive, err
				}
				directive.Options[optKey.Value] = text
			}
		default:
			return directive, pageError(page, key.Line,
				fmt.Sprintf("unknown directive field %q", key.Value))
		}
	}

	if directive.ID == "" {
		// only infoboxes may be anonymous; they render but are not
		// referenceable
		if declaredKind != types.KindInfobox {
			return directive, pageError(page, node.Line, "directive is missing its id")
		}
		directive.Kind = declaredKind
		return directive, nil
	}
	kind, ok := types.KindForID(directive.ID)
	if !ok {
		return directive, errors.ErrInvalidPrefix(directive.ID, "ibox:, ex:, sol:, swish: or swishq:").
			WithLocation(string(page), node.Line)
	}
	if declaredKind != "" && declaredKind != kind {
		return directive, pageError(page, node.Line,
			fmt.Sprintf("id %q does not match declared kind %q", directive.ID, declaredKind))
	}
	directive.Kind = kind

	return directive, nil
}

func decodeReference(page types.PageRef, node *yaml.Node) (types.Reference, error) {
	reference := types.Reference{Page: page, Line: node.Line}
	if node.Kind != yaml.MappingNode {
		return reference, pageError(page, node.Line, "reference entry must be a mapping")
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "target":
			reference.TargetID = value.Value
		case "display":
			reference.Display = value.Value
		case "format":
			reference.Format = value.Value
		case "numbered":
			numbered, err := strconv.ParseBool(value.Value)
			if err != nil {
				return reference, pageError(page, value.Line,
					fmt.Sprintf("numbered must be a boolean, got %q", value.Value))
			}
			reference.Numbered = numbered
		default:
			return reference, pageError(page, key.Line,
				fmt.Sprintf("unknown reference field %q", key.Value))
		}
	}

	if reference.TargetID == "" {
		return reference, pageError(page, node.Line, "reference is missing its target")
	}

	return reference, nil
}

// optionText flattens an option value to the string form the directive
// contract carries: scalars verbatim, null as empty (a bare flag), and
// sequences space-joined the way multi-id options are authored.
func optionText(page types.PageRef, node *yaml.Node) (string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return "", nil
		}
		return node.Value, nil
	case yaml.SequenceNode:
		parts := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return "", pageError(page, item.Line, "option list values must be scalars")
			}
			parts = append(parts, item.Value)
		}
		return strings.Join(parts, " "), nil
	default:
		return "", pageError(page, node.Line, "option values must be scalars or lists")
	}
}

func pageError(page types.PageRef, line int, message string) *errors.BuildError {
	return errors.NewConfigError(message).WithLocation(string(page), line)
}

func manifestFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func pageName(rel string) types.PageRef {
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return types.PageRef(filepath.ToSlash(rel))
}
