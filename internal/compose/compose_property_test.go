//go:build property

package compose

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/prologbook/prologbook/internal/config"
	"github.com/prologbook/prologbook/internal/registry"
	"github.com/prologbook/prologbook/internal/resolver"
	"github.com/prologbook/prologbook/internal/tracker"
	"github.com/prologbook/prologbook/internal/types"
)

func propBuilder() (*Builder, *registry.EntityRegistry) {
	reg := registry.NewEntityRegistry()
	res := resolver.NewContentResolver(config.ContentConfig{}, tracker.NewChangeTracker())
	b := NewBuilder(reg, res,
		config.BookConfig{OutputDir: "_build"},
		config.SwishConfig{BookURL: "https://book.example.org/"})
	return b, reg
}

// TestComposeProperties validates composition ordering under random
// inheritance lists.
func TestComposeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	contentGen := gen.RegexMatch(`[a-z]{3,12}\.`)

	// Property: inherited contents appear in listed order, all before the
	// entity's own content
	properties.Property("inherited contents keep their listed order", prop.ForAll(
		func(contents []string) bool {
			b, reg := propBuilder()

			inheritIDs := make([]string, len(contents))
			for i, text := range contents {
				id := fmt.Sprintf("swish:base%d", i)
				inheritIDs[i] = id
				if err := reg.Register(&types.Entity{
					ID: id, Kind: types.KindCode, Page: "p",
					Content: types.ResolvedContent{Source: types.SourceInline, Text: text},
					Code:    &types.CodeAttrs{},
				}); err != nil {
					return false
				}
			}

			own := "own_content."
			composed, err := b.Compose(&types.Entity{
				ID: "swish:child", Kind: types.KindCode, Page: "p",
				Content: types.ResolvedContent{Source: types.SourceInline, Text: own},
				Code:    &types.CodeAttrs{InheritIDs: inheritIDs},
			})
			if err != nil {
				return false
			}

			last := -1
			for _, id := range inheritIDs {
				marker := "/*This part is inherited from: " + id + "*/"
				idx := strings.Index(composed, marker)
				if idx <= last {
					return false
				}
				last = idx
			}
			return strings.Index(composed, own) > last
		},
		gen.SliceOf(contentGen),
	))

	// Property: composing twice yields identical output
	properties.Property("composition is deterministic", prop.ForAll(
		func(text string) bool {
			b, _ := propBuilder()
			entity := &types.Entity{
				ID: "swish:solo", Kind: types.KindCode, Page: "p",
				Content: types.ResolvedContent{Source: types.SourceInline, Text: text},
				Code:    &types.CodeAttrs{},
			}
			first, err1 := b.Compose(entity)
			second, err2 := b.Compose(entity)
			return err1 == nil && err2 == nil && first == second
		},
		contentGen,
	))

	// Property: stripping examples is idempotent
	properties.Property("examples stripping is idempotent", prop.ForAll(
		func(body, example string) bool {
			text := body + "\n/** <examples>\n?- " + example + ".\n*/\n" + body
			once := StripExamples(text)
			return StripExamples(once) == once
		},
		gen.RegexMatch(`[a-z]{1,10}\.`),
		gen.RegexMatch(`[a-z]{1,10}`),
	))

	properties.TestingRun(t)
}
