// Package refs resolves cross-document reference tokens to entities and
// produces their link text. A plain reference renders the kind-appropriate
// default text (an infobox's title, a numbered exercise label, a generic
// SWISH box label); a numbered reference renders a format string with the
// entity's sequence number substituted in.
package refs

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prologbook/prologbook/internal/config"
	"github.com/prologbook/prologbook/internal/errors"
	"github.com/prologbook/prologbook/internal/registry"
	"github.com/prologbook/prologbook/internal/types"
)

// Default labels for the SWISH box kinds.
const (
	LabelCodeBox      = "SWISH code box"
	LabelQueryBox     = "SWISH query box"
	LabelQueryListing = "SWISH query listing"
)

// Renderer looks up reference targets in the registry and formats their
// link text.
type Renderer struct {
	registry       *registry.EntityRegistry
	exerciseFormat string
	solutionFormat string
}

// NewRenderer creates a renderer using the configured numbered formats.
func NewRenderer(reg *registry.EntityRegistry, numbering config.NumberingConfig) *Renderer {
	return &Renderer{
		registry:       reg,
		exerciseFormat: numbering.ExerciseFormat,
		solutionFormat: numbering.SolutionFormat,
	}
}

// RenderRef resolves a plain reference. A non-empty displayOverride replaces
// the whole link text; the link target is unaffected.
func (r *Renderer) RenderRef(targetID, displayOverride string) (string, error) {
	entity, err := r.registry.Lookup(targetID)
	if err != nil {
		return "", err
	}
	if displayOverride != "" {
		return displayOverride, nil
	}

	switch entity.Kind {
	case types.KindInfobox:
		return entity.Title, nil
	case types.KindExercise:
		return r.numbered(r.exerciseFormat, entity.Number), nil
	case types.KindSolution:
		return r.numbered(r.solutionFormat, entity.Number), nil
	case types.KindCode:
		return LabelCodeBox, nil
	case types.KindQuery:
		if entity.Query != nil && entity.Query.Inline {
			return LabelQueryListing, nil
		}
		return LabelQueryBox, nil
	}

	return "", errors.NewInternalError("unrenderable entity kind "+string(entity.Kind), nil)
}

// RenderNumRef resolves a numbered reference. A non-empty formatOverride
// substitutes its placeholder with the resolved number; otherwise the
// configured kind default applies. Only exercises and solutions carry
// sequence numbers.
func (r *Renderer) RenderNumRef(targetID, formatOverride string) (string, error) {
	entity, err := r.registry.Lookup(targetID)
	if err != nil {
		return "", err
	}

	var format string
	switch entity.Kind {
	case types.KindExercise:
		format = r.exerciseFormat
	case types.KindSolution:
		format = r.solutionFormat
	default:
		return "", errors.ErrNotNumbered(targetID)
	}
	if formatOverride != "" {
		if strings.Count(formatOverride, "%s") != 1 || strings.Count(formatOverride, "%") != 1 {
			return "", errors.NewConfigError(
				fmt.Sprintf("numbered format %q must contain exactly one %%s placeholder", formatOverride))
		}
		format = formatOverride
	}

	return r.numbered(format, entity.Number), nil
}

// Render resolves a reference token, attributing any failure to the
// reference's source location so diagnostics name the offending reference
// rather than producing a silent broken link.
func (r *Renderer) Render(ref types.Reference) (string, error) {
	var text string
	var err error
	if ref.Numbered || ref.Format != "" {
		text, err = r.RenderNumRef(ref.TargetID, ref.Format)
	} else {
		text, err = r.RenderRef(ref.TargetID, ref.Display)
	}
	if err != nil {
		var be *errors.BuildError
		if stderrors.As(err, &be) {
			return "", be.WithLocation(string(ref.Page), ref.Line)
		}
		return "", err
	}
	return text, nil
}

func (r *Renderer) numbered(format string, number int) string {
	return fmt.Sprintf(format, strconv.Itoa(number))
}
