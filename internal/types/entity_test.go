package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForID(t *testing.T) {
	tests := []struct {
		id   string
		want EntityKind
		ok   bool
	}{
		{"ibox:tail", KindInfobox, true},
		{"ex:2.9", KindExercise, true},
		{"sol:2.9", KindSolution, true},
		{"swish:4.1", KindCode, true},
		// the longer prefix must win over swish:
		{"swishq:4.1", KindQuery, true},
		{"box:1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		kind, ok := KindForID(tt.id)
		assert.Equal(t, tt.ok, ok, tt.id)
		assert.Equal(t, tt.want, kind, tt.id)
	}
}

func TestLocalName(t *testing.T) {
	assert.Equal(t, "2.9", LocalName("ex:2.9"))
	assert.Equal(t, "4.1", LocalName("swishq:4.1"))
	assert.Equal(t, "no-prefix", LocalName("no-prefix"))
}

func TestSolutionExercisePairing(t *testing.T) {
	assert.Equal(t, "sol:2.9", SolutionID("ex:2.9"))
	assert.Equal(t, "ex:2.9", ExerciseID("sol:2.9"))
}

func TestContentExtension(t *testing.T) {
	assert.Equal(t, ".md", KindExercise.ContentExtension())
	assert.Equal(t, ".sol.md", KindSolution.ContentExtension())
	assert.Equal(t, ".pl", KindCode.ContentExtension())
	assert.Equal(t, "", KindInfobox.ContentExtension())
	assert.Equal(t, "", KindQuery.ContentExtension())
}

func TestContentSourceString(t *testing.T) {
	assert.Equal(t, "inline", SourceInline.String())
	assert.Equal(t, "file", SourceFile.String())
	assert.Equal(t, "exercise", SourceExercise.String())
	assert.Equal(t, "empty", SourceEmpty.String())
}
