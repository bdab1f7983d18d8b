package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *BuildError
		want string
	}{
		{
			name: "code and message",
			err:  ErrUnknownID("ex:9.9"),
			want: `[ERR_UNKNOWN_ID] entity:ex:9.9 unknown entity id`,
		},
		{
			name: "with location",
			err:  ErrMissingContent("swish:a", "").WithLocation("chapter2", 14),
			want: `[ERR_MISSING_CONTENT] chapter2:14 entity:swish:a no inline content and no content file`,
		},
		{
			name: "with cause",
			err:  ErrArtifactEmit("swish:a", "writing artifact", errors.New("disk full")),
			want: `[ERR_ARTIFACT_EMIT] entity:swish:a writing artifact: disk full`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorMatching(t *testing.T) {
	err := ErrDuplicateID("ex:1.1", "chapter1").WithLocation("chapter2", 3)

	wrapped := fmt.Errorf("registering: %w", err)

	assert.True(t, HasCode(wrapped, ErrCodeDuplicateID))
	assert.False(t, HasCode(wrapped, ErrCodeUnknownID))

	var be *BuildError
	require.True(t, errors.As(wrapped, &be))
	assert.Equal(t, "ex:1.1", be.EntityID)
	assert.Equal(t, "chapter2", be.Page)
}

func TestFatality(t *testing.T) {
	assert.True(t, IsFatal(ErrUnlinkedSolution("sol:2.9", "ex:2.9")))
	assert.True(t, IsFatal(ErrCrossPageRef("swish:a", "swish:b", "other")))
	assert.False(t, IsFatal(ErrArtifactEmit("swish:a", "emit", nil)))
	assert.False(t, IsFatal(ErrDuplicateID("ex:1.1", "chapter1")))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.True(t, IsFatal(ErrDuplicateID("ex:1.1", "chapter1").AsFatal()))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := ErrArtifactEmit("swish:a", "emit failed", cause)
	assert.ErrorIs(t, err, cause)
}
