package snippets

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	in, err := Input{Title: "  hello ", Tags: []string{" go", "Go", "", "cli ", "go"}}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "hello", in.Title)
	assert.Equal(t, []string{"go", "cli"}, in.Tags)

	in, err = Input{Title: "x"}.Normalize()
	require.NoError(t, err)
	assert.NotNil(t, in.Tags)
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"blank title", Input{Title: "  "}, "title"},
		{"long title", Input{Title: strings.Repeat("a", maxTitleLen+1)}, "title"},
		{"too many tags", Input{Title: "t", Tags: distinctTags(maxTags + 1)}, "tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.Normalize()
			require.ErrorIs(t, err, ErrInvalid)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func distinctTags(n int) []string {
	tags := make([]string, n)
	for i := range tags {
		tags[i] = fmt.Sprintf("tag%d", i)
	}
	return tags
}

func TestPatchApply(t *testing.T) {
	s := Snippet{Title: "old", Content: "body", Tags: []string{"a"}, IsPublic: false}
	title := "new"
	public := true
	in := Patch{Title: &title, IsPublic: &public}.Apply(s)
	assert.Equal(t, Input{Title: "new", Content: "body", Tags: []string{"a"}, IsPublic: true}, in)

	tags := []string{}
	in = Patch{Tags: &tags}.Apply(s)
	assert.Empty(t, in.Tags)
	assert.Equal(t, "old", in.Title)
}
