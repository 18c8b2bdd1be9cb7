package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExclusions_Match(t *testing.T) {
	ex := NewExclusions(".git", "__pycache__")

	tests := []struct {
		path string
		want bool
	}{
		{"/src/.git", true},
		{"/src/.git/objects/ab", true},
		{"/src/.gitignore", true}, // substring, not path component
		{"/src/pkg/__pycache__/mod.pyc", true},
		{"/src/pkg/mod.py", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Match(tt.path))
		})
	}
}

func TestExclusions_NoGlobSyntax(t *testing.T) {
	ex := NewExclusions("*.tmp")

	assert.False(t, ex.Match("/src/a.tmp"))
	assert.True(t, ex.Match("/src/*.tmp"))
}

func TestExclusions_EmptyMotifIgnored(t *testing.T) {
	ex := NewExclusions("")

	assert.Empty(t, ex)
	assert.False(t, ex.Match("/anything"))
}

func TestExclusions_NilSet(t *testing.T) {
	var ex Exclusions
	assert.False(t, ex.Match("/src/.git"))
	assert.Empty(t, ex.Motifs())
}

func TestExclusions_Add(t *testing.T) {
	base := NewExclusions(".git")
	ext := base.Add("build", ".git")

	assert.Equal(t, []string{".git"}, base.Motifs())
	assert.Equal(t, []string{".git", "build"}, ext.Motifs())
}
