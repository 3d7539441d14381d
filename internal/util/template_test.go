package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		params   map[string]any
		expected string
	}{
		{
			name:     "plain text passes through",
			text:     "review the diff",
			params:   nil,
			expected: "review the diff",
		},
		{
			name:     "parameter substitution",
			text:     "You are a {{.role}} working on {{.task}}.",
			params:   map[string]any{"role": "reviewer", "task": "auth"},
			expected: "You are a reviewer working on auth.",
		},
		{
			name:     "default helper",
			text:     `{{default "general" .focus}}`,
			params:   map[string]any{},
			expected: "general",
		},
		{
			name:     "join helper",
			text:     `{{join ", " .files}}`,
			params:   map[string]any{"files": []any{"a.go", "b.go"}},
			expected: "a.go, b.go",
		},
		{
			name:     "angle brackets survive unescaped",
			text:     "wrap in <thinking>{{.hint}}</thinking>",
			params:   map[string]any{"hint": "x < y && y > z"},
			expected: "wrap in <thinking>x < y && y > z</thinking>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(tt.text, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRenderTemplateParseError(t *testing.T) {
	_, err := RenderTemplate("{{.unclosed", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse instruction template")
}
