package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPrompt(t *testing.T) {
	out, err := RenderPrompt("p", "Hello {{upper .name}}, tags: {{join \", \" .tags}}", map[string]any{
		"name": "ada",
		"tags": []any{"a", 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello ADA, tags: a, 1", out)
}

func TestRenderPrompt_NoMarkers(t *testing.T) {
	out, err := RenderPrompt("p", "plain <b>text</b>", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain <b>text</b>", out)
}

func TestRenderPrompt_MissingKey(t *testing.T) {
	_, err := RenderPrompt("p", "{{.missing}}", map[string]any{})
	assert.Error(t, err)
}

func TestRenderPrompt_JSONAndDefault(t *testing.T) {
	out, err := RenderPrompt("p", `{{json .v}} {{default "x" .e}}`, map[string]any{"v": map[string]any{"k": 1}, "e": ""})
	require.NoError(t, err)
	assert.Equal(t, `{"k":1} x`, out)
}

func TestNewTag_Unique(t *testing.T) {
	a, b := NewTag(), NewTag()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
