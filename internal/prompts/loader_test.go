package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		key      string
		errMsg   string
		contains string
	}{
		{name: "batch prompt", file: RecommendFile, key: RecommendBatch, contains: "JSON array"},
		{name: "stream prompt", file: RecommendFile, key: RecommendStream, contains: "one recommendation per line"},
		{name: "unknown file", file: "nonexistent.json", key: RecommendBatch, errMsg: "not found"},
		{name: "unknown key", file: RecommendFile, key: "nonexistent-key", errMsg: `"nonexistent-key" not found`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := Get(tt.file, tt.key)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, prompt, tt.contains)
		})
	}
}

func TestKeys(t *testing.T) {
	keys, err := Keys(RecommendFile)
	require.NoError(t, err)
	assert.Equal(t, []string{RecommendBatch, RecommendStream}, keys)

	_, err = Keys("missing.json")
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"Count", "Query"}, Placeholders("{{.Count}} films like {{.Query}}, {{.Count}} max"))
	assert.Empty(t, Placeholders("no placeholders, {{ .Spaced }} or {{Bare}}"))

	for _, key := range []string{RecommendBatch, RecommendStream} {
		tmpl, err := Get(RecommendFile, key)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Count", "Query"}, Placeholders(tmpl), key)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]string
		expected string
	}{
		{
			name:     "fills every placeholder",
			template: "Give me {{.Count}} films like {{.Query}}",
			data:     map[string]string{"Count": "9", "Query": "Heat"},
			expected: "Give me 9 films like Heat",
		},
		{
			name:     "no placeholders",
			template: "No placeholders here",
			data:     map[string]string{"Key": "Value"},
			expected: "No placeholders here",
		},
		{
			name:     "unknown placeholder kept",
			template: "Hello {{.Name}}",
			data:     map[string]string{},
			expected: "Hello {{.Name}}",
		},
		{
			name:     "values are not expanded again",
			template: "{{.Count}} films like {{.Query}}",
			data:     map[string]string{"Count": "9", "Query": "{{.Count}} Monkeys"},
			expected: "9 films like {{.Count}} Monkeys",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.template, tt.data))
		})
	}
}

func TestRender_StreamPromptAsksForLines(t *testing.T) {
	prompt, err := Render(RecommendFile, RecommendStream, map[string]string{"Count": "9", "Query": "space westerns"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "exactly 9")
	assert.Contains(t, prompt, "space westerns")
	assert.NotContains(t, prompt, "{{.")
}

func TestRender_MissingValue(t *testing.T) {
	_, err := Render(RecommendFile, RecommendBatch, map[string]string{"Query": "heist movies"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing values for Count")
}
