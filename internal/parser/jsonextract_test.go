package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONCodeFences(t *testing.T) {
	content := "好的，以下是结果：\n```json\n{\"email\": \"a@b.com\"}\n```\n如有问题请告知。"
	got, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.JSONEq(t, `{"email": "a@b.com"}`, got)
}

func TestExtractJSONOutermostBraces(t *testing.T) {
	content := `前缀 {"outer": {"inner": "值"}, "list": [1, 2]} 后缀 {"ignored": true}`
	got, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.JSONEq(t, `{"outer": {"inner": "值"}, "list": [1, 2]}`, got)
}

func TestExtractJSONBracesInsideStrings(t *testing.T) {
	content := `{"note": "braces } { inside", "v": 1}`
	got, err := ExtractJSON(content)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &m))
	assert.Equal(t, "braces } { inside", m["note"])
}

func TestExtractJSONStripsTrailingCommas(t *testing.T) {
	content := `{"a": 1, "b": [1, 2,],}`
	got, err := ExtractJSON(content)
	require.NoError(t, err)

	var m map[string]any
	assert.NoError(t, json.Unmarshal([]byte(got), &m), "去尾逗号后应可解析")
}

func TestExtractJSONBadInput(t *testing.T) {
	_, err := ExtractJSON("")
	assert.Error(t, err)

	_, err = ExtractJSON("没有任何JSON")
	assert.Error(t, err)

	_, err = ExtractJSON(`{"未闭合": 1`)
	assert.Error(t, err)
}
