package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONBlock(t *testing.T) {
	t.Run("single fenced block", func(t *testing.T) {
		obj, err := ParseJSONBlock("```json\n{\"thought\":\"hi\",\"actions\":[\"REPLY\"]}\n```")
		require.NoError(t, err)
		assert.Equal(t, "hi", StringField(obj, "thought"))
		assert.Equal(t, []string{"REPLY"}, StringsField(obj, "actions"))
	})

	t.Run("prose around block is tolerated", func(t *testing.T) {
		raw := "Sure, here is my answer:\n```json\n{\"text\":\"ok\"}\n```\nLet me know if that helps."
		obj, err := ParseJSONBlock(raw)
		require.NoError(t, err)
		assert.Equal(t, "ok", StringField(obj, "text"))
	})

	t.Run("multiple blocks rejected", func(t *testing.T) {
		raw := "```json\n{\"a\":1}\n```\nor maybe\n```json\n{\"b\":2}\n```"
		_, err := ParseJSONBlock(raw)
		assert.Error(t, err)
	})

	t.Run("raw json without fence", func(t *testing.T) {
		obj, err := ParseJSONBlock(`{"action":"IGNORE"}`)
		require.NoError(t, err)
		assert.Equal(t, "IGNORE", StringField(obj, "action"))
	})

	t.Run("plain prose fails", func(t *testing.T) {
		_, err := ParseJSONBlock("I think we should reply to this message.")
		assert.Error(t, err)
	})

	t.Run("malformed json inside fence fails", func(t *testing.T) {
		_, err := ParseJSONBlock("```json\n{\"broken\": \n```")
		assert.Error(t, err)
	})

	t.Run("empty input fails", func(t *testing.T) {
		_, err := ParseJSONBlock("")
		assert.Error(t, err)
	})
}

func TestStringsField(t *testing.T) {
	obj := map[string]any{
		"list":   []any{"A", "B", 3},
		"single": "ONLY",
		"num":    42,
	}
	assert.Equal(t, []string{"A", "B"}, StringsField(obj, "list"))
	assert.Equal(t, []string{"ONLY"}, StringsField(obj, "single"))
	assert.Nil(t, StringsField(obj, "num"))
	assert.Nil(t, StringsField(obj, "missing"))
	assert.Nil(t, StringsField(nil, "x"))
}
