package character

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonCharacter = `{
	"name": "Ada",
	"system": "Be precise.",
	"bio": ["Mathematician.", "Wrote the first program."],
	"topics": ["mathematics", "computing"],
	"adjectives": ["precise"],
	"style": {"all": ["Be concise."], "chat": ["Stay friendly."], "post": ["Use hashtags."]},
	"messageExamples": [[
		{"name": "{{user}}", "text": "hello"},
		{"name": "{{agent}}", "text": "hi", "actions": "REPLY"}
	]],
	"postExamples": ["Computing is for everyone."],
	"templates": {"reply": "custom {{.agentName}}"}
}`

const yamlCharacter = `
name: Ada
system: Be precise.
bio:
  - Mathematician.
topics:
  - mathematics
style:
  all:
    - Be concise.
`

func TestParseJSON(t *testing.T) {
	c, err := Parse([]byte(jsonCharacter), "json")
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.Name)
	assert.Equal(t, "Be precise.", c.System)
	assert.Len(t, c.Bio, 2)
	assert.Equal(t, []string{"Stay friendly."}, c.Style.Chat)
	require.Len(t, c.MessageExamples, 1)
	assert.Equal(t, "REPLY", c.MessageExamples[0][1].Actions)
	assert.Equal(t, "custom {{.agentName}}", c.Template("reply"))
	assert.Equal(t, "", c.Template("missing"))
}

func TestParseYAML(t *testing.T) {
	c, err := Parse([]byte(yamlCharacter), "yaml")
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.Name)
	assert.Equal(t, []string{"Mathematician."}, c.Bio)
	assert.Equal(t, []string{"Be concise."}, c.Style.All)
}

func TestParseRejectsMissingName(t *testing.T) {
	_, err := Parse([]byte(`{"bio": ["no name"]}`), "json")
	assert.Error(t, err)
}

func TestParseRejectsUnknownFormat(t *testing.T) {
	_, err := Parse([]byte(jsonCharacter), "toml")
	assert.Error(t, err)
}

func TestLoadInfersFormatFromExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "ada.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(jsonCharacter), 0o644))
	c, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.Name)

	yamlPath := filepath.Join(dir, "ada.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlCharacter), 0o644))
	c, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.Name)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
