package character

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Style groups writing directions by surface. All applies everywhere; Chat
// and Post refine interactive rooms and feed-style rooms respectively.
type Style struct {
	All  []string `json:"all,omitempty" yaml:"all,omitempty"`
	Chat []string `json:"chat,omitempty" yaml:"chat,omitempty"`
	Post []string `json:"post,omitempty" yaml:"post,omitempty"`
}

// ExampleMessage is one turn of a few-shot conversation example. The name
// "{{user}}" is a placeholder replaced with a sampled user name; "{{agent}}"
// is replaced with the character name.
type ExampleMessage struct {
	Name    string `json:"name" yaml:"name"`
	Text    string `json:"text" yaml:"text"`
	Actions string `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Character is a complete persona definition.
type Character struct {
	Name       string   `json:"name" yaml:"name"`
	System     string   `json:"system,omitempty" yaml:"system,omitempty"`
	Bio        []string `json:"bio,omitempty" yaml:"bio,omitempty"`
	Topics     []string `json:"topics,omitempty" yaml:"topics,omitempty"`
	Adjectives []string `json:"adjectives,omitempty" yaml:"adjectives,omitempty"`
	Style      Style    `json:"style,omitempty" yaml:"style,omitempty"`

	// MessageExamples holds complete example conversations, each a sequence
	// of turns ending with the character's reply.
	MessageExamples [][]ExampleMessage `json:"messageExamples,omitempty" yaml:"messageExamples,omitempty"`

	// PostExamples holds standalone example posts for feed-style rooms.
	PostExamples []string `json:"postExamples,omitempty" yaml:"postExamples,omitempty"`

	// Templates overrides named prompt templates (shouldRespond, reply,
	// actionDecision). Absent keys fall back to the built-in templates.
	Templates map[string]string `json:"templates,omitempty" yaml:"templates,omitempty"`
}

// Validate reports whether the character carries the minimum required
// fields.
func (c *Character) Validate() error {
	if c == nil {
		return fmt.Errorf("character is nil")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("character name is required")
	}
	return nil
}

// Template returns the named prompt template override, or "" when the
// character does not define one.
func (c *Character) Template(name string) string {
	if c == nil || c.Templates == nil {
		return ""
	}
	return c.Templates[name]
}

// Parse decodes a character from JSON or YAML bytes. format is the lowercase
// file extension without dot ("json", "yaml", "yml").
func Parse(data []byte, format string) (*Character, error) {
	var c Character
	switch format {
	case "json":
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse character json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse character yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported character format %q", format)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads and parses a character file, inferring the format from the file
// extension.
func Load(path string) (*Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character file: %w", err)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Parse(data, ext)
}
