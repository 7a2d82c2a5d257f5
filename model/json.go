package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONBlock extracts and decodes a JSON object from model output.
//
// Models are prompted to answer with exactly one ```json fenced block, but
// often wrap it in prose. Surrounding prose is tolerated; more than one
// fenced block is rejected because the caller cannot know which one the
// model meant. When no fence is present the whole string is tried as raw
// JSON.
func ParseJSONBlock(raw string) (map[string]any, error) {
	blocks := extractFencedBlocks(raw)
	switch len(blocks) {
	case 0:
		return decodeObject(strings.TrimSpace(raw))
	case 1:
		return decodeObject(blocks[0])
	default:
		return nil, fmt.Errorf("expected a single json block, found %d", len(blocks))
	}
}

func extractFencedBlocks(raw string) []string {
	var blocks []string
	rest := raw
	for {
		start := strings.Index(rest, "```json")
		if start < 0 {
			break
		}
		rest = rest[start+len("```json"):]
		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		blocks = append(blocks, strings.TrimSpace(rest[:end]))
		rest = rest[end+3:]
	}
	return blocks
}

func decodeObject(s string) (map[string]any, error) {
	if s == "" {
		return nil, fmt.Errorf("empty json payload")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("decode json object: %w", err)
	}
	return obj, nil
}

// StringField reads a string-valued key from a decoded object, returning ""
// when absent or not a string.
func StringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	if s, ok := obj[key].(string); ok {
		return s
	}
	return ""
}

// StringsField reads a key holding either a string list or a single string,
// normalizing to a slice. Non-string elements are skipped.
func StringsField(obj map[string]any, key string) []string {
	if obj == nil {
		return nil
	}
	switch v := obj[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
