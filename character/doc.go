// Package character models an agent persona: identity, biography, topics,
// style directions and few-shot conversation examples. Characters load from
// JSON or YAML files and feed the state composer, which samples from them to
// build prompts.
package character
