package provider

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/agentpipe/agentpipe/character"
	"github.com/agentpipe/agentpipe/core"
)

// exampleNames substitute for the "{{user}}" placeholder in few-shot
// conversation examples.
var exampleNames = []string{"Alex", "Jordan", "Sam", "Taylor", "Morgan", "Casey"}

const (
	bioSampleSize     = 10
	topicSampleSize   = 5
	exampleSampleSize = 5
)

// CharacterProvider contributes the agent persona: sampled biography,
// interests, style directions and few-shot examples. It merges first
// (position 0) so later providers layer conversation context on top of
// identity.
type CharacterProvider struct{}

// NewCharacterProvider creates the persona provider.
func NewCharacterProvider() *CharacterProvider { return &CharacterProvider{} }

func (p *CharacterProvider) Name() string { return "CHARACTER" }

func (p *CharacterProvider) Description() string {
	return "Agent identity, biography, interests, style and examples"
}

func (p *CharacterProvider) Position() int { return 0 }

func (p *CharacterProvider) Dynamic() bool { return false }

func (p *CharacterProvider) Get(ctx context.Context, actx *core.AgentContext, msg *core.Memory, _ *core.State) (*core.ProviderResult, error) {
	c := actx.Character
	if c == nil {
		return &core.ProviderResult{}, nil
	}
	rng := randomFor(actx)
	post := isPostRoom(ctx, actx, msg)
	name := actx.AgentName()

	bio := strings.Join(sample(rng, c.Bio, bioSampleSize), " ")
	adjective := pickOne(rng, c.Adjectives)
	topic := pickOne(rng, c.Topics)
	topics := interestsSentence(name, sample(rng, c.Topics, topicSampleSize))
	directions := styleDirections(c, name, post)
	examples := formatExamples(rng, c, name, post)

	values := map[string]string{
		"agentName":  name,
		"bio":        bio,
		"system":     c.System,
		"adjective":  adjective,
		"topic":      topic,
		"topics":     topics,
		"directions": directions,
		"examples":   examples,
	}

	var sections []string
	if bio != "" {
		sections = append(sections, fmt.Sprintf("# About %s\n%s", name, bio))
	}
	if topics != "" {
		sections = append(sections, topics)
	}
	if directions != "" {
		sections = append(sections, directions)
	}
	if examples != "" {
		sections = append(sections, examples)
	}

	return &core.ProviderResult{
		Values: values,
		Data:   map[string]any{"character": c},
		Text:   strings.Join(sections, "\n\n"),
	}, nil
}

func interestsSentence(name string, topics []string) string {
	switch len(topics) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is interested in %s", name, topics[0])
	default:
		head := strings.Join(topics[:len(topics)-1], ", ")
		return fmt.Sprintf("%s is interested in %s and %s", name, head, topics[len(topics)-1])
	}
}

func styleDirections(c *character.Character, name string, post bool) string {
	directions := append([]string(nil), c.Style.All...)
	header := "# Message Directions for " + name
	if post {
		directions = append(directions, c.Style.Post...)
		header = "# Post Directions for " + name
	} else {
		directions = append(directions, c.Style.Chat...)
	}
	if len(directions) == 0 {
		return ""
	}
	return header + "\n" + strings.Join(directions, "\n")
}

func formatExamples(rng core.Rand, c *character.Character, name string, post bool) string {
	if post {
		posts := sample(rng, c.PostExamples, exampleSampleSize)
		if len(posts) == 0 {
			return ""
		}
		return fmt.Sprintf("# Example Posts for %s\n%s", name, strings.Join(posts, "\n\n"))
	}

	if len(c.MessageExamples) == 0 {
		return ""
	}
	indexes := make([]int, len(c.MessageExamples))
	for i := range indexes {
		indexes[i] = i
	}
	rng.Shuffle(len(indexes), func(i, j int) { indexes[i], indexes[j] = indexes[j], indexes[i] })
	if len(indexes) > exampleSampleSize {
		indexes = indexes[:exampleSampleSize]
	}

	var convos []string
	for _, idx := range indexes {
		user := exampleNames[rng.Intn(len(exampleNames))]
		var lines []string
		for _, turn := range c.MessageExamples[idx] {
			speaker := strings.NewReplacer("{{user}}", user, "{{agent}}", name).Replace(turn.Name)
			line := fmt.Sprintf("%s: %s", speaker, turn.Text)
			if turn.Actions != "" {
				line += fmt.Sprintf(" (actions: %s)", turn.Actions)
			}
			lines = append(lines, line)
		}
		convos = append(convos, strings.Join(lines, "\n"))
	}
	return fmt.Sprintf("# Example Conversations for %s\n%s", name, strings.Join(convos, "\n\n"))
}

// sample shuffles a copy of items and returns at most n of them.
func sample(rng core.Rand, items []string, n int) []string {
	if len(items) == 0 {
		return nil
	}
	out := append([]string(nil), items...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func pickOne(rng core.Rand, items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[rng.Intn(len(items))]
}

type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.Intn(n) }

func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

func randomFor(actx *core.AgentContext) core.Rand {
	if actx.Rand != nil {
		return actx.Rand
	}
	return globalRand{}
}

// isPostRoom reports whether the message's room renders as posts. Lookup
// failures fall back to conversational formatting.
func isPostRoom(ctx context.Context, actx *core.AgentContext, msg *core.Memory) bool {
	if actx.Store == nil || msg == nil || msg.RoomID == "" {
		return false
	}
	room, err := actx.Store.GetRoom(ctx, msg.RoomID)
	if err != nil || room == nil {
		return false
	}
	return room.Type.IsPostFormat()
}
