// Package anthropic implements the model invoker on the Anthropic Messages
// API. Small and large kinds map to distinct Claude models; embeddings are
// not offered by the API and return an error.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/model"
)

// Options configures the Anthropic invoker (model ids per size class,
// temperature, max tokens, API key). Extend via functional options to
// preserve stability.
type Options struct {
	SmallModel  anthropic.Model
	LargeModel  anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Invoker adapts the Anthropic Messages API to core.Invoker.
type Invoker struct {
	client *anthropic.Client
	opts   Options
}

// NewInvoker creates an Anthropic invoker using the official client.
func NewInvoker(optFns ...func(o *Options)) *Invoker {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Invoker{client: &client, opts: opts}
}

// NewInvokerFromClient creates an Anthropic invoker from an existing client.
func NewInvokerFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Invoker {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Invoker{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		SmallModel:  anthropic.ModelClaude3_5HaikuLatest,
		LargeModel:  anthropic.ModelClaude3_5SonnetLatest,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

func (i *Invoker) modelFor(kind core.ModelKind) anthropic.Model {
	switch kind {
	case core.ModelTextSmall, core.ModelObjectSmall:
		return i.opts.SmallModel
	default:
		return i.opts.LargeModel
	}
}

// Invoke implements core.Invoker. Object kinds return the raw text alongside
// a best-effort parsed object; callers decide how to handle unparseable
// output.
func (i *Invoker) Invoke(ctx context.Context, kind core.ModelKind, p core.ModelParams) (core.ModelResult, error) {
	if kind == core.ModelEmbedding {
		return core.ModelResult{}, fmt.Errorf("anthropic does not provide an embeddings api")
	}

	maxTokens := i.opts.MaxTokens
	if p.MaxTokens > 0 {
		maxTokens = int64(p.MaxTokens)
	}
	temperature := i.opts.Temperature
	if p.Temperature > 0 {
		temperature = p.Temperature
	}

	params := anthropic.MessageNewParams{
		Model:       i.modelFor(kind),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.Prompt)),
		},
	}
	if len(p.Stop) > 0 {
		params.StopSequences = p.Stop
	}

	resp, err := i.client.Messages.New(ctx, params)
	if err != nil {
		return core.ModelResult{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	result := core.ModelResult{Text: sb.String()}
	if kind.IsObject() {
		if obj, perr := model.ParseJSONBlock(result.Text); perr == nil {
			result.Object = obj
		}
	}
	return result, nil
}
