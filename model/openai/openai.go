// Package openai implements the model invoker on the OpenAI API, using Chat
// Completions for text and object kinds and the Embeddings API for vectors.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentpipe/agentpipe/core"
	"github.com/agentpipe/agentpipe/model"
)

// Options configures the OpenAI invoker. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	SmallModel          string
	LargeModel          string
	EmbeddingModel      string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Invoker adapts the OpenAI API to core.Invoker.
type Invoker struct {
	client *openai.Client
	opts   Options
}

// NewInvoker creates an OpenAI invoker using the official client.
func NewInvoker(optFns ...func(o *Options)) *Invoker {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Invoker{client: &client, opts: opts}
}

// NewInvokerFromClient creates an OpenAI invoker from an existing client.
func NewInvokerFromClient(client *openai.Client, optFns ...func(o *Options)) *Invoker {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Invoker{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		SmallModel:          openai.ChatModelGPT4oMini,
		LargeModel:          openai.ChatModelGPT4o,
		EmbeddingModel:      "text-embedding-3-small",
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

func (i *Invoker) modelFor(kind core.ModelKind) string {
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
		return i.embed(ctx, p.Prompt)
	}

	maxTokens := i.opts.MaxCompletionTokens
	if p.MaxTokens > 0 {
		maxTokens = int64(p.MaxTokens)
	}
	temperature := i.opts.Temperature
	if p.Temperature > 0 {
		temperature = p.Temperature
	}

	params := openai.ChatCompletionNewParams{
		Model:               i.modelFor(kind),
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(p.Prompt),
		},
	}
	if len(p.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: p.Stop}
	}

	resp, err := i.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return core.ModelResult{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.ModelResult{}, fmt.Errorf("openai returned no choices")
	}

	result := core.ModelResult{Text: resp.Choices[0].Message.Content}
	if kind.IsObject() {
		if obj, perr := model.ParseJSONBlock(result.Text); perr == nil {
			result.Object = obj
		}
	}
	return result, nil
}

func (i *Invoker) embed(ctx context.Context, text string) (core.ModelResult, error) {
	resp, err := i.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: i.opts.EmbeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return core.ModelResult{}, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(resp.Data) == 0 {
		return core.ModelResult{}, fmt.Errorf("openai returned no embedding")
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for idx, v := range src {
		vec[idx] = float32(v)
	}
	return core.ModelResult{Vector: vec}, nil
}
