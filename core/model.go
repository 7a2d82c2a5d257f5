package core

import "context"

// ModelKind selects the class of model invocation. Small/large distinguish
// latency/quality tiers; object kinds request a structured JSON response;
// embedding returns a vector.
type ModelKind string

const (
	// ModelTextSmall is fast, cheap text generation.
	ModelTextSmall ModelKind = "TEXT_SMALL"
	// ModelTextLarge is high-quality text generation.
	ModelTextLarge ModelKind = "TEXT_LARGE"
	// ModelObjectSmall is fast structured-output generation.
	ModelObjectSmall ModelKind = "OBJECT_SMALL"
	// ModelObjectLarge is high-quality structured-output generation.
	ModelObjectLarge ModelKind = "OBJECT_LARGE"
	// ModelEmbedding produces an embedding vector for similarity search.
	ModelEmbedding ModelKind = "TEXT_EMBEDDING"
)

// IsObject reports whether the kind requests structured JSON output.
func (k ModelKind) IsObject() bool { return k == ModelObjectSmall || k == ModelObjectLarge }

// ModelParams carries the normalized input for a model invocation.
type ModelParams struct {
	Prompt      string
	Stop        []string
	MaxTokens   int
	Temperature float64
}

// ModelResult is the normalized output of a model invocation. Text is always
// populated for generation kinds; Object is populated for object kinds when
// the response contained a parseable JSON block; Vector is populated for
// embedding kinds.
type ModelResult struct {
	Text   string
	Object map[string]any
	Vector []float32
}

// Invoker is the model invocation facade. Implementations must honor context
// cancellation and return an error (never hang forever or panic) on
// transport failure; the pipeline converts any rejection into a turn-level
// run-ended error.
type Invoker interface {
	Invoke(ctx context.Context, kind ModelKind, p ModelParams) (ModelResult, error)
}
