package synthesis

import "context"

// TextRequest is one text-generation call. JSONMode is a hint passed to
// the provider; output is still not guaranteed to be valid JSON, which is
// why every response goes through the recovery parser.
type TextRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Image is one input image for a vision call.
type Image struct {
	MimeType string
	Data     []byte
}

// VisionRequest is one image-to-text call.
type VisionRequest struct {
	Prompt      string
	Images      []Image
	Temperature float64
	MaxTokens   int
}

// Usage reports provider token accounting when available.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TextResult is a successful generation.
type TextResult struct {
	Text  string
	Model string
	Usage *Usage
}

// LLMClient is the model surface the pipeline consumes. Implementations
// own their request pacing; the engine never sleeps between calls.
type LLMClient interface {
	GenerateText(ctx context.Context, req TextRequest) (*TextResult, error)
	GenerateVision(ctx context.Context, req VisionRequest) (*TextResult, error)

	// ModelName and VisionModelName are used for model-family knobs such
	// as the no-think prompt prefix, not for routing.
	ModelName() string
	VisionModelName() string
}
