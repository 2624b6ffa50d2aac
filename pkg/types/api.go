package types

import "encoding/json"

// Defaults applied to GenerationRequest fields absent from the request body.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 1.0
	DefaultTopP        = 1.0
)

// GenerationRequest is the body of POST /generate-text/.
type GenerationRequest struct {
	// Provider model identifier. Required.
	// example: llama-3.1-8b-instant
	Model string `json:"model" example:"llama-3.1-8b-instant"`
	// Prompt text sent as a single user message. Required.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Maximum number of tokens to generate.
	// example: 1024
	MaxTokens int `json:"max_tokens" example:"1024"`
	// Sampling temperature.
	// example: 1.0
	Temperature float64 `json:"temperature" example:"1.0"`
	// If true, generated text is streamed back as text/event-stream.
	// example: false
	Stream bool `json:"stream" example:"false"`
	// Ask the provider for a JSON object response.
	// example: false
	JSONMode bool `json:"json_mode" example:"false"`
	// Forwarded to the provider only when true.
	// example: false
	Moderation bool `json:"moderation" example:"false"`
	// Nucleus sampling probability.
	// example: 1.0
	TopP float64 `json:"top_p" example:"1.0"`
	// Optional seed. Zero is a valid seed; null or absent leaves it unset.
	// example: 42
	Seed *int64 `json:"seed,omitempty" example:"42"`
	// Optional stop sequence.
	// example: END
	Stop *string `json:"stop,omitempty" example:"END"`

	missing []string
}

// NewGenerationRequest returns a request with defaults applied.
func NewGenerationRequest(model, prompt string) GenerationRequest {
	return GenerationRequest{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	}
}

// UnmarshalJSON decodes a request, filling defaults for fields the body omits.
// Fields present in the body win, including explicit zero values. Required
// fields that are absent or null are recorded for MissingFields.
func (r *GenerationRequest) UnmarshalJSON(b []byte) error {
	type plain GenerationRequest
	p := plain(NewGenerationRequest("", ""))
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var presence struct {
		Model  *string `json:"model"`
		Prompt *string `json:"prompt"`
	}
	if err := json.Unmarshal(b, &presence); err != nil {
		return err
	}
	*r = GenerationRequest(p)
	r.missing = nil
	if presence.Model == nil {
		r.missing = append(r.missing, "model")
	}
	if presence.Prompt == nil {
		r.missing = append(r.missing, "prompt")
	}
	return nil
}

// MissingFields lists the required fields the decoded body left absent or null.
// Empty strings count as present.
func (r GenerationRequest) MissingFields() []string { return r.missing }

// MessageResponse is returned by GET /.
type MessageResponse struct {
	// Liveness message.
	// example: genrelay server is running.
	Message string `json:"message" example:"genrelay server is running."`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
