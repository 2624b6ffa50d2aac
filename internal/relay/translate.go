package relay

import "genrelay/pkg/types"

// ResponseFormatJSON enables JSON mode; it is sent as response_format: {"type":"json_object"}.
const ResponseFormatJSON = "json_object"

// ChatMessage is a single chat-completions message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat selects the provider's output format.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionRequest is the payload for the provider's /chat/completions endpoint.
// Optional fields are omitted rather than sent as null so the provider applies its own defaults.
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	TopP           float64         `json:"top_p"`
	Stream         bool            `json:"stream"`
	Seed           *int64          `json:"seed,omitempty"`
	Stop           string          `json:"stop,omitempty"`
	Moderation     bool            `json:"moderation,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// BuildPayload maps a GenerationRequest onto the provider wire payload.
// The prompt becomes a single user message. Values are not range-checked here;
// the provider rejects bad input and its error is passed through to the caller.
func BuildPayload(req types.GenerationRequest) ChatCompletionRequest {
	p := ChatCompletionRequest{
		Model:       req.Model,
		Messages:    []ChatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Moderation:  req.Moderation,
	}
	if req.Seed != nil {
		seed := *req.Seed
		p.Seed = &seed
	}
	if req.Stop != nil {
		p.Stop = *req.Stop
	}
	if req.JSONMode {
		p.ResponseFormat = &ResponseFormat{Type: ResponseFormatJSON}
	}
	return p
}
