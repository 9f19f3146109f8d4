package models

// Perplexity API request/response models

// Message roles accepted by the chat completions endpoint.
const (
	RoleUser      = "user"
	RoleSystem    = "system"
	RoleAssistant = "assistant"
)

// Message represents a single chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents an outbound chat completion request.
// Optional tuning fields are pointers so that unset values are omitted
// from the wire payload entirely, never sent as null.
type ChatRequest struct {
	Model                  string    `json:"model"`
	Messages               []Message `json:"messages"`
	MaxTokens              *int      `json:"max_tokens,omitempty"`
	Temperature            *float64  `json:"temperature,omitempty"`
	TopP                   *float64  `json:"top_p,omitempty"`
	PresencePenalty        *float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty       *float64  `json:"frequency_penalty,omitempty"`
	Stream                 *bool     `json:"stream,omitempty"`
	ReturnCitations        *bool     `json:"return_citations,omitempty"`
	ReturnRelatedQuestions *bool     `json:"return_related_questions,omitempty"`
	ReturnImages           *bool     `json:"return_images,omitempty"`
}

// ChatResponse represents an inbound chat completion response
type ChatResponse struct {
	ID               string         `json:"id"`
	Object           string         `json:"object"`
	Created          int64          `json:"created"`
	Model            string         `json:"model"`
	Choices          []Choice       `json:"choices"`
	Usage            *Usage         `json:"usage"`
	SearchResults    []SearchResult `json:"search_results,omitempty"`
	RelatedQuestions []string       `json:"related_questions,omitempty"`
	Citations        []string       `json:"citations,omitempty"`
}

// Choice represents a single completion choice
type Choice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason"`
	Message      Message `json:"message"`
}

// Usage reports token consumption for one call
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// SearchResult is one web source the model consulted
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Content returns the first choice's message content, or "" when the
// response carries no choices.
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
