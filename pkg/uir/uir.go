// Package uir defines the Unified Intermediate Representation: the
// dialect-neutral request/response model shared by every client and
// provider adapter.
package uir

import "net/http"

// Operation identifies the client-facing API an exchange came in through.
type Operation string

const (
	OperationChat      Operation = "chat"
	OperationMessages  Operation = "messages"
	OperationResponses Operation = "responses"
)

// Role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlockType tags the variant carried by a ContentBlock.
type ContentBlockType string

const (
	ContentText      ContentBlockType = "text"
	ContentImageURL  ContentBlockType = "image_url"
	ContentJSON      ContentBlockType = "json"
	ContentReasoning ContentBlockType = "reasoning"
)

// ContentBlock is a tagged content variant. Exactly one payload field is
// meaningful for a given Type.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text carries text and reasoning content.
	Text string `json:"text,omitempty"`

	// URL carries image_url content (https or data URL).
	URL string `json:"url,omitempty"`

	// Data carries json content, and provider-specific extras for
	// reasoning blocks (e.g. a thinking signature).
	Data map[string]any `json:"data,omitempty"`
}

// TextBlock is a convenience constructor for a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ReasoningBlock is a convenience constructor for a reasoning content block.
func ReasoningBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentReasoning, Text: text}
}

// ToolCall is a structured function invocation requested by the assistant.
// ID is non-empty and stable for the lifetime of the exchange; Arguments is
// the JSON-serialized argument object.
type ToolCall struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // always "function"
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one conversation turn.
//
// Invariants: ToolCallID is set iff Role == RoleTool; ToolCalls may only be
// set when Role == RoleAssistant.
type Message struct {
	Role       Role           `json:"role"`
	Content    []ContentBlock `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// Tool is a function declaration offered to the model.
type Tool struct {
	Type        string         `json:"type"` // always "function"
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
	Strict      bool           `json:"strict,omitempty"`
}

// Parameters are the sampling knobs common to every provider dialect.
type Parameters struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Metadata records where a request came from and what it looked like on the
// wire, for logging and for dialect-sensitive rendering decisions.
type Metadata struct {
	ClientFormat   string         `json:"client_format"`
	ProviderFormat string         `json:"provider_format,omitempty"`
	ClientRequest  map[string]any `json:"client_request,omitempty"`
	Headers        http.Header    `json:"-"`
}

// Request is the canonical request shape all adapters share. It is created
// once per inbound HTTP request, mutated only by transforms and the pipeline
// controller, and never shared across pipeline tasks.
type Request struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	Operation  Operation  `json:"operation"`
	Messages   []Message  `json:"messages"`
	Tools      []Tool     `json:"tools,omitempty"`
	Parameters Parameters `json:"parameters"`
	Stream     bool       `json:"stream"`
	State      *State     `json:"-"`
	Metadata   Metadata   `json:"metadata"`
}

// OutputItemType tags the variant carried by an OutputItem.
type OutputItemType string

const (
	OutputMessage   OutputItemType = "message"
	OutputReasoning OutputItemType = "reasoning"
)

// MessageStatus marks whether a message item finished cleanly.
type MessageStatus string

const (
	StatusCompleted  MessageStatus = "completed"
	StatusIncomplete MessageStatus = "incomplete"
)

// OutputItem is one element of a response output. A message item carries the
// assistant turn; a reasoning item carries thinking content which every
// renderer must emit before the message item.
type OutputItem struct {
	Type OutputItemType `json:"type"`

	// Message fields.
	Role      Role           `json:"role,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Status    MessageStatus  `json:"status,omitempty"`

	// Reasoning fields.
	Summary []ContentBlock `json:"summary,omitempty"`
}

// Usage is token accounting reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ResponseError describes a failed exchange. Mutually exclusive with a
// normal completion.
type ResponseError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Response is the canonical response shape all adapters share.
type Response struct {
	ID           string         `json:"id"`
	Model        string         `json:"model"`
	Operation    Operation      `json:"operation"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Output       []OutputItem   `json:"output"`
	Usage        *Usage         `json:"usage,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Error        *ResponseError `json:"error,omitempty"`
}

// MessageItem returns the first message output item, or nil.
func (r *Response) MessageItem() *OutputItem {
	for i := range r.Output {
		if r.Output[i].Type == OutputMessage {
			return &r.Output[i]
		}
	}
	return nil
}

// ReasoningItems returns all reasoning output items in order.
func (r *Response) ReasoningItems() []*OutputItem {
	var items []*OutputItem
	for i := range r.Output {
		if r.Output[i].Type == OutputReasoning {
			items = append(items, &r.Output[i])
		}
	}
	return items
}

// ProviderResponse is the raw outcome of one upstream HTTP call. Status >= 400
// means the call failed and the pipeline short-circuits to error rendering.
type ProviderResponse struct {
	Status      int               `json:"status"`
	Headers     map[string]string `json:"headers"`
	Body        map[string]any    `json:"body"`
	RequestBody map[string]any    `json:"request_body,omitempty"`
}

// Synthetic reports whether this response was fabricated by the pipeline
// instead of returned by a provider.
func (p *ProviderResponse) Synthetic() bool {
	return p.Headers["x-synthetic-response"] == "true"
}

// TextContent concatenates the text blocks of a content slice.
func TextContent(blocks []ContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Type == ContentText {
			out += b.Text
		}
	}
	return out
}
