package uir

// State is the per-request scratchpad shared by the pipeline controller and
// the transforms. The fixed control flags are typed fields; transforms that
// need ad-hoc keys use the Extra map. A State is owned by exactly one
// pipeline task and is never shared between requests.
type State struct {
	// MaxAttempts bounds the pipeline retry loop (1..5).
	MaxAttempts int

	// RetryRequested asks the controller for another attempt. Cleared by
	// the controller on every iteration.
	RetryRequested bool

	// SyntheticRequested asks the controller to skip the provider call and
	// fabricate an empty assistant response. Cleared after use.
	SyntheticRequested bool

	// EnsureToolCall holds the ensure-tool-call contract state when the
	// selected model enables it.
	EnsureToolCall *EnsureToolCallState

	// ResolvedModel is the client-visible alias before router substitution.
	ResolvedModel string

	// MaxTokensClamped records that the clamp transform lowered max_tokens.
	MaxTokensClamped bool

	// Extra carries domain-specific keys that have no typed field.
	Extra map[string]any
}

// NewState returns a State with the attempt bound defaulted to one.
func NewState() *State {
	return &State{MaxAttempts: 1, Extra: make(map[string]any)}
}

// EnsureToolCallState tracks the ensure-tool-call contract across pipeline
// attempts: the termination tool name, how many reminders were issued, and
// whether the next request needs a reminder appended.
type EnsureToolCallState struct {
	Enabled             bool     `json:"enabled"`
	TerminationToolName string   `json:"termination_tool_name"`
	ReminderCount       int      `json:"reminder_count"`
	PendingReminder     bool     `json:"pending_reminder"`
	FinalAnswerRequired bool     `json:"final_answer_required,omitempty"`
	ReminderHistory     []string `json:"reminder_history,omitempty"`

	// AcceptKeywords gates the TodoWrite termination heuristic: a lone
	// TodoWrite call is accepted as termination when the assistant text
	// contains one of these words (case-insensitive).
	AcceptKeywords []string `json:"accept_keywords,omitempty"`

	// instructionAttached dedupes the base system instruction across
	// retry attempts of the same request.
	InstructionAttached bool `json:"-"`
}

// DefaultTerminationToolName is used when a model enables ensure-tool-call
// without naming its own termination tool.
const DefaultTerminationToolName = "done"

// NewEnsureToolCallState initializes the contract state with defaults.
func NewEnsureToolCallState(toolName string) *EnsureToolCallState {
	if toolName == "" {
		toolName = DefaultTerminationToolName
	}
	return &EnsureToolCallState{
		Enabled:             true,
		TerminationToolName: toolName,
		AcceptKeywords:      []string{"summary", "changes"},
	}
}
