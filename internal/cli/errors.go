package cli

// Error codes reported in CLI error output.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeConfig       = "E002" // Config load or validation failed
	ErrCodeSchema       = "E003" // Schema compile failed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeArgs         = "E010" // Malformed command arguments
	ErrCodeTransport    = "E020" // Agent unreachable or timed out
	ErrCodeAgentStatus  = "E021" // Agent answered with an error status
	ErrCodeStore        = "E030" // Alert history unreadable
	ErrCodeScenarioFail = "E040" // One or more scenarios failed
)
