package orchestrator

// State is the position of a turn in the tool-call protocol.
// StateStreaming is only entered by streamed turns; a synchronous round stays
// in StateAwaitingModel until its reply has been decoded.
type State int

const (
	StateAwaitingModel State = iota
	StateStreaming
	StateToolExecution
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateStreaming:
		return "streaming"
	case StateToolExecution:
		return "tool_execution"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}
