package agent

// State is the position of a run in the turn loop.
type State int

const (
	StatePlanning State = iota
	StateAwaitingModel
	StateModelResponded
	StateExecutingTools
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateModelResponded:
		return "model_responded"
	case StateExecutingTools:
		return "executing_tools"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateFailed
}
