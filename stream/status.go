package stream

// Status is the terminal cause of a stream as observed by Await.
type Status int

const (
	// StatusPending means the stream has not terminated (Await timed out).
	StatusPending Status = iota
	// StatusCompleted means the worker exited normally after a done result.
	StatusCompleted
	// StatusCancelled means Cancel took effect before the worker exited.
	StatusCancelled
	// StatusFailed means the engine returned an error, the worker died
	// abnormally or the owner killed the coordinator.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the coordinator's lifecycle state.
type State int32

const (
	StateInitializing State = iota
	StateStreaming
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
