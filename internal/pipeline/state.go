package pipeline

// State tracks the lifecycle of one pipeline run.
type State string

// Run states. Failed is terminal and only reachable from Discovering, on
// credential or connectivity failures; Checking and Analyzing are skipped in
// that case.
const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateChecking    State = "checking"
	StateAnalyzing   State = "analyzing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)
