package pipeline

// Stage is a pipeline checkpoint. Runs move strictly forward; Failed is
// absorbing.
type Stage string

const (
	StageReceived          Stage = "received"
	StageVerified          Stage = "verified"
	StageContextBuilt      Stage = "context_built"
	StageAgentInvoked      Stage = "agent_invoked"
	StageParsed            Stage = "parsed"
	StageActionsDispatched Stage = "actions_dispatched"
	StageCompleted         Stage = "completed"
	StageFailed            Stage = "failed"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// Terminal reports whether the stage ends the run
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}
