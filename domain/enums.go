package domain

import "fmt"

// Environment is the deployment target a run is classified into.
// Values are only produced by the environment classifier.
type Environment string

const (
	// EnvironmentLatest is the default branch head.
	EnvironmentLatest Environment = "latest"

	// EnvironmentStable is a release tag.
	EnvironmentStable Environment = "stable"

	// EnvironmentReview is any other branch, tag or pull request.
	EnvironmentReview Environment = "review"
)

// Environments lists every environment in a stable order.
var Environments = []Environment{EnvironmentLatest, EnvironmentStable, EnvironmentReview}

// String returns the string representation of the Environment.
func (e Environment) String() string {
	return string(e)
}

// Valid reports whether e is one of the known environments.
func (e Environment) Valid() bool {
	switch e {
	case EnvironmentLatest, EnvironmentStable, EnvironmentReview:
		return true
	default:
		return false
	}
}

// ParseEnvironment converts s into an Environment.
func ParseEnvironment(s string) (Environment, error) {
	e := Environment(s)
	if !e.Valid() {
		return "", fmt.Errorf("unknown environment %q", s)
	}
	return e, nil
}

// Stage is a state of the pipeline state machine.
type Stage string

const (
	StageStart        Stage = "start"
	StageClassified   Stage = "classified"
	StageVersioned    Stage = "versioned"
	StageBuilt        Stage = "built"
	StageChartUpdated Stage = "chart_updated"
	StageReleased     Stage = "released"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Stages lists the forward transitions in execution order.
var Stages = []Stage{StageClassified, StageVersioned, StageBuilt, StageChartUpdated, StageReleased}

// String returns the string representation of the Stage.
func (s Stage) String() string {
	return string(s)
}

// Terminal reports whether no further transitions leave s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// RunStatus is the final outcome of a run.
type RunStatus string

const (
	// RunStatusDone indicates the run completed, including NoOp runs.
	RunStatusDone RunStatus = "done"

	// RunStatusFailed indicates a stage failed and the run halted.
	RunStatusFailed RunStatus = "failed"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// StageStatus is the outcome of a single stage.
type StageStatus string

const (
	StageStatusOK      StageStatus = "ok"
	StageStatusFailed  StageStatus = "failed"
	StageStatusSkipped StageStatus = "skipped"
)
