package types

import "fmt"

// OutcomeStatus tags an analysis outcome.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the analysis produced a schema.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeError indicates the analysis failed with a reason.
	OutcomeError OutcomeStatus = "error"
)

// Outcome is the tagged result of one analysis job: either a recovered
// schema or a human-readable failure reason. Nothing escapes the job
// boundary as a fault; every failure path is folded into an error outcome.
type Outcome struct {
	Status OutcomeStatus
	// Schema is set only for success outcomes.
	Schema *Message
	// Reason is set only for error outcomes.
	Reason string
}

// Success wraps a recovered schema.
func Success(schema *Message) Outcome {
	return Outcome{Status: OutcomeSuccess, Schema: schema}
}

// Errorf builds an error outcome with a formatted reason.
func Errorf(format string, args ...any) Outcome {
	return Outcome{Status: OutcomeError, Reason: fmt.Sprintf(format, args...)}
}

// OK reports whether the outcome carries a schema.
func (o Outcome) OK() bool {
	return o.Status == OutcomeSuccess
}
