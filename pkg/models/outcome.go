package models

// Outcome is the result of executing a single task in its workspace.
// All unit-level failures — provisioning errors included — are expressed as
// a failure outcome so completion handling has a single funnel.
type Outcome struct {
	// Success indicates whether the execution succeeded.
	Success bool `json:"success"`
	// ResultRef is the opaque artifact reference produced on success.
	ResultRef string `json:"result_ref,omitempty"`
	// Reason describes the failure, empty on success.
	Reason string `json:"reason,omitempty"`
}

// SuccessOutcome creates a successful outcome with the given artifact ref.
func SuccessOutcome(resultRef string) Outcome {
	return Outcome{Success: true, ResultRef: resultRef}
}

// FailureOutcome creates a failed outcome with the given reason.
func FailureOutcome(reason string) Outcome {
	return Outcome{Success: false, Reason: reason}
}
