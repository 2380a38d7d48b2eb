package types

type Phase string

const (
	PhaseCollecting           Phase = "collecting"
	PhaseConfirmingSummary    Phase = "confirming_summary"
	PhaseConfirmingSubmission Phase = "confirming_submission"
	PhaseSubmitted            Phase = "submitted"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseCollecting, PhaseConfirmingSummary, PhaseConfirmingSubmission, PhaseSubmitted:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further record mutation is accepted.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted
}

type FieldInfo struct {
	JSONPointer string `json:"json_pointer"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// SubmissionSuccess is the submission status reported on the turn that reaches PhaseSubmitted.
const SubmissionSuccess = "SUCCESS"
