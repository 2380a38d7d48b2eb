package agent

import (
	"github.com/tbxark/formcopilot/intent"
	"github.com/tbxark/formcopilot/types"
)

// phaseAfterIntent moves between the two confirmation phases based on how the
// user answered. Submission itself is never decided here.
func phaseAfterIntent(current types.Phase, it intent.Intent) types.Phase {
	switch {
	case current == types.PhaseConfirmingSummary && it == intent.Affirm:
		return types.PhaseConfirmingSubmission
	case current == types.PhaseConfirmingSubmission && it == intent.Decline:
		return types.PhaseConfirmingSummary
	default:
		return current
	}
}

// phaseAfterUpdate is the phase once an update has been committed. Any change
// during confirmation sends the user back to the summary.
func phaseAfterUpdate(current types.Phase, record types.Record, changed bool) types.Phase {
	switch {
	case current == types.PhaseSubmitted:
		return current
	case !record.Complete():
		return types.PhaseCollecting
	case current == types.PhaseCollecting, changed:
		return types.PhaseConfirmingSummary
	default:
		return current
	}
}
