package conversation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tbxark/formcopilot/patch"
	"github.com/tbxark/formcopilot/types"
	"github.com/tbxark/formcopilot/validate"
)

var ErrInvalidState = errors.New("invalid conversation state")

var allowedPaths = patch.AllowedSet(types.AllowedJSONPointers())

// State is one form-filling conversation. It is a value: operations return a
// new State and never modify turns that were already appended.
type State struct {
	ID    string      `json:"id"`
	Phase types.Phase `json:"phase"`
	Turns []Turn      `json:"turns"`
}

// New starts a conversation with the synthetic greeting turn.
func New(greeting string) State {
	return State{
		ID:    uuid.NewString(),
		Phase: types.PhaseCollecting,
		Turns: []Turn{{Role: RoleAssistant, Content: greeting, Greeting: true}},
	}
}

// Append returns a copy of s with turns added at the end.
func (s State) Append(turns ...Turn) State {
	out := make([]Turn, 0, len(s.Turns)+len(turns))
	out = append(out, s.Turns...)
	out = append(out, turns...)
	s.Turns = out
	return s
}

func (s State) WithPhase(p types.Phase) State {
	s.Phase = p
	return s
}

// Record folds every committed patch over an empty record.
func (s State) Record() types.Record {
	var rec types.Record
	for i, t := range s.Turns {
		if t.Role != RoleActionResult || t.Action == nil || len(t.Action.Patch) == 0 {
			continue
		}
		next, err := patch.ApplyRFC6902(rec, t.Action.Patch, allowedPaths)
		if err != nil {
			slog.Warn("Skipping uncommittable turn", "conversation", s.ID, "turn", i, "error", err)
			continue
		}
		rec = next
	}
	return rec
}

// LastAssistant returns the most recent assistant text, greeting included.
func (s State) LastAssistant() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleAssistant {
			return s.Turns[i].Content
		}
	}
	return ""
}

// Validate checks a state received from outside the process before it is
// trusted: known phase, committed patches limited to the record paths, every
// folded value passing validation, a complete record outside collecting, and
// a submission turn present exactly when the phase is submitted, followed by
// at most its reply. Moves between the non-terminal phases leave no trace in
// the turns and are not checked.
func (s State) Validate(v *validate.Validator) error {
	if !s.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidState, s.Phase)
	}
	if len(s.Turns) == 0 {
		return fmt.Errorf("%w: no turns", ErrInvalidState)
	}
	var rec types.Record
	submittedAt := -1
	for i, t := range s.Turns {
		if submittedAt >= 0 && (t.Role != RoleAssistant || i > submittedAt+1) {
			return fmt.Errorf("%w: turn %d after the submission", ErrInvalidState, i)
		}
		switch t.Role {
		case RoleUser, RoleAssistant:
			if t.Greeting && i != 0 {
				return fmt.Errorf("%w: greeting at turn %d", ErrInvalidState, i)
			}
		case RoleActionResult:
			if t.Action == nil {
				return fmt.Errorf("%w: action turn %d has no result", ErrInvalidState, i)
			}
			if t.Action.Submit {
				if len(t.Action.Patch) > 0 {
					return fmt.Errorf("%w: submission turn %d carries a patch", ErrInvalidState, i)
				}
				submittedAt = i
				continue
			}
			next, err := patch.ApplyRFC6902(rec, t.Action.Patch, allowedPaths)
			if err != nil {
				return fmt.Errorf("%w: turn %d: %v", ErrInvalidState, i, err)
			}
			rec = next
		default:
			return fmt.Errorf("%w: unknown role %q at turn %d", ErrInvalidState, t.Role, i)
		}
	}
	if issues := v.Check(rec); len(issues) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidState, issues[0].JSONPointer, issues[0].Description)
	}
	if s.Phase != types.PhaseCollecting && !rec.Complete() {
		return fmt.Errorf("%w: phase %q with incomplete record", ErrInvalidState, s.Phase)
	}
	if s.Phase.Terminal() != (submittedAt >= 0) {
		return fmt.Errorf("%w: phase %q does not match the submission turns", ErrInvalidState, s.Phase)
	}
	return nil
}
