package conversation

import (
	"github.com/tbxark/formcopilot/patch"
	"github.com/tbxark/formcopilot/types"
)

type Role string

const (
	RoleUser         Role = "user"
	RoleAssistant    Role = "assistant"
	RoleActionResult Role = "action_result"
)

// Source tells where a committed update came from.
type Source string

const (
	SourceChat Source = "chat"
	SourceForm Source = "form"
)

// Turn is one immutable entry of the conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// Greeting marks the synthetic opening message; it is shown to the user
	// but never sent to the engine.
	Greeting bool `json:"greeting,omitempty"`

	Action *ActionResult `json:"action,omitempty"`
}

// ActionResult records an update that went through validation. Patch holds
// the committed operations; an empty patch means nothing changed.
type ActionResult struct {
	Source    Source            `json:"source"`
	CallID    string            `json:"call_id,omitempty"`
	Name      string            `json:"name"`
	Arguments string            `json:"arguments,omitempty"`
	Patch     []patch.Operation `json:"patch,omitempty"`
	Rejected  []types.FieldInfo `json:"rejected,omitempty"`
	Ack       string            `json:"ack,omitempty"`

	// Submit marks the turn that delivered the record.
	Submit bool `json:"submit,omitempty"`
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Content: text}
}

func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Content: text}
}

func ActionTurn(result ActionResult) Turn {
	return Turn{Role: RoleActionResult, Action: &result}
}
