package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
)

type ActionKind string

const (
	KindPlainText      ActionKind = "plain_text"
	KindUpdateFormData ActionKind = "update_form_data"
	KindSubmitForm     ActionKind = "submit_form"
	KindUnrecognized   ActionKind = "unrecognized"
)

var (
	ErrEmptyResponse       = errors.New("engine returned no message")
	ErrUndeclaredAction    = errors.New("undeclared action")
	ErrMalformedArguments  = errors.New("malformed action arguments")
	ErrSubmitWithArguments = errors.New("submit_form does not take arguments")
)

// Action is the decoded engine response. Exactly one of the kinds applies;
// Violation is set only for KindUnrecognized.
type Action struct {
	Kind ActionKind

	// Text is the natural-language content that came with the response, if any.
	Text string

	CallID    string
	Name      string
	Arguments string
	Update    *UpdateFormDataArgs

	// Ignored counts tool calls after the first one.
	Ignored   int
	Violation error
}

func (a Action) IsAction() bool {
	return a.Kind == KindUpdateFormData || a.Kind == KindSubmitForm
}

// Decode maps an engine message onto the closed set of actions. Only the
// first tool call is considered.
func Decode(msg *schema.Message) Action {
	if msg == nil {
		return Action{Kind: KindUnrecognized, Violation: ErrEmptyResponse}
	}
	text := strings.TrimSpace(msg.Content)
	if len(msg.ToolCalls) == 0 {
		return Action{Kind: KindPlainText, Text: text}
	}

	call := msg.ToolCalls[0]
	act := Action{
		Text:      text,
		CallID:    call.ID,
		Name:      call.Function.Name,
		Arguments: call.Function.Arguments,
		Ignored:   len(msg.ToolCalls) - 1,
	}
	args := strings.TrimSpace(call.Function.Arguments)
	if args == "" || args == "null" {
		args = "{}"
	}

	switch call.Function.Name {
	case UpdateFormDataToolName:
		var update UpdateFormDataArgs
		if err := sonic.UnmarshalString(args, &update); err != nil {
			act.Kind = KindUnrecognized
			act.Violation = fmt.Errorf("%w: %s: %v", ErrMalformedArguments, call.Function.Name, err)
			return act
		}
		act.Kind = KindUpdateFormData
		act.Update = &update
	case SubmitFormToolName:
		var raw map[string]any
		if err := sonic.UnmarshalString(args, &raw); err != nil {
			act.Kind = KindUnrecognized
			act.Violation = fmt.Errorf("%w: %s: %v", ErrMalformedArguments, call.Function.Name, err)
			return act
		}
		if len(raw) > 0 {
			act.Kind = KindUnrecognized
			act.Violation = ErrSubmitWithArguments
			return act
		}
		act.Kind = KindSubmitForm
	default:
		act.Kind = KindUnrecognized
		act.Violation = fmt.Errorf("%w: %q", ErrUndeclaredAction, call.Function.Name)
	}
	return act
}
