package conversation

import (
	"github.com/cloudwego/eino/schema"
)

// Messages renders the history the engine sees. The greeting and form edits
// are left out; each chat update becomes the assistant tool call followed by
// the tool acknowledgment.
func (s State) Messages() []*schema.Message {
	out := make([]*schema.Message, 0, len(s.Turns))
	for _, t := range s.Turns {
		if t.Greeting {
			continue
		}
		switch t.Role {
		case RoleUser:
			out = append(out, schema.UserMessage(t.Content))
		case RoleAssistant:
			out = append(out, schema.AssistantMessage(t.Content, nil))
		case RoleActionResult:
			if t.Action == nil || t.Action.Source != SourceChat {
				continue
			}
			out = append(out, actionMessages(t.Action)...)
		}
	}
	return out
}

func actionMessages(a *ActionResult) []*schema.Message {
	args := a.Arguments
	if args == "" {
		args = "{}"
	}
	call := schema.AssistantMessage("", []schema.ToolCall{{
		ID:   a.CallID,
		Type: "function",
		Function: schema.FunctionCall{
			Name:      a.Name,
			Arguments: args,
		},
	}})
	result := &schema.Message{
		Role:       schema.Tool,
		Content:    a.Ack,
		ToolCallID: a.CallID,
		ToolName:   a.Name,
	}
	return []*schema.Message{call, result}
}
