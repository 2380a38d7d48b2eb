package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/tbxark/formcopilot/types"
)

// SubmittedAck is the tool result recorded for an accepted submit_form.
const SubmittedAck = `{"success":true,"message":"Form submitted"}`

// Rejection tells the engine which proposed value was not saved and why.
type Rejection struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Ack is the structured acknowledgment returned to the engine as the result
// of update_form_data.
type Ack struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	Saved    types.Record `json:"saved"`
	Rejected []Rejection  `json:"rejected,omitempty"`
}

func NewAck(saved types.Record, rejected []types.FieldInfo) Ack {
	ack := Ack{
		Success: len(rejected) == 0,
		Message: "Data received",
		Saved:   saved,
	}
	if len(rejected) > 0 {
		ack.Message = "Some values were rejected and not saved; ask the user for them again"
	}
	for _, r := range rejected {
		ack.Rejected = append(ack.Rejected, Rejection{Field: r.JSONPointer, Reason: r.Description})
	}
	return ack
}

func (a Ack) Encode() (string, error) {
	s, err := sonic.MarshalString(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode ack: %w", err)
	}
	return s, nil
}
