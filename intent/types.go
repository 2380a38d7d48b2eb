// Package intent classifies the user's answer to a confirmation question.
package intent

import (
	"context"

	"github.com/tbxark/formcopilot/types"
)

type Intent string

const (
	Affirm  Intent = "affirm"
	Decline Intent = "decline"
	None    Intent = "none"
)

// Request pairs the assistant's last question with the user's answer.
type Request struct {
	Phase    types.Phase
	Question string
	Answer   string
}

type Recognizer interface {
	Recognize(ctx context.Context, req *Request) (Intent, error)
}
