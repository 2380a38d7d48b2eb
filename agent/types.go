package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbxark/formcopilot/conversation"
	"github.com/tbxark/formcopilot/types"
)

var (
	ErrEmptyInput      = errors.New("empty user input")
	ErrSubmitted       = errors.New("form already submitted")
	ErrPrematureSubmit = errors.New("submit_form before the submission was confirmed")
	ErrInvalidRecord   = errors.New("record failed validation at submission")
)

// RecordError lists what keeps a record from being submitted.
type RecordError struct {
	Issues []types.FieldInfo
}

func (e *RecordError) Error() string {
	if len(e.Issues) == 0 {
		return ErrInvalidRecord.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidRecord, e.Issues[0].JSONPointer)
}

func (e *RecordError) Unwrap() error {
	return ErrInvalidRecord
}

// Response is the outcome of one conversational turn.
type Response struct {
	Reply string `json:"reply"`

	// ExtractedData holds only the fields this turn changed; nil when the
	// record did not change.
	ExtractedData    *types.Record      `json:"extractedData"`
	SubmissionStatus string             `json:"submissionStatus,omitempty"`
	State            conversation.State `json:"state"`
	Metadata         map[string]string  `json:"metadata,omitempty"`
}

// FormEditResult is the outcome of a direct form edit.
type FormEditResult struct {
	State         conversation.State `json:"state"`
	ExtractedData *types.Record      `json:"extractedData"`
	Rejected      []types.FieldInfo  `json:"rejected,omitempty"`
}

// Submitter delivers a confirmed record.
type Submitter interface {
	Submit(ctx context.Context, record types.Record) error
}

type SubmitterFunc func(ctx context.Context, record types.Record) error

func (f SubmitterFunc) Submit(ctx context.Context, record types.Record) error {
	return f(ctx, record)
}
