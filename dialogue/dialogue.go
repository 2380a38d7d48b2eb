// Package dialogue holds the deterministic assistant texts used when the
// engine is bypassed or its reply is incomplete.
package dialogue

import (
	"fmt"
	"strings"

	"github.com/tbxark/formcopilot/types"
)

const (
	SummaryQuestion    = "Does everything look correct, or would you like to modify anything?"
	SubmissionQuestion = "Great! Are you ready to submit the form?"
	Submitted          = "Thank you! Your submission has been received."
	Retry              = "Sorry, something went wrong. Please try again."
	AlreadySubmitted   = "Your submission has already been received. Thank you!"
	Done               = "All fields are filled in."
)

const greeting = "Welcome. This is the submission form for new AI agent ideas. " +
	"I will guide you through the four required fields. To begin, please provide your full name."

// Greeting is the synthetic first assistant turn.
func Greeting() string {
	return greeting
}

var questions = map[types.Field]string{
	types.FieldName:       "Could you please provide your full name?",
	types.FieldEmail:      "What is your email address?",
	types.FieldProfileURL: "Please share the URL of your professional profile, for example your LinkedIn page.",
	types.FieldIdea:       "Finally, please describe your AI agent idea.",
}

// NextQuestion asks for the first missing field.
func NextQuestion(missing []types.FieldInfo) string {
	if len(missing) == 0 {
		return Done
	}
	f, ok := types.FieldByPointer(missing[0].JSONPointer)
	if !ok {
		return fmt.Sprintf("Please provide your %s.", strings.ToLower(missing[0].DisplayName))
	}
	return questions[f]
}

// Summary lists every field as "key: value" and asks for confirmation.
func Summary(r types.Record) string {
	var sb strings.Builder
	sb.WriteString("Here is a summary of your submission:\n\n")
	for _, f := range types.Fields() {
		fmt.Fprintf(&sb, "- %s: %s\n", f.DisplayName(), r.Get(f))
	}
	sb.WriteString("\n")
	sb.WriteString(SummaryQuestion)
	return sb.String()
}

// Rejected explains which proposed values were not saved.
func Rejected(rejected []types.FieldInfo) string {
	if len(rejected) == 0 {
		return ""
	}
	parts := make([]string, 0, len(rejected))
	for _, r := range rejected {
		name := r.DisplayName
		if name == "" {
			name = r.JSONPointer
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, r.Description))
	}
	return "I could not save: " + strings.Join(parts, "; ") + "."
}

// Fallback is the reply used when the engine produced no usable text.
func Fallback(phase types.Phase, r types.Record) string {
	switch phase {
	case types.PhaseConfirmingSummary:
		return Summary(r)
	case types.PhaseConfirmingSubmission:
		return SubmissionQuestion
	case types.PhaseSubmitted:
		return AlreadySubmitted
	default:
		return NextQuestion(r.Missing())
	}
}

// EnsureSummary appends the summary when reply omits any field value.
func EnsureSummary(reply string, r types.Record) string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return Summary(r)
	}
	for _, f := range types.Fields() {
		if v := r.Get(f); v != "" && !strings.Contains(reply, v) {
			return reply + "\n\n" + Summary(r)
		}
	}
	if !strings.Contains(reply, "?") {
		return reply + "\n\n" + SummaryQuestion
	}
	return reply
}

// EnsureSubmissionQuestion appends the explicit question when reply does not
// ask about submitting.
func EnsureSubmissionQuestion(reply string) string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return SubmissionQuestion
	}
	if strings.Contains(reply, "?") && strings.Contains(strings.ToLower(reply), "submit") {
		return reply
	}
	return reply + "\n\n" + SubmissionQuestion
}
