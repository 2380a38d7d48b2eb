package dialogue

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tbxark/formcopilot/types"
)

var full = types.Record{
	Name:       "John Doe",
	Email:      "john@example.com",
	ProfileURL: "https://linkedin.com/in/johndoe",
	Idea:       "An agent that books meetings.",
}

func TestNextQuestion(t *testing.T) {
	assert.Equal(t, questions[types.FieldEmail], NextQuestion(types.Record{Name: "John"}.Missing()))
	assert.Equal(t, Done, NextQuestion(nil))
}

func TestSummaryListsEveryField(t *testing.T) {
	s := Summary(full)
	for _, f := range types.Fields() {
		assert.Contains(t, s, f.DisplayName()+": "+full.Get(f))
	}
	assert.True(t, strings.HasSuffix(s, SummaryQuestion))
}

func TestFallback(t *testing.T) {
	assert.Equal(t, questions[types.FieldName], Fallback(types.PhaseCollecting, types.Record{}))
	assert.Equal(t, Summary(full), Fallback(types.PhaseConfirmingSummary, full))
	assert.Equal(t, SubmissionQuestion, Fallback(types.PhaseConfirmingSubmission, full))
	assert.Equal(t, AlreadySubmitted, Fallback(types.PhaseSubmitted, full))
}

func TestEnsureSummary(t *testing.T) {
	complete := "Name: John Doe, Email: john@example.com, Profile: https://linkedin.com/in/johndoe, Idea: An agent that books meetings. Does everything look correct?"
	assert.Equal(t, complete, EnsureSummary(complete, full))

	partial := EnsureSummary("Thanks! Here is your summary.", full)
	assert.True(t, strings.HasPrefix(partial, "Thanks!"))
	assert.Contains(t, partial, Summary(full))

	assert.Equal(t, Summary(full), EnsureSummary("  ", full))
}

func TestEnsureSubmissionQuestion(t *testing.T) {
	assert.Equal(t, "Ready to submit?", EnsureSubmissionQuestion("Ready to submit?"))
	assert.Equal(t, "Great.\n\n"+SubmissionQuestion, EnsureSubmissionQuestion("Great."))
	assert.Equal(t, SubmissionQuestion, EnsureSubmissionQuestion(""))
}

func TestRejected(t *testing.T) {
	assert.Empty(t, Rejected(nil))
	msg := Rejected([]types.FieldInfo{{JSONPointer: "/email", DisplayName: "Email", Description: "missing @"}})
	assert.Equal(t, "I could not save: Email (missing @).", msg)
}
