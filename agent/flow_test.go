package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/formcopilot/conversation"
	"github.com/tbxark/formcopilot/dialogue"
	"github.com/tbxark/formcopilot/engine/enginetest"
	"github.com/tbxark/formcopilot/protocol"
	"github.com/tbxark/formcopilot/types"
)

type recordingSubmitter struct {
	mu      sync.Mutex
	records []types.Record
	err     error
}

func (s *recordingSubmitter) Submit(ctx context.Context, record types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

var complete = types.Record{
	Name:       "John Doe",
	Email:      "john@example.com",
	ProfileURL: "https://linkedin.com/in/johndoe",
	Idea:       "An agent that books meetings.",
}

func newTestFlow(t *testing.T, script *enginetest.Script, sub Submitter) *FormFlow {
	t.Helper()
	if sub == nil {
		sub = &recordingSubmitter{}
	}
	flow, err := NewFormFlow(script,
		WithSubmitter(sub),
		WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	return flow
}

func update(args string) enginetest.Step {
	return enginetest.Call(protocol.UpdateFormDataToolName, args)
}

func submitCall() enginetest.Step {
	return enginetest.Call(protocol.SubmitFormToolName, "{}")
}

// stateWith builds a conversation whose record is r, in the given phase.
func stateWith(t *testing.T, flow *FormFlow, r types.Record, phase types.Phase) conversation.State {
	t.Helper()
	res, err := flow.ApplyFormEdit(context.Background(), flow.NewConversation(), r)
	require.NoError(t, err)
	return res.State.WithPhase(phase)
}

func turn(t *testing.T, flow *FormFlow, state conversation.State, utterance string) *Response {
	t.Helper()
	resp, err := flow.ProcessTurn(context.Background(), state, utterance)
	require.NoError(t, err)
	return resp
}

func TestEndToEndSubmission(t *testing.T) {
	script := enginetest.NewScript()
	sub := &recordingSubmitter{}
	flow := newTestFlow(t, script, sub)
	state := flow.NewConversation()

	script.Push(update(`{"name":"john doe"}`), enginetest.Text("Nice to meet you, John Doe! What is your email address?"))
	resp := turn(t, flow, state, "john doe")
	require.NotNil(t, resp.ExtractedData)
	assert.Equal(t, types.Record{Name: "John Doe"}, *resp.ExtractedData)
	assert.Equal(t, types.PhaseCollecting, resp.State.Phase)
	assert.Empty(t, resp.SubmissionStatus)
	state = resp.State

	script.Push(update(`{"email":"john@example.com"}`), enginetest.Text("Thanks! What is your profile URL?"))
	resp = turn(t, flow, state, "john@example.com")
	assert.Equal(t, types.Record{Email: "john@example.com"}, *resp.ExtractedData)
	state = resp.State

	script.Push(update(`{"profileUrl":"https://linkedin.com/in/johndoe"}`), enginetest.Text("Got it. Please describe your idea."))
	resp = turn(t, flow, state, "https://linkedin.com/in/johndoe")
	assert.Equal(t, types.PhaseCollecting, resp.State.Phase)
	state = resp.State

	script.Push(update(`{"idea":"An agent that books meetings."}`), enginetest.Text("Thanks! Let me summarize."))
	resp = turn(t, flow, state, "an agent that books meetings")
	assert.Equal(t, types.PhaseConfirmingSummary, resp.State.Phase)
	for _, f := range types.Fields() {
		assert.Contains(t, resp.Reply, complete.Get(f))
	}
	assert.Contains(t, resp.Reply, dialogue.SummaryQuestion)
	assert.Empty(t, resp.SubmissionStatus)
	state = resp.State

	script.Push(enginetest.Text("Great! Are you ready to submit the form?"))
	resp = turn(t, flow, state, "looks good")
	assert.Equal(t, types.PhaseConfirmingSubmission, resp.State.Phase)
	assert.Equal(t, "Great! Are you ready to submit the form?", resp.Reply)
	assert.Nil(t, resp.ExtractedData)
	assert.Empty(t, resp.SubmissionStatus)
	assert.Empty(t, sub.records)
	state = resp.State

	script.Push(submitCall())
	resp = turn(t, flow, state, "yes")
	assert.Equal(t, types.PhaseSubmitted, resp.State.Phase)
	assert.Equal(t, dialogue.Submitted, resp.Reply)
	assert.Equal(t, types.SubmissionSuccess, resp.SubmissionStatus)
	require.Len(t, sub.records, 1)
	assert.Equal(t, complete, sub.records[0])
	assert.Equal(t, complete, resp.State.Record())
	assert.Zero(t, script.Remaining())

	calls := len(script.Requests())
	resp = turn(t, flow, resp.State, "can I change my email?")
	assert.Equal(t, dialogue.AlreadySubmitted, resp.Reply)
	assert.Equal(t, types.PhaseSubmitted, resp.State.Phase)
	assert.Len(t, script.Requests(), calls)
}

func TestEngineSeesAcknowledgmentAndContext(t *testing.T) {
	script := enginetest.NewScript(update(`{"name":"jane q. doe"}`), enginetest.Text("What is your email?"))
	flow := newTestFlow(t, script, nil)
	resp := turn(t, flow, flow.NewConversation(), "I'm jane q. doe")
	assert.Equal(t, "Jane Q. Doe", resp.State.Record().Name)

	reqs := script.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].Tools, 2)
	require.Len(t, reqs[0].History, 1)
	assert.Equal(t, schema.User, reqs[0].History[0].Role)
	assert.Contains(t, reqs[0].System, protocol.DefaultPolicyPrompt)

	follow := reqs[1].History
	require.Len(t, follow, 3)
	assert.Equal(t, schema.Assistant, follow[1].Role)
	require.Len(t, follow[1].ToolCalls, 1)
	assert.Equal(t, schema.Tool, follow[2].Role)
	assert.Contains(t, follow[2].Content, `"success":true`)
	assert.Contains(t, follow[2].Content, "Jane Q. Doe")
	assert.Contains(t, reqs[1].System, "Jane Q. Doe")
}

func TestEngineFailureKeepsOnlyUserTurn(t *testing.T) {
	script := enginetest.NewScript(enginetest.Fail(nil))
	flow := newTestFlow(t, script, nil)
	state := stateWith(t, flow, types.Record{Name: "John Doe"}, types.PhaseCollecting)

	resp := turn(t, flow, state, "john@example.com")
	assert.Equal(t, dialogue.Retry, resp.Reply)
	assert.NotEmpty(t, resp.Metadata["error"])
	assert.Nil(t, resp.ExtractedData)
	require.Len(t, resp.State.Turns, len(state.Turns)+1)
	assert.Equal(t, conversation.UserTurn("john@example.com"), resp.State.Turns[len(state.Turns)])
	assert.Equal(t, state.Record(), resp.State.Record())
	assert.Equal(t, state.Phase, resp.State.Phase)

	script.Push(update(`{"email":"john@example.com"}`), enginetest.Text("Thanks!"))
	resp = turn(t, flow, resp.State, "john@example.com")
	assert.Equal(t, "john@example.com", resp.State.Record().Email)
	assert.Empty(t, resp.Metadata)
}

func TestFollowUpFailureRollsBackUpdate(t *testing.T) {
	script := enginetest.NewScript(update(`{"email":"john@example.com"}`), enginetest.Fail(nil))
	flow := newTestFlow(t, script, nil)
	state := stateWith(t, flow, types.Record{Name: "John Doe"}, types.PhaseCollecting)

	resp := turn(t, flow, state, "john@example.com")
	assert.Equal(t, dialogue.Retry, resp.Reply)
	assert.Empty(t, resp.State.Record().Email)
	assert.Nil(t, resp.ExtractedData)
	assert.Len(t, resp.State.Turns, len(state.Turns)+1)
}

func TestUpdateIsIdempotent(t *testing.T) {
	script := enginetest.NewScript(update(`{"name":"John Doe"}`), enginetest.Text("Already saved. What is your email?"))
	flow := newTestFlow(t, script, nil)
	state := stateWith(t, flow, types.Record{Name: "John Doe"}, types.PhaseCollecting)

	resp := turn(t, flow, state, "my name is John Doe")
	assert.Nil(t, resp.ExtractedData)
	assert.Equal(t, state.Record(), resp.State.Record())
	assert.Equal(t, "Already saved. What is your email?", resp.Reply)
}

func TestRejectedValueIsNotCommitted(t *testing.T) {
	script := enginetest.NewScript(update(`{"email":"bob@"}`), enginetest.Text(""))
	flow := newTestFlow(t, script, nil)
	state := stateWith(t, flow, types.Record{Name: "Bob Smith"}, types.PhaseCollecting)

	resp := turn(t, flow, state, "bob@")
	assert.Nil(t, resp.ExtractedData)
	assert.Empty(t, resp.State.Record().Email)
	assert.True(t, strings.HasPrefix(resp.Reply, "I could not save: Email"))

	reqs := script.Requests()
	require.Len(t, reqs, 2)
	ack := reqs[1].History[len(reqs[1].History)-1]
	assert.Contains(t, ack.Content, `"rejected"`)
	assert.Contains(t, reqs[1].System, "# Rejected values")
}

func TestLastWriteWins(t *testing.T) {
	script := enginetest.NewScript(update(`{"email":"new@example.com"}`), enginetest.Text("Updated."))
	flow := newTestFlow(t, script, nil)
	state := stateWith(t, flow, complete, types.PhaseConfirmingSummary)

	resp := turn(t, flow, state, "use new@example.com instead")
	assert.Equal(t, "new@example.com", resp.State.Record().Email)
	assert.Equal(t, types.Record{Email: "new@example.com"}, *resp.ExtractedData)
	assert.Equal(t, types.PhaseConfirmingSummary, resp.State.Phase)
	assert.Contains(t, resp.Reply, "new@example.com")
	assert.Contains(t, resp.Reply, dialogue.SummaryQuestion)
}

func TestChangeDuringSubmissionReturnsToSummary(t *testing.T) {
	script := enginetest.NewScript(update(`{"idea":"An agent that plans trips."}`), enginetest.Text("Updated your idea."))
	flow := newTestFlow(t, script, nil)
	state := stateWith(t, flow, complete, types.PhaseConfirmingSubmission)

	resp := turn(t, flow, state, "actually change my idea to an agent that plans trips")
	assert.Equal(t, types.PhaseConfirmingSummary, resp.State.Phase)
	assert.Contains(t, resp.Reply, "An agent that plans trips.")
	assert.Empty(t, resp.SubmissionStatus)
}

func TestDeclineReturnsToSummary(t *testing.T) {
	script := enginetest.NewScript(enginetest.Text("No problem. What would you like to change?"))
	flow := newTestFlow(t, script, nil)
	state := stateWith(t, flow, complete, types.PhaseConfirmingSubmission)

	resp := turn(t, flow, state, "not yet")
	assert.Equal(t, types.PhaseConfirmingSummary, resp.State.Phase)
	assert.Contains(t, resp.Reply, "No problem.")
	assert.Contains(t, resp.Reply, complete.Email)
	assert.Contains(t, script.Requests()[0].System, string(types.PhaseConfirmingSummary))
}

func TestPrematureSubmitIsRefused(t *testing.T) {
	sub := &recordingSubmitter{}
	script := enginetest.NewScript(submitCall())
	flow := newTestFlow(t, script, sub)
	state := stateWith(t, flow, complete, types.PhaseConfirmingSummary)

	resp := turn(t, flow, state, "looks good")
	assert.Empty(t, sub.records)
	assert.Empty(t, resp.SubmissionStatus)
	assert.Equal(t, types.PhaseConfirmingSubmission, resp.State.Phase)
	assert.Equal(t, dialogue.SubmissionQuestion, resp.Reply)
	assert.Equal(t, ErrPrematureSubmit.Error(), resp.Metadata["error"])
}

func TestAffirmingSummaryNeverSubmits(t *testing.T) {
	sub := &recordingSubmitter{}
	script := enginetest.NewScript(
		update(`{"name":"john doe","email":"john@example.com","profileUrl":"https://linkedin.com/in/johndoe","idea":"An agent that books meetings."}`),
		enginetest.Text("Here is what I have."),
	)
	flow := newTestFlow(t, script, sub)

	resp := turn(t, flow, flow.NewConversation(), "I'm John Doe, john@example.com, https://linkedin.com/in/johndoe, an agent that books meetings")
	require.Equal(t, types.PhaseConfirmingSummary, resp.State.Phase)

	script.Push(submitCall())
	resp = turn(t, flow, resp.State, "looks good")
	assert.Empty(t, sub.records)
	assert.Empty(t, resp.SubmissionStatus)
	assert.Equal(t, types.PhaseConfirmingSubmission, resp.State.Phase)
	assert.Equal(t, dialogue.SubmissionQuestion, resp.Reply)

	script.Push(submitCall())
	resp = turn(t, flow, resp.State, "yes")
	assert.Equal(t, types.SubmissionSuccess, resp.SubmissionStatus)
	require.Len(t, sub.records, 1)
	assert.Equal(t, complete, sub.records[0])
}

func TestSubmitWhileCollectingIsRefused(t *testing.T) {
	sub := &recordingSubmitter{}
	script := enginetest.NewScript(enginetest.CallWithText("Submitting!", protocol.SubmitFormToolName, "{}"))
	flow := newTestFlow(t, script, sub)
	state := stateWith(t, flow, types.Record{Name: "John Doe"}, types.PhaseCollecting)

	resp := turn(t, flow, state, "submit it")
	assert.Empty(t, sub.records)
	assert.Equal(t, types.PhaseCollecting, resp.State.Phase)
	assert.Equal(t, "Submitting!", resp.Reply)
	assert.NotEmpty(t, resp.Metadata["error"])
}

func TestSubmitterFailureRollsBack(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("downstream unavailable")}
	script := enginetest.NewScript(submitCall())
	flow := newTestFlow(t, script, sub)
	state := stateWith(t, flow, complete, types.PhaseConfirmingSubmission)

	resp := turn(t, flow, state, "yes")
	assert.Equal(t, dialogue.Retry, resp.Reply)
	assert.Empty(t, resp.SubmissionStatus)
	assert.Equal(t, types.PhaseConfirmingSubmission, resp.State.Phase)
	assert.Contains(t, resp.Metadata["error"], "downstream unavailable")

	sub.err = nil
	script.Push(submitCall())
	resp = turn(t, flow, resp.State, "yes")
	assert.Equal(t, types.SubmissionSuccess, resp.SubmissionStatus)
	assert.Len(t, sub.records, 1)
}

func TestProtocolViolations(t *testing.T) {
	cases := map[string]enginetest.Step{
		"undeclared":       enginetest.Call("delete_form", "{}"),
		"malformed":        update(`{"email":`),
		"submit with args": enginetest.Call(protocol.SubmitFormToolName, `{"force":true}`),
	}
	for name, step := range cases {
		t.Run(name, func(t *testing.T) {
			sub := &recordingSubmitter{}
			script := enginetest.NewScript(step)
			flow := newTestFlow(t, script, sub)
			state := stateWith(t, flow, complete, types.PhaseConfirmingSubmission)

			resp := turn(t, flow, state, "yes")
			assert.Equal(t, dialogue.Retry, resp.Reply)
			assert.NotEmpty(t, resp.Metadata["error"])
			assert.Equal(t, state.Record(), resp.State.Record())
			assert.Equal(t, types.PhaseConfirmingSubmission, resp.State.Phase)
			assert.Len(t, resp.State.Turns, len(state.Turns)+1)
			assert.Empty(t, sub.records)
		})
	}
}

func TestViolationWithTextKeepsText(t *testing.T) {
	script := enginetest.NewScript(enginetest.CallWithText("What is your email?", "lookup_user", "{}"))
	flow := newTestFlow(t, script, nil)
	resp := turn(t, flow, flow.NewConversation(), "John Doe")
	assert.Equal(t, "What is your email?", resp.Reply)
	assert.Equal(t, conversation.AssistantTurn("What is your email?"), resp.State.Turns[len(resp.State.Turns)-1])
}

func TestViolationWithTextFollowsIntent(t *testing.T) {
	sub := &recordingSubmitter{}
	script := enginetest.NewScript(enginetest.CallWithText("Great! Are you ready to submit the form?", "lookup_user", "{}"))
	flow := newTestFlow(t, script, sub)
	state := stateWith(t, flow, complete, types.PhaseConfirmingSummary)

	resp := turn(t, flow, state, "Yes, that's correct!")
	assert.Equal(t, types.PhaseConfirmingSubmission, resp.State.Phase)
	assert.Equal(t, "Great! Are you ready to submit the form?", resp.Reply)
	assert.NotEmpty(t, resp.Metadata["error"])
	assert.Equal(t, complete, resp.State.Record())

	script.Push(submitCall())
	resp = turn(t, flow, resp.State, "yes")
	assert.Equal(t, types.PhaseSubmitted, resp.State.Phase)
	assert.Len(t, sub.records, 1)

	script.Push(enginetest.CallWithText("No problem.", "lookup_user", "{}"))
	state = stateWith(t, flow, complete, types.PhaseConfirmingSubmission)
	resp = turn(t, flow, state, "not yet")
	assert.Equal(t, types.PhaseConfirmingSummary, resp.State.Phase)
	assert.Contains(t, resp.Reply, "No problem.")
	assert.Contains(t, resp.Reply, complete.Email)
	assert.NotEmpty(t, resp.Metadata["error"])
}

func TestFollowUpActionsAreIgnored(t *testing.T) {
	script := enginetest.NewScript(
		update(`{"name":"john doe"}`),
		enginetest.CallWithText("Thanks John!", protocol.UpdateFormDataToolName, `{"email":"x@example.com"}`),
	)
	flow := newTestFlow(t, script, nil)
	resp := turn(t, flow, flow.NewConversation(), "john doe")
	assert.Equal(t, "Thanks John!", resp.Reply)
	assert.Equal(t, types.Record{Name: "John Doe"}, resp.State.Record())
}

func TestEmptyFollowUpUsesFallback(t *testing.T) {
	script := enginetest.NewScript(update(`{"name":"john doe"}`), enginetest.Text("  "))
	flow := newTestFlow(t, script, nil)
	resp := turn(t, flow, flow.NewConversation(), "john doe")
	assert.Equal(t, dialogue.NextQuestion(types.Record{Name: "John Doe"}.Missing()), resp.Reply)
}

func TestEmptyInput(t *testing.T) {
	script := enginetest.NewScript()
	flow := newTestFlow(t, script, nil)
	_, err := flow.ProcessTurn(context.Background(), flow.NewConversation(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, script.Requests())
}

func TestProcessTurnDoesNotMutateInput(t *testing.T) {
	script := enginetest.NewScript(update(`{"name":"john doe"}`), enginetest.Text("Email?"))
	flow := newTestFlow(t, script, nil)
	state := flow.NewConversation()
	before := len(state.Turns)
	_ = turn(t, flow, state, "john doe")
	assert.Len(t, state.Turns, before)
	assert.Equal(t, types.PhaseCollecting, state.Phase)
}

func TestApplyFormEdit(t *testing.T) {
	flow := newTestFlow(t, enginetest.NewScript(), nil)
	state := flow.NewConversation()

	res, err := flow.ApplyFormEdit(context.Background(), state, types.Record{Name: "jane doe", Email: "jane@"})
	require.NoError(t, err)
	assert.Equal(t, types.Record{Name: "Jane Doe"}, *res.ExtractedData)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "/email", res.Rejected[0].JSONPointer)
	assert.Equal(t, types.PhaseCollecting, res.State.Phase)
	assert.Empty(t, res.State.Messages(), "form edits are not sent to the engine")

	res, err = flow.ApplyFormEdit(context.Background(), res.State, complete)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseConfirmingSummary, res.State.Phase)
	assert.Equal(t, complete, res.State.Record())

	same, err := flow.ApplyFormEdit(context.Background(), res.State, complete)
	require.NoError(t, err)
	assert.Nil(t, same.ExtractedData)
	assert.Len(t, same.State.Turns, len(res.State.Turns))

	confirming := res.State.WithPhase(types.PhaseConfirmingSubmission)
	res, err = flow.ApplyFormEdit(context.Background(), confirming, types.Record{Idea: "Something else"})
	require.NoError(t, err)
	assert.Equal(t, types.PhaseConfirmingSummary, res.State.Phase)

	_, err = flow.ApplyFormEdit(context.Background(), res.State.WithPhase(types.PhaseSubmitted), complete)
	assert.ErrorIs(t, err, ErrSubmitted)
}

func TestSubmitForm(t *testing.T) {
	sub := &recordingSubmitter{}
	flow := newTestFlow(t, enginetest.NewScript(), sub)
	edit, err := flow.ApplyFormEdit(context.Background(), flow.NewConversation(), complete)
	require.NoError(t, err)

	resp, err := flow.SubmitForm(context.Background(), edit.State)
	require.NoError(t, err)
	assert.Equal(t, dialogue.Submitted, resp.Reply)
	assert.Equal(t, types.SubmissionSuccess, resp.SubmissionStatus)
	assert.Equal(t, types.PhaseSubmitted, resp.State.Phase)
	assert.Equal(t, []types.Record{complete}, sub.records)
	assert.Equal(t, complete, resp.State.Record())
	assert.NoError(t, resp.State.Validate(flow.validator))

	_, err = flow.SubmitForm(context.Background(), resp.State)
	assert.ErrorIs(t, err, ErrSubmitted)
	assert.Len(t, sub.records, 1)
}

func TestSubmitFormRequiresCompleteRecord(t *testing.T) {
	sub := &recordingSubmitter{}
	flow := newTestFlow(t, enginetest.NewScript(), sub)
	edit, err := flow.ApplyFormEdit(context.Background(), flow.NewConversation(), types.Record{Name: "Jane Doe", Email: "jane@example.com"})
	require.NoError(t, err)

	_, err = flow.SubmitForm(context.Background(), edit.State)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	var recErr *RecordError
	require.True(t, errors.As(err, &recErr))
	require.Len(t, recErr.Issues, 2)
	assert.Equal(t, "/profileUrl", recErr.Issues[0].JSONPointer)
	assert.Empty(t, sub.records)
}

func TestSubmitFormSubmitterFailure(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("downstream unavailable")}
	flow := newTestFlow(t, enginetest.NewScript(), sub)
	edit, err := flow.ApplyFormEdit(context.Background(), flow.NewConversation(), complete)
	require.NoError(t, err)

	_, err = flow.SubmitForm(context.Background(), edit.State)
	assert.ErrorContains(t, err, "downstream unavailable")
	assert.NotErrorIs(t, err, ErrInvalidRecord)
}
