package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/tbxark/formcopilot/conversation"
	"github.com/tbxark/formcopilot/dialogue"
	"github.com/tbxark/formcopilot/engine"
	"github.com/tbxark/formcopilot/intent"
	"github.com/tbxark/formcopilot/patch"
	"github.com/tbxark/formcopilot/protocol"
	"github.com/tbxark/formcopilot/submit"
	"github.com/tbxark/formcopilot/types"
	"github.com/tbxark/formcopilot/validate"
)

const (
	formEditActionName   = "form_edit"
	formSubmitActionName = "form_submit"
)

// FormFlow processes conversational turns against an explicit conversation
// state. It holds no per-conversation data and is safe for concurrent use
// across conversations.
type FormFlow struct {
	engine     engine.Engine
	validator  *validate.Validator
	recognizer intent.Recognizer
	submitter  Submitter
	policy     string
	schema     string
	now        func() time.Time
}

type Option func(*FormFlow)

func WithValidator(v *validate.Validator) Option {
	return func(f *FormFlow) {
		f.validator = v
	}
}

func WithRecognizer(r intent.Recognizer) Option {
	return func(f *FormFlow) {
		f.recognizer = r
	}
}

func WithSubmitter(s Submitter) Option {
	return func(f *FormFlow) {
		f.submitter = s
	}
}

// WithPolicyPrompt replaces the behavioural policy sent with every call.
func WithPolicyPrompt(policy string) Option {
	return func(f *FormFlow) {
		f.policy = policy
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *FormFlow) {
		f.now = now
	}
}

func NewFormFlow(eng engine.Engine, opts ...Option) (*FormFlow, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	recordSchema, err := protocol.RecordSchema()
	if err != nil {
		return nil, err
	}
	if _, err := protocol.Tools(); err != nil {
		return nil, err
	}
	f := &FormFlow{
		engine:     eng,
		validator:  validate.New(),
		recognizer: intent.NewLocalRecognizer(),
		submitter:  submit.NewLogSubmitter(nil),
		policy:     protocol.DefaultPolicyPrompt,
		schema:     recordSchema,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// NewToolBasedFormFlow drives both the turn engine and the confirmation
// classifier with chatModel. Keyword matching remains as the fallback.
func NewToolBasedFormFlow(chatModel model.ToolCallingChatModel, opts ...Option) (*FormFlow, error) {
	recognizer, err := intent.NewToolBasedRecognizer(chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool-based intent recognizer: %w", err)
	}
	base := []Option{
		WithRecognizer(intent.NewFailbackRecognizer(recognizer, intent.NewLocalRecognizer())),
	}
	return NewFormFlow(engine.NewChatEngine(chatModel), append(base, opts...)...)
}

// NewConversation returns a fresh state holding only the greeting.
func (f *FormFlow) NewConversation() conversation.State {
	return conversation.New(dialogue.Greeting())
}

// ProcessTurn handles one user utterance and returns the reply together with
// the next state. Engine failures and protocol violations are reported in the
// response, never as an error.
func (f *FormFlow) ProcessTurn(ctx context.Context, state conversation.State, utterance string) (*Response, error) {
	ctx = callbacks.EnsureRunInfo(ctx, "FormFlow", "Agent")
	ctx = callbacks.OnStart(ctx, map[string]any{
		"input":        utterance,
		"phase":        string(state.Phase),
		"conversation": state.ID,
	})

	defer func() {
		if r := recover(); r != nil {
			callbacks.OnError(ctx, fmt.Errorf("panic in FormFlow.ProcessTurn: %v", r))
			panic(r)
		}
	}()

	response, err := f.runInternal(ctx, state, utterance)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}

	callbacks.OnEnd(ctx, map[string]any{
		"reply":             response.Reply,
		"phase":             string(response.State.Phase),
		"submission_status": response.SubmissionStatus,
	})
	return response, nil
}

func (f *FormFlow) runInternal(ctx context.Context, state conversation.State, utterance string) (*Response, error) {
	if state.Phase == "" {
		state.Phase = types.PhaseCollecting
	}
	if state.Phase.Terminal() {
		return &Response{Reply: dialogue.AlreadySubmitted, State: state}, nil
	}
	if strings.TrimSpace(utterance) == "" {
		return nil, ErrEmptyInput
	}

	prePhase := state.Phase
	question := state.LastAssistant()
	withUser := state.Append(conversation.UserTurn(utterance))
	record := withUser.Record()

	phase := f.recognizePhase(ctx, prePhase, question, utterance)
	slog.Debug("Recognized phase", "conversation", state.ID, "from", prePhase, "to", phase)

	msg, err := f.generate(ctx, withUser.WithPhase(phase), record, nil)
	if err != nil {
		return f.handleError(fmt.Errorf("failed to generate response: %w", err), withUser)
	}
	act := protocol.Decode(msg)
	if act.Ignored > 0 {
		slog.Warn("Ignoring extra tool calls", "conversation", state.ID, "count", act.Ignored)
	}
	slog.Debug("Decoded action", "conversation", state.ID, "kind", act.Kind, "name", act.Name)

	switch act.Kind {
	case protocol.KindPlainText:
		return f.reply(withUser.WithPhase(phase), act.Text, nil), nil
	case protocol.KindUpdateFormData:
		return f.update(ctx, withUser, phase, act)
	case protocol.KindSubmitForm:
		if prePhase != types.PhaseConfirmingSubmission {
			return f.prematureSubmit(withUser.WithPhase(phase), act), nil
		}
		return f.submit(ctx, withUser, phase, act)
	default:
		return f.violation(withUser, phase, act), nil
	}
}

func (f *FormFlow) recognizePhase(ctx context.Context, current types.Phase, question, answer string) types.Phase {
	if current != types.PhaseConfirmingSummary && current != types.PhaseConfirmingSubmission {
		return current
	}
	it, err := f.recognizer.Recognize(ctx, &intent.Request{
		Phase:    current,
		Question: question,
		Answer:   answer,
	})
	if err != nil {
		slog.Warn("Failed to recognize intent", "error", err)
		return current
	}
	return phaseAfterIntent(current, it)
}

func (f *FormFlow) generate(ctx context.Context, state conversation.State, record types.Record, rejected []types.FieldInfo) (*schema.Message, error) {
	tools, err := protocol.Tools()
	if err != nil {
		return nil, err
	}
	system := protocol.SystemPrompt(f.policy, &types.PromptContext{
		Now:      f.now(),
		Phase:    state.Phase,
		Record:   record,
		Rejected: rejected,
		Schema:   f.schema,
	})
	return f.engine.Generate(ctx, &engine.Request{
		System:  system,
		History: state.Messages(),
		Tools:   tools,
	})
}

func (f *FormFlow) update(ctx context.Context, withUser conversation.State, phase types.Phase, act protocol.Action) (*Response, error) {
	current := withUser.Record()
	result := f.validator.Apply(act.Update.Values())
	proposed := current
	for _, field := range result.Fields {
		proposed = proposed.With(field, result.Accepted.Get(field))
	}
	ops, err := patch.Diff(current, proposed)
	if err != nil {
		return f.handleError(fmt.Errorf("failed to diff update: %w", err), withUser)
	}
	ack, err := protocol.NewAck(result.Accepted, result.Rejected).Encode()
	if err != nil {
		return f.handleError(err, withUser)
	}
	callID := act.CallID
	if callID == "" {
		callID = uuid.NewString()
	}

	next := withUser.Append(conversation.ActionTurn(conversation.ActionResult{
		Source:    conversation.SourceChat,
		CallID:    callID,
		Name:      act.Name,
		Arguments: act.Arguments,
		Patch:     ops,
		Rejected:  result.Rejected,
		Ack:       ack,
	}))
	record := next.Record()
	next = next.WithPhase(phaseAfterUpdate(phase, record, len(ops) > 0))
	slog.Debug("Applied update", "conversation", next.ID, "paths", patch.ChangedPaths(ops), "rejected", len(result.Rejected), "phase", next.Phase)

	msg, err := f.generate(ctx, next, record, result.Rejected)
	if err != nil {
		return f.handleError(fmt.Errorf("failed to generate follow-up: %w", err), withUser)
	}
	follow := protocol.Decode(msg)
	if follow.Kind != protocol.KindPlainText {
		slog.Warn("Ignoring action in follow-up response", "conversation", next.ID, "kind", follow.Kind, "name", follow.Name)
	}

	resp := f.reply(next, follow.Text, result.Rejected)
	resp.ExtractedData = extracted(record, ops)
	return resp, nil
}

func (f *FormFlow) submit(ctx context.Context, withUser conversation.State, phase types.Phase, act protocol.Action) (*Response, error) {
	record := withUser.Record()
	if err := f.checkSubmittable(record); err != nil {
		return f.violation(withUser, phase, withViolation(act, err)), nil
	}
	if err := f.submitter.Submit(ctx, record); err != nil {
		return f.handleError(fmt.Errorf("failed to submit form: %w", err), withUser)
	}
	callID := act.CallID
	if callID == "" {
		callID = uuid.NewString()
	}
	next := withUser.Append(
		conversation.ActionTurn(conversation.ActionResult{
			Source:    conversation.SourceChat,
			CallID:    callID,
			Name:      act.Name,
			Arguments: "{}",
			Ack:       protocol.SubmittedAck,
			Submit:    true,
		}),
		conversation.AssistantTurn(dialogue.Submitted),
	).WithPhase(types.PhaseSubmitted)
	slog.Info("Form submitted", "conversation", next.ID)
	return &Response{
		Reply:            dialogue.Submitted,
		SubmissionStatus: types.SubmissionSuccess,
		State:            next,
	}, nil
}

// prematureSubmit keeps the engine's text and the intent-derived phase but
// never submits; the reply is forced to ask the question the phase requires.
func (f *FormFlow) prematureSubmit(state conversation.State, act protocol.Action) *Response {
	slog.Warn("Engine protocol violation", "conversation", state.ID, "phase", state.Phase, "error", ErrPrematureSubmit)
	resp := f.reply(state, act.Text, nil)
	resp.Metadata = map[string]string{"error": ErrPrematureSubmit.Error()}
	return resp
}

// violation drops the action. Accompanying text is handled like a plain text
// reply for the intent-derived phase; without text the pre-turn phase stays.
func (f *FormFlow) violation(withUser conversation.State, phase types.Phase, act protocol.Action) *Response {
	slog.Warn("Engine protocol violation", "conversation", withUser.ID, "name", act.Name, "error", act.Violation)
	errText := "protocol violation"
	if act.Violation != nil {
		errText = act.Violation.Error()
	}
	if strings.TrimSpace(act.Text) != "" {
		resp := f.reply(withUser.WithPhase(phase), act.Text, nil)
		resp.Metadata = map[string]string{"error": errText}
		return resp
	}
	return &Response{
		Reply:    dialogue.Retry,
		State:    withUser,
		Metadata: map[string]string{"error": errText},
	}
}

func (f *FormFlow) checkSubmittable(record types.Record) error {
	issues := record.Missing()
	if len(issues) == 0 {
		issues = f.validator.Check(record)
	}
	if len(issues) > 0 {
		return &RecordError{Issues: issues}
	}
	return nil
}

// reply finalizes the assistant text for the phase of state and appends it.
func (f *FormFlow) reply(state conversation.State, text string, rejected []types.FieldInfo) *Response {
	record := state.Record()
	switch state.Phase {
	case types.PhaseConfirmingSummary:
		text = dialogue.EnsureSummary(text, record)
	case types.PhaseConfirmingSubmission:
		text = dialogue.EnsureSubmissionQuestion(text)
	default:
		if strings.TrimSpace(text) == "" {
			text = dialogue.Fallback(state.Phase, record)
			if notice := dialogue.Rejected(rejected); notice != "" {
				text = notice + " " + text
			}
		}
	}
	return &Response{
		Reply: text,
		State: state.Append(conversation.AssistantTurn(text)),
	}
}

// handleError reports a failed turn. The user turn is kept and nothing else
// from the turn is committed.
func (f *FormFlow) handleError(err error, withUser conversation.State) (*Response, error) {
	slog.Error("Turn failed", "conversation", withUser.ID, "error", err)
	return &Response{
		Reply: dialogue.Retry,
		State: withUser,
		Metadata: map[string]string{
			"error": err.Error(),
		},
	}, nil
}

// ApplyFormEdit commits values typed directly into the form. No engine call
// is made and the edit is not shown to the engine as a tool call.
func (f *FormFlow) ApplyFormEdit(ctx context.Context, state conversation.State, edit types.Record) (*FormEditResult, error) {
	if state.Phase == "" {
		state.Phase = types.PhaseCollecting
	}
	if state.Phase.Terminal() {
		return nil, ErrSubmitted
	}
	current := state.Record()
	values := make(map[types.Field]string)
	for _, field := range types.Fields() {
		if v := edit.Get(field); v != "" {
			values[field] = v
		}
	}
	result := f.validator.Apply(values)
	proposed := current
	for _, field := range result.Fields {
		proposed = proposed.With(field, result.Accepted.Get(field))
	}
	ops, err := patch.Diff(current, proposed)
	if err != nil {
		return nil, fmt.Errorf("failed to diff form edit: %w", err)
	}
	if len(ops) == 0 {
		return &FormEditResult{State: state, Rejected: result.Rejected}, nil
	}

	next := state.Append(conversation.ActionTurn(conversation.ActionResult{
		Source:   conversation.SourceForm,
		Name:     formEditActionName,
		Patch:    ops,
		Rejected: result.Rejected,
	}))
	record := next.Record()
	next = next.WithPhase(phaseAfterUpdate(state.Phase, record, true))
	slog.DebugContext(ctx, "Applied form edit", "conversation", next.ID, "paths", patch.ChangedPaths(ops), "phase", next.Phase)
	return &FormEditResult{
		State:         next,
		ExtractedData: extracted(record, ops),
		Rejected:      result.Rejected,
	}, nil
}

// SubmitForm submits the record from the form's own submit button. The chat
// confirmation steps are skipped; the record must still be complete and valid.
func (f *FormFlow) SubmitForm(ctx context.Context, state conversation.State) (*Response, error) {
	if state.Phase.Terminal() {
		return nil, ErrSubmitted
	}
	record := state.Record()
	if err := f.checkSubmittable(record); err != nil {
		return nil, err
	}
	if err := f.submitter.Submit(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to submit form: %w", err)
	}
	next := state.Append(
		conversation.ActionTurn(conversation.ActionResult{
			Source: conversation.SourceForm,
			Name:   formSubmitActionName,
			Ack:    protocol.SubmittedAck,
			Submit: true,
		}),
		conversation.AssistantTurn(dialogue.Submitted),
	).WithPhase(types.PhaseSubmitted)
	slog.InfoContext(ctx, "Form submitted", "conversation", next.ID, "source", conversation.SourceForm)
	return &Response{
		Reply:            dialogue.Submitted,
		SubmissionStatus: types.SubmissionSuccess,
		State:            next,
	}, nil
}

func extracted(record types.Record, ops []patch.Operation) *types.Record {
	if len(ops) == 0 {
		return nil
	}
	fields := make([]types.Field, 0, len(ops))
	for _, op := range ops {
		if field, ok := types.FieldByPointer(op.Path); ok {
			fields = append(fields, field)
		}
	}
	picked := record.Pick(fields...)
	return &picked
}

func withViolation(act protocol.Action, err error) protocol.Action {
	act.Kind = protocol.KindUnrecognized
	act.Violation = err
	return act
}
