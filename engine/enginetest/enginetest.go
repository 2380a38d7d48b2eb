// Package enginetest provides scripted engines and chat models for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/formcopilot/engine"
)

var (
	ErrScriptExhausted = errors.New("enginetest: script exhausted")
	ErrUnavailable     = errors.New("enginetest: engine unavailable")
)

// Step is one scripted engine reply.
type Step struct {
	Message *schema.Message
	Err     error
}

func Text(s string) Step {
	return Step{Message: schema.AssistantMessage(s, nil)}
}

// Call scripts a tool call with raw JSON arguments.
func Call(name, args string) Step {
	return CallWithText("", name, args)
}

func CallWithText(text, name, args string) Step {
	return Step{Message: schema.AssistantMessage(text, []schema.ToolCall{{
		ID:   fmt.Sprintf("call_%s", name),
		Type: "function",
		Function: schema.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}})}
}

func Fail(err error) Step {
	if err == nil {
		err = ErrUnavailable
	}
	return Step{Err: err}
}

// Script replays steps in order and records every request it receives.
type Script struct {
	mu       sync.Mutex
	steps    []Step
	requests []*engine.Request
}

var _ engine.Engine = (*Script)(nil)

func NewScript(steps ...Step) *Script {
	return &Script{steps: steps}
}

// Push queues more steps.
func (s *Script) Push(steps ...Step) {
	s.mu.Lock()
	s.steps = append(s.steps, steps...)
	s.mu.Unlock()
}

func (s *Script) Generate(ctx context.Context, req *engine.Request) (*schema.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.Message, step.Err
}

// Requests returns every request seen so far.
func (s *Script) Requests() []*engine.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*engine.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Remaining reports how many steps have not been consumed.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// ChatModel is a func-backed model.ToolCallingChatModel.
type ChatModel struct {
	GenerateFn func(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
	Tools      []*schema.ToolInfo
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if m.GenerateFn == nil {
		return nil, ErrUnavailable
	}
	return m.GenerateFn(ctx, input, opts...)
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &ChatModel{GenerateFn: m.GenerateFn, Tools: tools}, nil
}
