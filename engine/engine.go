package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var ErrNoResponse = errors.New("engine returned no message")

// Request is one call to the text-generation engine.
type Request struct {
	System  string
	History []*schema.Message
	Tools   []*schema.ToolInfo
}

// Messages returns the system prompt followed by the history.
func (r *Request) Messages() []*schema.Message {
	msgs := make([]*schema.Message, 0, len(r.History)+1)
	if r.System != "" {
		msgs = append(msgs, schema.SystemMessage(r.System))
	}
	return append(msgs, r.History...)
}

// Engine returns either plain text or a message carrying tool calls.
type Engine interface {
	Generate(ctx context.Context, req *Request) (*schema.Message, error)
}

// ChatEngine drives an eino tool-calling chat model.
type ChatEngine struct {
	chatModel model.ToolCallingChatModel
	timeout   time.Duration
	opts      []model.Option
}

type ChatOption func(*ChatEngine)

// WithTimeout bounds every call; an expired call is reported as a failure.
func WithTimeout(d time.Duration) ChatOption {
	return func(e *ChatEngine) {
		e.timeout = d
	}
}

// WithModelOptions appends eino model options to every call.
func WithModelOptions(opts ...model.Option) ChatOption {
	return func(e *ChatEngine) {
		e.opts = append(e.opts, opts...)
	}
}

func NewChatEngine(chatModel model.ToolCallingChatModel, opts ...ChatOption) *ChatEngine {
	e := &ChatEngine{chatModel: chatModel}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *ChatEngine) Generate(ctx context.Context, req *Request) (*schema.Message, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	opts := make([]model.Option, 0, len(e.opts)+2)
	if len(req.Tools) > 0 {
		opts = append(opts,
			model.WithTools(req.Tools),
			model.WithToolChoice(schema.ToolChoiceAllowed),
		)
	}
	opts = append(opts, e.opts...)

	response, err := e.chatModel.Generate(ctx, req.Messages(), opts...)
	if err != nil {
		return nil, fmt.Errorf("call model failed: %w", err)
	}
	if response == nil {
		return nil, ErrNoResponse
	}
	return response, nil
}

// Func adapts a function to Engine.
type Func func(ctx context.Context, req *Request) (*schema.Message, error)

func (f Func) Generate(ctx context.Context, req *Request) (*schema.Message, error) {
	return f(ctx, req)
}
