package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
)

var _ adk.Agent = (*Agent)(nil)

// Agent runs a FormFlow under adk. Conversation state lives in the store,
// keyed by WithStateKey; turns for the same key are serialized.
type Agent struct {
	name        string
	description string
	flow        *FormFlow
	store       StateStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAgent(name, description string, flow *FormFlow, store StateStore) *Agent {
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &Agent{
		name:        name,
		description: description,
		flow:        flow,
		store:       store,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (a *Agent) Name(ctx context.Context) string {
	return a.name
}

func (a *Agent) Description(ctx context.Context) string {
	return a.description
}

func (a *Agent) lock(ctx context.Context) func() {
	key := stateKeyOrDefault(ctx)
	a.mu.Lock()
	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}
	a.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Greeting returns the opening message of the conversation routed by ctx,
// starting a new conversation when none exists.
func (a *Agent) Greeting(ctx context.Context) (string, error) {
	unlock := a.lock(ctx)
	defer unlock()
	state, ok, err := a.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load state: %w", err)
	}
	if !ok {
		state = a.flow.NewConversation()
		if err := a.store.Save(ctx, state); err != nil {
			return "", fmt.Errorf("failed to save state: %w", err)
		}
	}
	return state.Turns[0].Content, nil
}

// Turn processes one utterance for the conversation routed by ctx.
func (a *Agent) Turn(ctx context.Context, utterance string) (*Response, error) {
	unlock := a.lock(ctx)
	defer unlock()
	state, ok, err := a.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if !ok {
		state = a.flow.NewConversation()
	}
	resp, err := a.flow.ProcessTurn(ctx, state, utterance)
	if err != nil {
		return nil, err
	}
	if err := a.store.Save(ctx, resp.State); err != nil {
		return nil, fmt.Errorf("failed to save state: %w", err)
	}
	return resp, nil
}

func (a *Agent) Run(ctx context.Context, input *adk.AgentInput, options ...adk.AgentRunOption) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	go func() {
		defer func() {
			e := recover()
			if e != nil {
				gen.Send(&adk.AgentEvent{
					Err: fmt.Errorf("recover from panic: %v", e),
				})
			}
			gen.Close()
		}()
		if input == nil || len(input.Messages) == 0 {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("no messages in input"),
			})
			return
		}
		resp, err := a.Turn(ctx, input.Messages[len(input.Messages)-1].Content)
		if err != nil {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("form turn failed: %w", err),
			})
			return
		}
		gen.Send(&adk.AgentEvent{
			AgentName: a.name,
			Output: &adk.AgentOutput{
				MessageOutput: &adk.MessageVariant{
					IsStreaming: false,
					Message:     schema.AssistantMessage(resp.Reply, nil),
					Role:        schema.Assistant,
				},
				CustomizedOutput: resp,
			},
		})
	}()
	return iter
}
