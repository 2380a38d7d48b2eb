package agent

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tbxark/formcopilot/dialogue"
	"github.com/tbxark/formcopilot/engine/enginetest"
	"github.com/tbxark/formcopilot/types"
)

func drain(t *testing.T, iter *adk.AsyncIterator[*adk.AgentEvent]) []*adk.AgentEvent {
	t.Helper()
	var events []*adk.AgentEvent
	for {
		event, ok := iter.Next()
		if !ok {
			return events
		}
		events = append(events, event)
	}
}

func TestMemoryStateStoreRoutesByKey(t *testing.T) {
	store := NewMemoryStateStore()
	a := WithStateKey(context.Background(), "a")
	b := WithStateKey(context.Background(), "b")

	flow := newTestFlow(t, enginetest.NewScript(), nil)
	require.NoError(t, store.Save(a, flow.NewConversation()))

	_, ok, err := store.Load(b)
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := store.Load(a)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, types.PhaseCollecting, got.Phase)

	require.NoError(t, store.Remove(a))
	_, ok, _ = store.Load(a)
	assert.False(t, ok)

	key, ok := StateKeyFromContext(a)
	assert.True(t, ok)
	assert.Equal(t, "a", key)
	assert.Equal(t, defaultStateKey, stateKeyOrDefault(context.Background()))
}

func TestAgentRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	script := enginetest.NewScript(update(`{"name":"john doe"}`), enginetest.Text("What is your email address?"))
	store := NewMemoryStateStore()
	ag := NewAgent("ideaform", "collects AI agent ideas", newTestFlow(t, script, nil), store)
	ctx := WithStateKey(context.Background(), "session-1")

	greeting, err := ag.Greeting(ctx)
	require.NoError(t, err)
	assert.Equal(t, dialogue.Greeting(), greeting)

	events := drain(t, ag.Run(ctx, &adk.AgentInput{Messages: []adk.Message{schema.UserMessage("john doe")}}))
	require.Len(t, events, 1)
	require.NoError(t, events[0].Err)
	assert.Equal(t, "What is your email address?", events[0].Output.MessageOutput.Message.Content)
	resp, ok := events[0].Output.CustomizedOutput.(*Response)
	require.True(t, ok)
	assert.Equal(t, "John Doe", resp.ExtractedData.Name)

	state, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "John Doe", state.Record().Name)
}

func TestAgentRunReportsErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	ag := NewAgent("ideaform", "", newTestFlow(t, enginetest.NewScript(), nil), nil)
	events := drain(t, ag.Run(context.Background(), &adk.AgentInput{}))
	require.Len(t, events, 1)
	assert.Error(t, events[0].Err)

	events = drain(t, ag.Run(context.Background(), &adk.AgentInput{Messages: []adk.Message{schema.UserMessage(" ")}}))
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, ErrEmptyInput)
}

func TestAgentUnderRunner(t *testing.T) {
	script := enginetest.NewScript(enginetest.Text("Could you please provide your full name?"))
	ag := NewAgent("ideaform", "", newTestFlow(t, script, nil), nil)
	runner := adk.NewRunner(context.Background(), adk.RunnerConfig{Agent: ag})

	var replies []string
	iter := runner.Query(context.Background(), "hello")
	for {
		event, ok := iter.Next()
		if !ok {
			break
		}
		require.NoError(t, event.Err)
		if event.Output != nil && event.Output.MessageOutput != nil {
			replies = append(replies, event.Output.MessageOutput.Message.Content)
		}
	}
	assert.Equal(t, []string{"Could you please provide your full name?"}, replies)
}
