// Package testcases holds end-to-end conversations against a real model.
// They only run with FORMCOPILOT_RUN_LIVE_TESTS=1 and a ../config.json.
package testcases

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/tbxark/formcopilot/agent"
	"github.com/tbxark/formcopilot/conversation"
	"github.com/tbxark/formcopilot/types"
)

type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var conf Config
	err = json.Unmarshal(file, &conf)
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{BaseURL:%q, Model:%q}", c.BaseURL, c.Model)
}

func InitChatModel(t *testing.T) *openai.ChatModel {
	if os.Getenv("FORMCOPILOT_RUN_LIVE_TESTS") != "1" {
		t.Skip("set FORMCOPILOT_RUN_LIVE_TESTS=1 to run live LLM tests")
		return nil
	}

	ctx := context.Background()
	conf, err := loadConfig("../config.json")
	if err != nil {
		t.Skipf("failed to load config: %v", err)
		return nil
	}
	if conf.APIKey == "" {
		t.Skip("config.json api_key is empty")
		return nil
	}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  conf.APIKey,
		Model:   conf.Model,
		BaseURL: conf.BaseURL,
	})
	if err != nil {
		t.Fatalf("failed to init chat model: %v", err)
		return nil
	}
	return chatModel
}

// Submissions collects what the flow submitted.
type Submissions struct {
	Records []types.Record
}

func (s *Submissions) Submit(ctx context.Context, record types.Record) error {
	s.Records = append(s.Records, record)
	return nil
}

func NewTestFlow(t *testing.T, opts ...agent.Option) (*agent.FormFlow, *Submissions) {
	chatModel := InitChatModel(t)
	if chatModel == nil {
		return nil, nil
	}
	subs := &Submissions{}
	flow, err := agent.NewToolBasedFormFlow(chatModel, append([]agent.Option{agent.WithSubmitter(subs)}, opts...)...)
	if err != nil {
		t.Fatalf("failed to create form flow: %v", err)
	}
	return flow, subs
}

// Say runs one turn and fails the test on a hard error.
func Say(t *testing.T, flow *agent.FormFlow, state conversation.State, utterance string) *agent.Response {
	t.Helper()
	resp, err := flow.ProcessTurn(context.Background(), state, utterance)
	if err != nil {
		t.Fatalf("turn %q failed: %v", utterance, err)
	}
	t.Logf("user: %s", utterance)
	t.Logf("assistant [%s]: %s", resp.State.Phase, resp.Reply)
	if e := resp.Metadata["error"]; e != "" {
		t.Logf("recovered error: %s", e)
	}
	return resp
}
