// Package gemini adapts the Google GenAI SDK to eino's tool-calling chat model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

var ErrEmptyCandidate = errors.New("gemini returned no candidate content")

type Config struct {
	APIKey      string
	Model       string
	Temperature *float32
}

// ChatModel implements model.ToolCallingChatModel on top of genai.
type ChatModel struct {
	client      *genai.Client
	model       string
	temperature *float32
	tools       []*schema.ToolInfo
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

func NewChatModel(ctx context.Context, cfg *Config) (*ChatModel, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	name := cfg.Model
	if name == "" {
		name = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &ChatModel{client: client, model: name, temperature: cfg.Temperature}, nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	clone := *m
	clone.tools = tools
	return &clone, nil
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{Tools: m.tools}, opts...)
	system, contents, err := toContents(input)
	if err != nil {
		return nil, err
	}
	config, err := m.buildConfig(system, options)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}
	return fromResponse(resp)
}

// Stream emits the full response as a single chunk.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ChatModel) buildConfig(system string, options *model.Options) (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if options.Temperature != nil {
		config.Temperature = options.Temperature
	} else if m.temperature != nil {
		config.Temperature = m.temperature
	}
	if len(options.Tools) == 0 {
		return config, nil
	}
	decls, err := toFunctionDeclarations(options.Tools)
	if err != nil {
		return nil, err
	}
	config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	if options.ToolChoice != nil {
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: toFunctionCallingConfig(*options.ToolChoice, options.AllowedToolNames),
		}
	}
	return config, nil
}

func toFunctionCallingConfig(choice schema.ToolChoice, allowed []string) *genai.FunctionCallingConfig {
	switch choice {
	case schema.ToolChoiceForced:
		return &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: allowed,
		}
	case schema.ToolChoiceForbidden:
		return &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone}
	default:
		return &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}
	}
}

func toFunctionDeclarations(tools []*schema.ToolInfo) ([]*genai.FunctionDeclaration, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Desc,
		}
		if tool.ParamsOneOf != nil {
			js, err := tool.ParamsOneOf.ToJSONSchema()
			if err != nil {
				return nil, fmt.Errorf("convert parameters of %s: %w", tool.Name, err)
			}
			if js != nil {
				raw, err := sonic.Marshal(js)
				if err != nil {
					return nil, fmt.Errorf("marshal parameters of %s: %w", tool.Name, err)
				}
				var params map[string]any
				if err := sonic.Unmarshal(raw, &params); err != nil {
					return nil, fmt.Errorf("decode parameters of %s: %w", tool.Name, err)
				}
				decl.ParametersJsonSchema = params
			}
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

// toContents splits system messages out and converts the rest into genai turns.
func toContents(input []*schema.Message) (string, []*genai.Content, error) {
	var system []string
	contents := make([]*genai.Content, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.User:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case schema.Assistant:
			parts := make([]*genai.Part, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args, err := decodeObject(call.Function.Arguments)
				if err != nil {
					return "", nil, fmt.Errorf("decode arguments of %s: %w", call.Function.Name, err)
				}
				part := genai.NewPartFromFunctionCall(call.Function.Name, args)
				part.FunctionCall.ID = call.ID
				parts = append(parts, part)
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
		case schema.Tool:
			response, err := decodeObject(msg.Content)
			if err != nil {
				response = map[string]any{"output": msg.Content}
			}
			part := genai.NewPartFromFunctionResponse(msg.ToolName, response)
			part.FunctionResponse.ID = msg.ToolCallID
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		default:
			return "", nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	return strings.Join(system, "\n\n"), contents, nil
}

func fromResponse(resp *genai.GenerateContentResponse) (*schema.Message, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyCandidate
	}
	var text strings.Builder
	var calls []schema.ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if fc := part.FunctionCall; fc != nil {
			args, err := sonic.MarshalString(fc.Args)
			if err != nil {
				return nil, fmt.Errorf("encode arguments of %s: %w", fc.Name, err)
			}
			if fc.Args == nil {
				args = "{}"
			}
			id := fc.ID
			if id == "" {
				id = uuid.NewString()
			}
			calls = append(calls, schema.ToolCall{
				ID:   id,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      fc.Name,
					Arguments: args,
				},
			})
		}
	}
	return schema.AssistantMessage(text.String(), calls), nil
}

func decodeObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := sonic.UnmarshalString(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
