package intent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/formcopilot/structured"
)

const (
	parseIntentToolName        = "classify_confirmation"
	parseIntentToolDescription = "Classify the user's answer to the assistant's confirmation question: affirm, decline, none."
)

// DefaultSystemPromptTemplate may contain a single "%s" placeholder for the tool name.
const DefaultSystemPromptTemplate = `
You help a form-filling assistant understand how the user answered a confirmation question.

The assistant either showed a summary of the form and asked whether everything is correct, or asked whether the user is ready to submit.

Always read the assistant's question together with the user's answer. Choose:
- affirm: the user clearly agrees ("yes", "looks good", "correct", "go ahead") and asks for no change.
- decline: the user clearly disagrees, is not ready, or wants to change something without giving the new value.
- none: anything else, including answers that contain a new value for a field.

Call the '%s' tool with the result.
`

type PromptBuilder func(systemPrompt string) structured.PromptBuilder[*Request]

type toolOptions struct {
	systemPromptTemplate string
	promptBuilder        PromptBuilder
}

type ToolOption func(*toolOptions)

func WithSystemPromptTemplate(template string) ToolOption {
	return func(o *toolOptions) {
		o.systemPromptTemplate = template
	}
}

func WithPromptBuilder(builder PromptBuilder) ToolOption {
	return func(o *toolOptions) {
		o.promptBuilder = builder
	}
}

func defaultPromptBuilder(systemPrompt string) structured.PromptBuilder[*Request] {
	return func(ctx context.Context, req *Request) ([]*schema.Message, error) {
		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(fmt.Sprintf("# Phase:\n%s\n\n# Assistant asked:\n%s\n\n# User answered:\n%s",
				req.Phase, req.Question, req.Answer)),
		}, nil
	}
}

type classifyInput struct {
	Intent Intent `json:"intent" jsonschema:"required,enum=affirm,enum=decline,enum=none,description=How the user answered the confirmation question"`
}

// ToolBasedRecognizer asks the model through a forced tool call.
type ToolBasedRecognizer struct {
	chain *structured.Chain[*Request, classifyInput]
}

func NewToolBasedRecognizer(chatModel model.ToolCallingChatModel, opts ...ToolOption) (*ToolBasedRecognizer, error) {
	options := toolOptions{
		systemPromptTemplate: DefaultSystemPromptTemplate,
		promptBuilder:        defaultPromptBuilder,
	}
	for _, o := range opts {
		o(&options)
	}
	chain, err := structured.NewChain[*Request, classifyInput](
		chatModel,
		options.promptBuilder(fmt.Sprintf(options.systemPromptTemplate, parseIntentToolName)),
		parseIntentToolName,
		parseIntentToolDescription,
	)
	if err != nil {
		return nil, err
	}
	return &ToolBasedRecognizer{chain: chain}, nil
}

func (p *ToolBasedRecognizer) Recognize(ctx context.Context, req *Request) (Intent, error) {
	result, err := p.chain.Invoke(ctx, req)
	if err != nil {
		return None, err
	}
	switch result.Intent {
	case Affirm, Decline, None:
		return result.Intent, nil
	default:
		return None, fmt.Errorf("unexpected intent %q returned by %s", result.Intent, parseIntentToolName)
	}
}
