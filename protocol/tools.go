package protocol

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"

	"github.com/tbxark/formcopilot/types"
)

const (
	UpdateFormDataToolName        = "update_form_data"
	UpdateFormDataToolDescription = "Extracts and updates the user's information from their latest message. Include only the fields the user provided or corrected; every field is optional."

	SubmitFormToolName        = "submit_form"
	SubmitFormToolDescription = "Executes the final submission of the form. Call only after the user answered yes to an explicit question asking whether they are ready to submit. Takes no arguments."
)

// UpdateFormDataArgs is the argument object of update_form_data. A nil field
// means the engine did not propose a value for it.
type UpdateFormDataArgs struct {
	Name       *string `json:"name,omitempty" jsonschema:"description=The user's full name"`
	Email      *string `json:"email,omitempty" jsonschema:"description=The user's email address"`
	ProfileURL *string `json:"profileUrl,omitempty" jsonschema:"description=The absolute URL of the user's profile, e.g. https://linkedin.com/in/jane"`
	Idea       *string `json:"idea,omitempty" jsonschema:"description=The user's AI agent idea as a detailed description with spelling and grammar corrected"`
}

// Values returns the proposed values keyed by field.
func (a UpdateFormDataArgs) Values() map[types.Field]string {
	values := make(map[types.Field]string, 4)
	set := func(f types.Field, v *string) {
		if v != nil {
			values[f] = *v
		}
	}
	set(types.FieldName, a.Name)
	set(types.FieldEmail, a.Email)
	set(types.FieldProfileURL, a.ProfileURL)
	set(types.FieldIdea, a.Idea)
	return values
}

type SubmitFormArgs struct{}

var (
	toolsOnce sync.Once
	tools     []*schema.ToolInfo
	toolsErr  error
)

// Tools returns the declarations of the two callable actions.
func Tools() ([]*schema.ToolInfo, error) {
	toolsOnce.Do(func() {
		update, err := utils.GoStruct2ToolInfo[UpdateFormDataArgs](UpdateFormDataToolName, UpdateFormDataToolDescription)
		if err != nil {
			toolsErr = fmt.Errorf("convert %s tool info failed: %w", UpdateFormDataToolName, err)
			return
		}
		submit, err := utils.GoStruct2ToolInfo[SubmitFormArgs](SubmitFormToolName, SubmitFormToolDescription)
		if err != nil {
			toolsErr = fmt.Errorf("convert %s tool info failed: %w", SubmitFormToolName, err)
			return
		}
		tools = []*schema.ToolInfo{update, submit}
	})
	return tools, toolsErr
}

// RecordSchema returns the JSON schema of the record.
func RecordSchema() (string, error) {
	s := jsonschema.Reflect(&types.Record{})
	s.Title = "AI agent idea submission"
	s.Description = "Four mandatory fields: name, email, profile URL and the AI agent idea."
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON schema: %w", err)
	}
	return string(data), nil
}
