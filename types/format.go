package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

// PromptContext is the per-call view of the conversation handed to the engine
// next to the chat history.
type PromptContext struct {
	Now      time.Time
	Phase    Phase
	Record   Record
	Rejected []FieldInfo
	Schema   string
}

var phaseInstructions = map[Phase]string{
	PhaseCollecting: "Collect the missing fields one at a time in the listed order. " +
		"Call update_form_data whenever the user's latest message contains a value for any field.",
	PhaseConfirmingSummary: "All fields are filled. Present every field as key: value pairs and ask " +
		"\"Does everything look correct, or would you like to modify anything?\". " +
		"If the user asks for a change, call update_form_data with the new value.",
	PhaseConfirmingSubmission: "The user confirmed the summary. Ask an explicit yes/no question whether they are ready to submit. " +
		"Only call submit_form when the user answers yes to that question.",
	PhaseSubmitted: "The form has been submitted. Do not call any function.",
}

func formatFormStateSection(r Record) string {
	var buf strings.Builder
	buf.WriteString("# Form state:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Pointer", "Value")
	for _, f := range Fields() {
		value := r.Get(f)
		if value == "" {
			value = "(missing)"
		}
		_ = table.Append(f.DisplayName(), f.JSONPointer(), value)
	}
	_ = table.Render()
	return buf.String()
}

func formatMissingFieldsSection(fields []FieldInfo) string {
	if len(fields) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Missing required fields (ask in this order):\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Pointer", "Description")
	for _, field := range fields {
		_ = table.Append(field.DisplayName, field.JSONPointer, field.Description)
	}
	_ = table.Render()
	return buf.String()
}

func formatRejectedSection(rejected []FieldInfo) string {
	if len(rejected) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Rejected values (not saved, ask the user again):\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Pointer", "Reason")
	for _, r := range rejected {
		_ = table.Append(r.JSONPointer, r.Description)
	}
	_ = table.Render()
	return buf.String()
}

// FormatContext renders the prompt context as markdown sections.
func FormatContext(pc *PromptContext) string {
	now := pc.Now
	if now.IsZero() {
		now = time.Now()
	}
	sections := []string{
		fmt.Sprintf("# Current Date:\n%s", now.Format(time.RFC3339)),
		fmt.Sprintf("# Current Phase:\n%s", pc.Phase),
		formatFormStateSection(pc.Record),
	}
	if pc.Schema != "" {
		sections = append(sections, fmt.Sprintf("# Form state schema JSON:\n```json\n%s\n```", pc.Schema))
	}
	if s := formatMissingFieldsSection(pc.Record.Missing()); s != "" {
		sections = append(sections, s)
	}
	if s := formatRejectedSection(pc.Rejected); s != "" {
		sections = append(sections, s)
	}
	if ins, ok := phaseInstructions[pc.Phase]; ok {
		sections = append(sections, fmt.Sprintf("# What to do now:\n%s", ins))
	}
	return strings.Join(sections, "\n\n")
}
