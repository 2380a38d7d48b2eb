package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/cloudwego/eino/adk"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tbxark/formcopilot/agent"
	"github.com/tbxark/formcopilot/types"
)

var (
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	noticeStyle    = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Fill in the form interactively in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupLogger(conf)
		return runChat(cmd.Context(), conf)
	},
}

func runChat(ctx context.Context, conf *Config) error {
	flow, cleanup, err := buildFlow(ctx, conf)
	if err != nil {
		return err
	}
	defer cleanup()

	store := agent.NewMemoryStateStore()
	formAgent := agent.NewAgent(
		"IdeaForm",
		"An agent that collects AI agent idea submissions via conversation",
		flow,
		store,
	)
	runner := adk.NewRunner(ctx, adk.RunnerConfig{Agent: formAgent})
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	render := func(text string) string {
		if renderer == nil {
			return text
		}
		out, rErr := renderer.Render(text)
		if rErr != nil {
			return text
		}
		return strings.TrimSpace(out)
	}

	chatCtx := agent.WithStateKey(ctx, uuid.NewString())
	greeting, err := formAgent.Greeting(chatCtx)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n\n", assistantStyle.Render("Assistant:"), render(greeting))

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print(userStyle.Render("You: "))
		input, rErr := reader.ReadString('\n')
		if rErr != nil {
			fmt.Println(noticeStyle.Render("Input closed. Bye."))
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		iter := runner.Query(chatCtx, input)
		for {
			event, ok := iter.Next()
			if !ok {
				break
			}
			if event.Err != nil {
				fmt.Println(errorStyle.Render(event.Err.Error()))
				continue
			}
			if event.Output == nil || event.Output.MessageOutput == nil {
				continue
			}
			msg, mErr := event.Output.MessageOutput.GetMessage()
			if mErr != nil {
				return mErr
			}
			fmt.Printf("\n%s %s\n\n", assistantStyle.Render("Assistant:"), render(msg.Content))
			if resp, ok := event.Output.CustomizedOutput.(*agent.Response); ok {
				if errMsg := resp.Metadata["error"]; errMsg != "" {
					fmt.Println(noticeStyle.Render("(" + errMsg + ")"))
				}
			}
		}
		state, found, lErr := store.Load(chatCtx)
		if lErr != nil {
			return lErr
		}
		if found && state.Phase == types.PhaseSubmitted {
			fmt.Println(noticeStyle.Render("Submission complete."))
			return nil
		}
	}
}
