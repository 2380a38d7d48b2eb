// Command ideaform collects AI agent ideas through a conversation, either in
// the terminal or over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ideaform",
	Short: "Conversational submission form for AI agent ideas",
	Long: `ideaform guides a user through the four required fields of an AI agent
idea submission (name, email, profile URL and the idea), shows a summary,
asks for an explicit confirmation and only then submits.

Configuration is read from --config (JSON or YAML) and FORMCOPILOT_* environment
variables, which take precedence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (JSON or YAML)")
	rootCmd.AddCommand(chatCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
