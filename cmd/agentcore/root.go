package main

import (
	"github.com/spf13/cobra"
)

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing, per the teacher's pattern.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore - multi-agent conversational runtime",
		Long: `agentcore hosts one persona and one workflow graph behind a single
client-facing stream, dispatching tools and handing off between agents
through a shared gateway.

Modes: voice, text, hybrid
LLM provider: Anthropic (Claude)`,
		Version:      versionString(),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildValidateWorkflowCmd(),
	)

	return rootCmd
}
