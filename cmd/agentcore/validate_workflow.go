package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meridianbank/agentcore/internal/config"
)

// buildValidateWorkflowCmd offers an offline check of a workflow graph
// file against §4.1's load() invariants (single start node, every edge
// resolves, decision nodes carry at least two labeled edges, non-end
// nodes have at least one outgoing edge), without starting a runtime.
func buildValidateWorkflowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-workflow <path>",
		Short: "Validate a workflow graph file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := config.LoadWorkflow(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow valid: start node %q\n", w.StartNodeID())
			return nil
		},
	}
}
