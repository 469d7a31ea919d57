package client

import (
	"github.com/spf13/cobra"
)

// BaseURLFunc resolves the HTTP base URL of the server at call time.
type BaseURLFunc func() string

// NewRoot constructs a root Cobra command for the Orbiter client.
// It registers the orchestration and pipeline command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "orbiter",
		Short: "Orbiter client commands",
	}
	root.AddCommand(NewOrchestrationCommand(baseURL))
	root.AddCommand(NewWorkItemsCommand(baseURL))
	root.AddCommand(NewDLQCommand(baseURL))
	return root
}
