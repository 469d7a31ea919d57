package client

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// NewWorkItemsCommand builds the `workitems` command group.
func NewWorkItemsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workitems",
		Short: "Work-item table operations",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List work items by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			target := baseURL() + "/v1/workitems?status=" + url.QueryEscape(status)
			return getAndPrint(cmd.OutOrStdout(), target)
		},
	}
	list.Flags().String("status", "New", "Status filter: New|Processed")
	cmd.AddCommand(list)
	return cmd
}

// NewDLQCommand builds the `dlq` command group.
func NewDLQCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Dead-letter queue operations",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead letters for a consumer group",
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetString("group")
			target := baseURL() + "/v1/queue/dlq"
			if group != "" {
				target += "?group=" + url.QueryEscape(group)
			}
			return getAndPrint(cmd.OutOrStdout(), target)
		},
	}
	list.Flags().String("group", "", "Consumer group (default: server's configured group)")
	cmd.AddCommand(list)
	return cmd
}

func getAndPrint(w io.Writer, target string) error {
	resp, err := http.Get(target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return printJSON(w, body)
}
