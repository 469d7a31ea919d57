package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// NewOrchestrationCommand builds the `orchestration` command group.
func NewOrchestrationCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orchestration",
		Short:   "Workflow orchestration operations",
		Aliases: []string{"orch"},
	}
	cmd.AddCommand(newOrchestrationStartCommand(baseURL))
	cmd.AddCommand(newOrchestrationStatusCommand(baseURL))
	cmd.AddCommand(newOrchestrationPurgeCommand(baseURL))
	return cmd
}

func newOrchestrationStartCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <workflow>",
		Short: "Start a workflow instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			if input != "" && !json.Valid([]byte(input)) {
				return fmt.Errorf("--input must be valid JSON")
			}
			url := baseURL() + "/orchestrators/" + args[0]
			resp, err := http.Post(url, "application/json", strings.NewReader(input))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("start failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().String("input", "", "JSON input passed to the workflow")
	return cmd
}

func newOrchestrationStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status <instance-id>",
		Short: "Show an instance's status and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(baseURL() + "/v1/orchestrations/" + args[0])
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func newOrchestrationPurgeCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <instance-id>",
		Short: "Delete a finished instance's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodDelete, baseURL()+"/v1/orchestrations/"+args[0], nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusNoContent {
				return fmt.Errorf("purge failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "purged:", args[0])
			return nil
		},
	}
}

// printJSON re-indents a JSON body for terminal output, falling back to
// the raw bytes when it does not parse.
func printJSON(w io.Writer, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		_, err := w.Write(body)
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
