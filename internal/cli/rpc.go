package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRPCCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc <method> [params-json]",
		Short: "Call a backend JSON-RPC method with the stored session",
		Long: `Call a method on the namespace of the configured role and print the
result as indented JSON.

Examples:
  fleetctl rpc object.list
  fleetctl --role manager rpc session.select_customer '{"id": 12}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}

			var params any = map[string]any{}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
					return fmt.Errorf("params must be JSON: %w", err)
				}
			}

			var result json.RawMessage
			if err := a.client.Call(cmd.Context(), a.role(), a.manager, args[0], params, &result); err != nil {
				return err
			}
			if len(result) == 0 {
				printf(cmd, "null\n")
				return nil
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, result, "", "  "); err != nil {
				printf(cmd, "%s\n", result)
				return nil
			}
			printf(cmd, "%s\n", buf.String())
			return nil
		},
	}
}
