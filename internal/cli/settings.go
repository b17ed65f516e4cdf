package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fleet-dashboard/internal/models"
)

func newSettingsCmd(app func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change display settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [title]",
		Short: "Print all settings or one value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			store := a.manager.Settings()
			if len(args) == 1 {
				v, ok := store.Get(args[0])
				if !ok {
					return fmt.Errorf("no setting %q", args[0])
				}
				printf(cmd, "%v\n", v)
				return nil
			}
			out := map[string]any{}
			for _, s := range store.List() {
				out[s.Title] = s.Value
			}
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(out)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <title> <value>",
		Short: "Change a setting and save it to the backend",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			changed, err := a.manager.UpdateSettings(cmd.Context(), []models.Setting{
				{Title: args[0], Value: scalar(args[1])},
			})
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				printf(cmd, "%s unchanged\n", args[0])
				return nil
			}
			printf(cmd, "%s updated\n", args[0])
			return nil
		},
	})
	return cmd
}

// scalar reads booleans as booleans; everything else, numbers included,
// stays a string since the backend stores setting values as text.
func scalar(s string) any {
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}
