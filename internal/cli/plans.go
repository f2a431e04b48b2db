package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// plansCommand - список планов из базы ретранслятора.
func (c *CLI) plansCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List stored floorplans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := c.openRepo(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			plans, err := repo.ListFloorplans(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(plans)
			}
			if len(plans) == 0 {
				printInfo(out, "No floorplans stored in %s", c.dbPath)
				return nil
			}
			fmt.Fprintln(out, plansTable(plans))
			printDetail(out, "%d plan(s) in %s", len(plans), c.dbPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print plans as JSON")
	return cmd
}
