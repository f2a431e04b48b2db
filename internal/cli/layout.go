package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/handlers"
	"ha-floorplan/pkg/layout"
)

// layoutCommand проецирует сохранённые позиции плана в контейнер
// заданного размера тем же кодом, что и GET /api/floorplans/:id/layout.
func (c *CLI) layoutCommand() *cobra.Command {
	var (
		width, height float64
		widget        string
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "layout <plan>",
		Short: "Project stored widget positions into a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container := layout.Size{Width: width, Height: height}
			if container.Degenerate() {
				return apperr.New(apperr.CodeInvalidInput, "--width and --height must be positive")
			}
			var widgetSize layout.Size
			if widget != "" {
				var err error
				if widgetSize, err = handlers.ParseSize(widget); err != nil {
					return err
				}
			}

			repo, closeDB, err := c.openRepo(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			plan, err := repo.GetFloorplan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			resp, err := handlers.ProjectLayout(plan, container, widgetSize)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintln(out, layoutTable(resp))
			return nil
		},
	}
	cmd.Flags().Float64Var(&width, "width", 1280, "container width in pixels")
	cmd.Flags().Float64Var(&height, "height", 800, "container height in pixels")
	cmd.Flags().StringVar(&widget, "widget", "", "widget size as WxH (default 50x50)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the projection as JSON")
	return cmd
}
