package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"ha-floorplan/internal/relay/repository"
)

// importLegacyCommand переносит client-floorplans.json в базу.
func (c *CLI) importLegacyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import-legacy <file>",
		Short: "Import a legacy client-floorplans.json into the database",
		Long:  `Reads a position file in the old pixel format, converts positions to fractions of the plan size and stores them. Plans without a known natural size and with pixel positions are skipped.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := repository.LoadLegacyFile(args[0])
			if err != nil {
				return err
			}

			repo, closeDB, err := c.openRepo(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			out := cmd.OutOrStdout()
			n, err := repo.ImportLegacy(cmd.Context(), file)
			if err != nil {
				var joined interface{ Unwrap() []error }
				if errors.As(err, &joined) {
					for _, e := range joined.Unwrap() {
						printError(out, "%v", e)
					}
				} else {
					printError(out, "%v", err)
				}
			}
			if n == 0 && len(file) > 0 {
				printWarning(out, "Nothing imported from %s", args[0])
				return err
			}
			printSuccess(out, "Imported %d of %d plan(s)", n, len(file))
			printDetail(out, "Database: %s", c.dbPath)
			return nil
		},
	}
}
