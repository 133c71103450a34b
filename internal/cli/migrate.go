package cli

import (
	"fmt"

	"github.com/cardswap/cardswap/internal/listings"
	"github.com/cardswap/cardswap/internal/repositories"
	"github.com/spf13/cobra"
)

func newMigrateCommand(app *App) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.db == nil {
				return fmt.Errorf("the database is disabled; set DB_ENABLED=true")
			}
			ctx := cmd.Context()

			if err := app.db.Migrate(ctx); err != nil {
				return err
			}
			version, err := app.db.MigrationVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database at migration %d\n", version)

			if seed {
				n, err := repositories.NewOfferRepository(app.db).SeedIfEmpty(ctx, app.db, listings.SeedOffers())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d offers\n", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "insert the starter catalog into an empty offers table")
	return cmd
}
