// AngelaMos | 2026
// store_cmd.go

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/ledger"
	"github.com/carterperez-dev/gatepass/internal/principal"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

func newMigrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // process exits next

			version, err := core.SchemaVersion(db)
			if err != nil {
				return err
			}

			return g.emit(cmd.OutOrStdout(),
				map[string]any{"driver": db.Driver, "schema_version": version},
				fmt.Sprintf("schema at version %d (%s)", version, db.Driver),
			)
		},
	}
}

func newAdminCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage gate staff outside the API",
	}

	var create bool
	bootstrap := &cobra.Command{
		Use:   "bootstrap <principal-id>",
		Short: "Grant admin to a principal without an acting admin",
		Long: "Grants the admin role directly in the store. This is the only way to " +
			"appoint the first admin; later grants go through the API.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			db, _, err := g.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // process exits next

			principals := principal.NewService(db.DB)

			exists, err := principals.Exists(ctx, id)
			if err != nil {
				return err
			}
			if !exists {
				if !create {
					return fmt.Errorf(
						"principal %s has not contacted the bot yet (use --create): %w",
						id, core.ErrUnknownPrincipal,
					)
				}
				if _, _, err := principals.Start(ctx, id, "", ""); err != nil {
					return err
				}
			}

			changed, err := principals.SetRole(ctx, id, principal.RoleAdmin, true)
			if err != nil {
				return err
			}

			text := "principal " + id + " is now an admin"
			if !changed {
				text = "principal " + id + " was already an admin"
			}
			return g.emit(cmd.OutOrStdout(),
				map[string]any{"principal_id": id, "changed": changed},
				text,
			)
		},
	}
	bootstrap.Flags().BoolVar(&create, "create", false, "create the principal if it is unknown")

	cmd.AddCommand(bootstrap)
	return cmd
}

type statsOutput struct {
	Registrations int                  `json:"registrations"`
	Redemptions   int                  `json:"redemptions"`
	ByClass       map[ticket.Class]int `json:"by_class"`
}

func newStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print registration and redemption counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, cfg, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // process exits next

			principals := principal.NewService(db.DB)
			admissions := ledger.NewService(db.DB)

			var out statsOutput
			eg, ctx := errgroup.WithContext(cmd.Context())
			eg.Go(func() (err error) {
				out.Registrations, err = principals.CountRegistrations(ctx)
				return err
			})
			eg.Go(func() (err error) {
				out.ByClass, err = admissions.CountByClass(ctx)
				return err
			})
			if err := eg.Wait(); err != nil {
				return err
			}

			for _, class := range cfg.Tickets.Classes {
				if _, ok := out.ByClass[ticket.Class(class.Name)]; !ok {
					out.ByClass[ticket.Class(class.Name)] = 0
				}
			}
			for _, n := range out.ByClass {
				out.Redemptions += n
			}

			text := fmt.Sprintf("registrations: %d\nredemptions:   %d", out.Registrations, out.Redemptions)
			for _, class := range cfg.Tickets.Classes {
				text += fmt.Sprintf("\n  %-12s %d", class.Name, out.ByClass[ticket.Class(class.Name)])
			}
			return g.emit(cmd.OutOrStdout(), out, text)
		},
	}
}
