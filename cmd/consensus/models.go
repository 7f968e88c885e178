package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-consensus/internal/domain"
)

func newModelsCmd(c *cli) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and manage the model registry",
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print models as JSON")

	printModels := func(cmd *cobra.Command, models []domain.Model) error {
		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(models)
		}
		fmt.Fprint(out, renderModels(models))
		return nil
	}

	// withRuntime runs fn against a runtime that needs no completion keys.
	withRuntime := func(cmd *cobra.Command, fn func(rt *runtime) error) error {
		rt, err := c.newRuntime(cmd.Context(), c.config, c.logger, false)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close(context.Background()) }()
		return fn(rt)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered models ordered by provider and name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				models, err := rt.catalog.List(cmd.Context())
				if err != nil {
					return err
				}
				return printModels(cmd, models)
			})
		},
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the upstream catalog and upsert the selected models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(rt *runtime) error {
				models, err := rt.catalog.Sync(cmd.Context())
				if err != nil {
					return err
				}
				return printModels(cmd, models)
			})
		},
	}

	toggle := func(use, short string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id-or-slug>...",
			Short: short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRuntime(cmd, func(rt *runtime) error {
					ctx := cmd.Context()
					resolved, err := rt.catalog.Resolve(ctx, args)
					if err != nil {
						return err
					}
					updated := make([]domain.Model, 0, len(resolved))
					for _, m := range resolved {
						m, err := rt.catalog.SetEnabled(ctx, m.ID, enabled)
						if err != nil {
							return err
						}
						updated = append(updated, m)
					}
					return printModels(cmd, updated)
				})
			},
		}
	}

	cmd.AddCommand(
		list,
		sync,
		toggle("enable", "Offer models for submissions", true),
		toggle("disable", "Stop offering models for submissions", false),
	)
	return cmd
}
