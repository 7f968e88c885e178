package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/domain"
)

type askOptions struct {
	models     []string
	sync       bool
	jsonOutput bool
}

func newAskCmd(c *cli) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send a prompt to several models and print the consensus groups",
		Long: `Send a prompt to several models and print the consensus groups.

Models are given by registry ID or slug with --model. Without --model every
enabled model is asked.`,
		Example: `  consensus ask "What is the capital of France?" -m openai/gpt-4o -m anthropic/claude-3-sonnet`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := c.newRuntime(ctx, c.config, c.logger, true)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			if opts.sync {
				if _, err := rt.catalog.SyncCached(ctx); err != nil {
					return fmt.Errorf("sync models: %w", err)
				}
			}

			models, err := selectModels(ctx, rt.catalog, opts.models)
			if err != nil {
				return err
			}

			ids := make([]string, len(models))
			for i, m := range models {
				ids[i] = m.ID
			}

			prompt := strings.Join(args, " ")
			submission, err := rt.submissions.Submit(ctx, application.SubmissionRequest{Text: prompt, ModelIDs: ids})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(submission)
			}
			fmt.Fprint(out, renderSubmission(prompt, submission, models))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&opts.models, "model", "m", nil, "model ID or slug to ask (repeatable)")
	cmd.Flags().BoolVar(&opts.sync, "sync", false, "sync the model catalog before asking")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the submission as JSON")
	return cmd
}

// selectModels resolves refs, or returns every enabled model when refs is
// empty.
func selectModels(ctx context.Context, catalog *application.CatalogService, refs []string) ([]domain.Model, error) {
	if len(refs) > 0 {
		return catalog.Resolve(ctx, refs)
	}

	all, err := catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make([]domain.Model, 0, len(all))
	for _, m := range all {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no enabled models; run 'consensus models sync' or pass --model")
	}
	return enabled, nil
}
