package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/rules"
)

func newExtractCmd() *cobra.Command {
	var site string
	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Deep-crawl one article URL and print the extracted title and content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rule, err := rules.Lookup(ctx, state.app.Store(), site)
			if err != nil {
				state.app.Logger().Warn("rule lookup failed, using heuristics", zap.Error(err))
				rule = nil
			}
			res := state.app.Extractor().Extract(ctx, args[0], rule)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "source label used to look up the extraction rule")
	return cmd
}

func newDeepCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deep-crawl <id>...",
		Short: "Deep-crawl stored items by ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q: %w", arg, err)
				}
				ids = append(ids, id)
			}
			summary, err := state.app.DeepCrawl().Run(cmd.Context(), ids)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("encode summary: %w", err)
			}
			return nil
		},
	}
}
