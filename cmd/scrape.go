package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/progress"
	"github.com/JakeFAU/opinionscan/internal/source"
)

func newScrapeCmd() *cobra.Command {
	var (
		sourceName string
		pages      int
		limit      int
		save       bool
	)
	cmd := &cobra.Command{
		Use:   "scrape <keyword>",
		Short: "Scan a listing source and stream progress events as NDJSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			conn, err := state.app.Sources().Get(sourceName)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			scanID := uuid.New()
			seq := progress.Observe(
				conn.Scrape(ctx, source.Query{Keyword: args[0], Pages: pages, Limit: limit}),
				state.app.Emitter(), scanID, conn.Name(),
			)
			outcome, err := progress.WriteStream(cmd.OutOrStdout(), seq)
			if err != nil {
				return fmt.Errorf("write stream: %w", err)
			}
			if !save || !outcome.Completed {
				return nil
			}
			inserted, err := state.app.Store().SaveItems(ctx, outcome.Items)
			if err != nil {
				return fmt.Errorf("save items: %w", err)
			}
			state.app.Logger().Info("scan items saved",
				zap.String("scan_id", scanID.String()),
				zap.Int("items", len(outcome.Items)),
				zap.Int("inserted", inserted),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceName, "source", "", "listing source ("+source.Baidu+", "+source.Sohu+" or "+source.Gov+")")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of listing pages to scan")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of items (0 = unlimited)")
	cmd.Flags().BoolVar(&save, "save", false, "store the result items")
	return cmd
}
