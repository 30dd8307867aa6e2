package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/ranker"
	"github.com/sandevgo/membank/internal/service/ui"
)

var (
	searchLimit    int
	searchMinScore float64
	searchTiers    []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Ranked lexical search over stored memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		var tiers []core.Tier
		for _, t := range searchTiers {
			tiers = append(tiers, core.Tier(t))
		}

		results, err := h.Engine.Search(ctx, strings.Join(args, " "), ranker.SearchOptions{
			Tiers:    tiers,
			Limit:    searchLimit,
			MinScore: searchMinScore,
		})
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println(ui.DescStyle.Render("no matches"))
			return nil
		}
		for _, res := range results {
			fmt.Printf("%s %s %s\n  %s\n",
				ui.ScoreStyle.Render(fmt.Sprintf("%.2f", res.Score)),
				ui.TierStyle.Render(string(res.Block.Tier)),
				res.Block.ID,
				firstLine(res.Block.Content),
			)
		}
		return nil
	},
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "drop results scoring below this")
	searchCmd.Flags().StringSliceVar(&searchTiers, "tier", nil, "restrict to tier, repeatable")
	rootCmd.AddCommand(searchCmd)
}
