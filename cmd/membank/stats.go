package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Per-tier block counts and usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		stats, err := h.Engine.GetStats(ctx)
		if err != nil {
			return err
		}

		fmt.Println(ui.TitleStyle.Render("MEMORY"))
		for _, tier := range core.AllTiers {
			fmt.Printf("  %s %d\n", ui.TierStyle.Render(string(tier)), stats.TierCounts[tier])
		}
		fmt.Printf("  total %d blocks, core memory ~%d tokens\n", stats.TotalBlocks, stats.CoreMemoryTokens)

		if len(stats.OperationCounts) > 0 {
			fmt.Println(ui.TitleStyle.Render("OPERATIONS"))
			ops := make([]string, 0, len(stats.OperationCounts))
			for op := range stats.OperationCounts {
				ops = append(ops, op)
			}
			sort.Strings(ops)
			for _, op := range ops {
				fmt.Printf("  %s %d\n", op, stats.OperationCounts[op])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
