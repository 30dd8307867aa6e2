package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandevgo/membank/internal/service/ui"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run the memory optimization passes once",
	Long:  `Runs cleanup of stale blocks, compression of redundant groups, archival of old blocks and relevance rescoring, then prints the report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		report, err := h.Engine.Optimize(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("cleaned: %d  compressed: %d  archived: %d  rescored: %d\n",
			report.CleanedUp, report.Compressed, report.Archived, report.Rescored)
		for _, rec := range report.Recommendations {
			fmt.Printf("%s %s\n", ui.FlagStyle.Render("["+string(rec.Priority)+"]"), rec.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
}
