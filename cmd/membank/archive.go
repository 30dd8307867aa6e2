package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandevgo/membank/internal/service/ui"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Move a block to the archival tier",
	Long:  `Moves a block into archival storage. The transition is one-way; archival blocks only surface through explicit search.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		block, err := h.Engine.ArchiveBlock(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", ui.TierStyle.Render(string(block.Tier)), block.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}
