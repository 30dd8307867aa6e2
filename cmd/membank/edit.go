package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandevgo/membank/internal/core"
)

var (
	editTags      []string
	editRelevance float64
)

var editCmd = &cobra.Command{
	Use:   "edit <id> <content>",
	Short: "Replace a block's content and optionally patch its metadata",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		patch := &core.MetadataPatch{}
		if cmd.Flags().Changed("tag") {
			patch.Tags = editTags
		}
		if cmd.Flags().Changed("relevance") {
			patch.RelevanceScore = &editRelevance
		}

		block, err := h.Engine.UpdateBlock(ctx, args[0], strings.Join(args[1:], " "), patch)
		if err != nil {
			return err
		}
		fmt.Println("updated", block.ID)
		return nil
	},
}

func init() {
	editCmd.Flags().StringSliceVar(&editTags, "tag", nil, "replace the tag set, repeatable")
	editCmd.Flags().Float64Var(&editRelevance, "relevance", 0, "new relevance score in [0,1]")
	rootCmd.AddCommand(editCmd)
}
