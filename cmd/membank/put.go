package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/ui"
)

var (
	putTier      string
	putTags      []string
	putRelevance float64
)

var putCmd = &cobra.Command{
	Use:   "put <content>",
	Short: "Store a memory block",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		block, err := h.Engine.StoreBlock(ctx, &core.MemoryBlock{
			Tier:    core.Tier(putTier),
			Content: strings.Join(args, " "),
			Metadata: core.Metadata{
				Tags:           putTags,
				RelevanceScore: putRelevance,
			},
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", ui.TierStyle.Render(string(block.Tier)), block.ID)
		return nil
	},
}

func init() {
	putCmd.Flags().StringVarP(&putTier, "tier", "t", string(core.TierPersistent), "memory tier: core, persistent, session or archival")
	putCmd.Flags().StringSliceVar(&putTags, "tag", nil, "tag to attach, repeatable")
	putCmd.Flags().Float64Var(&putRelevance, "relevance", 0, "initial relevance score in [0,1]")
	rootCmd.AddCommand(putCmd)
}
