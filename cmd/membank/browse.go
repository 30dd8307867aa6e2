package main

import (
	"github.com/spf13/cobra"

	"github.com/sandevgo/membank/internal/service/browser"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse memory blocks in an interactive terminal view",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		return browser.Run(ctx, h.store)
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}
