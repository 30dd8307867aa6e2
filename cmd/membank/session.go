package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandevgo/membank/internal/service/ui"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show or update session context",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print all session context entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		session, err := h.Engine.GetSessionContext(ctx)
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(session))
		for k := range session {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s %s\n", ui.UsageStyle.Render(k+":"), session[k])
		}
		return nil
	},
}

var sessionSetCmd = &cobra.Command{
	Use:   "set <key> <content>",
	Short: "Set one session context entry",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		return h.Engine.UpdateSessionContext(ctx, args[0], strings.Join(args[1:], " "))
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionSetCmd)
	rootCmd.AddCommand(sessionCmd)
}
