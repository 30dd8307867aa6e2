package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandevgo/membank/internal/service/assembler"
)

var (
	contextMaxTokens int
	contextAsJSON    bool
	contextNoCore    bool
	contextNoSession bool
	contextNoSearch  bool
)

var contextCmd = &cobra.Command{
	Use:   "context <task>",
	Short: "Assemble a token-budgeted context payload for a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		maxTokens := contextMaxTokens
		if maxTokens <= 0 {
			maxTokens = h.Config.MaxContextTokens
		}

		payload, err := h.Engine.AssembleContext(ctx, strings.Join(args, " "), assembler.Options{
			IncludeCoreMemory:     !contextNoCore,
			IncludeSessionContext: !contextNoSession,
			IncludeRelevantMemory: !contextNoSearch,
			MaxTokens:             maxTokens,
		})
		if err != nil {
			return err
		}

		if contextAsJSON {
			data, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		fmt.Print(payload.RenderText())
		return nil
	},
}

func init() {
	contextCmd.Flags().IntVar(&contextMaxTokens, "max-tokens", 0, "token budget; defaults to the configured maximum")
	contextCmd.Flags().BoolVar(&contextAsJSON, "json", false, "emit the structured payload instead of prompt text")
	contextCmd.Flags().BoolVar(&contextNoCore, "no-core", false, "skip the core memory section")
	contextCmd.Flags().BoolVar(&contextNoSession, "no-session", false, "skip the session context section")
	contextCmd.Flags().BoolVar(&contextNoSearch, "no-search", false, "skip the relevant memory section")
	rootCmd.AddCommand(contextCmd)
}
