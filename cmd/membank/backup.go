package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandevgo/membank/internal/service/backup"
	"github.com/sandevgo/membank/internal/service/ui"
)

var (
	backupDescription   string
	backupWithArchival  bool
	backupWithAnalytics bool
	restoreValidateOnly bool
	restoreOverwrite    bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list, restore and delete backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the store into a new backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		entry, err := h.Engine.CreateBackup(ctx, backup.CreateOptions{
			Description:      backupDescription,
			IncludeArchival:  backupWithArchival,
			IncludeAnalytics: backupWithAnalytics,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s %d blocks\n", entry.ID, entry.Metadata.BlockCount)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		entries, err := h.Engine.ListBackups(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println(ui.DescStyle.Render("no backups"))
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %s  %d blocks  %s\n",
				e.Timestamp.Format(time.RFC3339), e.ID, e.Metadata.BlockCount,
				ui.DescStyle.Render(e.Description))
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Validate and restore a backup into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		result, err := h.Engine.RestoreBackup(ctx, args[0], backup.RestoreOptions{
			ValidateOnly:      restoreValidateOnly,
			OverwriteExisting: restoreOverwrite,
		})
		if err != nil {
			return err
		}

		if !result.Valid {
			fmt.Println("snapshot invalid:")
			for _, p := range result.Problems {
				fmt.Println("  -", p)
			}
			return nil
		}
		if restoreValidateOnly {
			fmt.Println("snapshot valid")
			return nil
		}
		fmt.Printf("restored: %d  skipped: %d\n", result.Restored, result.Skipped)
		return nil
	},
}

var backupRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a backup and its snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		h, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer h.Close(ctx)

		return h.Engine.DeleteBackup(ctx, args[0])
	},
}

func init() {
	backupCreateCmd.Flags().StringVarP(&backupDescription, "description", "m", "", "backup description")
	backupCreateCmd.Flags().BoolVar(&backupWithArchival, "with-archival", false, "include the archival tier")
	backupCreateCmd.Flags().BoolVar(&backupWithAnalytics, "with-analytics", false, "include usage analytics")
	backupRestoreCmd.Flags().BoolVar(&restoreValidateOnly, "validate", false, "validate only, do not restore")
	backupRestoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "restore into a non-empty store")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupRmCmd)
	rootCmd.AddCommand(backupCmd)
}
