package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry [task-id]",
	Short: "Re-admit a failed task for another transfer attempt",
	Args:  cobra.ExactArgs(1),
	Run:   runRetry,
}

func init() {
	retryCmd.Flags().StringVar(&apiAddr, "addr", "", "base URL of a running instance (default derived from config)")
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) {
	status, err := postAction("/tasks/" + args[0] + "/retry")
	if err != nil {
		slog.Error("Failed to retry task", "task_id", args[0], "error", err)
		os.Exit(1)
	}
	fmt.Printf("Task %s: %s\n", args[0], status)
}
