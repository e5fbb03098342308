package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel a queued or running task",
	Args:  cobra.ExactArgs(1),
	Run:   runCancel,
}

func init() {
	cancelCmd.Flags().StringVar(&apiAddr, "addr", "", "base URL of a running instance (default derived from config)")
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) {
	status, err := postAction("/tasks/" + args[0] + "/cancel")
	if err != nil {
		slog.Error("Failed to cancel task", "task_id", args[0], "error", err)
		os.Exit(1)
	}
	fmt.Printf("Task %s: %s\n", args[0], status)
}
