package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
)

var (
	submitKind string
	submitName string
)

var submitCmd = &cobra.Command{
	Use:   "submit [target-url]",
	Short: "Submit a transfer task to a running instance",
	Args:  cobra.ExactArgs(1),
	Run:   runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitKind, "kind", string(domain.TaskKindContentFetch), "task kind: content-fetch or byte-transfer")
	submitCmd.Flags().StringVar(&submitName, "name", "", "destination file name for byte transfers")
	submitCmd.Flags().StringVar(&apiAddr, "addr", "", "base URL of a running instance (default derived from config)")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) {
	payload, err := json.Marshal(map[string]string{
		"kind":             submitKind,
		"target":           args[0],
		"destination_name": submitName,
	})
	if err != nil {
		slog.Error("Failed to encode request", "error", err)
		os.Exit(1)
	}

	addr := serviceAddr()
	resp, err := apiClient().Post(addr+"/tasks", "application/json", bytes.NewReader(payload))
	if err != nil {
		slog.Error("Failed to submit task", "addr", addr, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusAccepted {
		slog.Error("Submission rejected", "status", resp.Status, "reason", readAPIError(resp.Body))
		os.Exit(1)
	}

	var task domain.TransferTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		slog.Error("Failed to decode response", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Submitted task %s (%s, %s)\n", task.ID, task.Kind, task.Status)
}
