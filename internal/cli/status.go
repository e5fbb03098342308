package cli

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
	"github.com/DrHuaSH/web-browser-downloader/internal/transfer/health"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show endpoint health and transfer tasks of a running instance",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&apiAddr, "addr", "", "base URL of a running instance (default derived from config)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	addr := serviceAddr()

	var report health.Report
	if err := getJSON(addr+"/health/detailed", &report); err != nil {
		slog.Error("Failed to fetch health report", "addr", addr, "error", err)
		os.Exit(1)
	}

	fmt.Printf("System: %s   online: %t   active: %d   queued: %d\n\n",
		report.SystemStatus, report.Online, report.Tasks.Active, report.Tasks.Queued)

	names := make([]string, 0, len(report.Endpoints))
	for name := range report.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ENDPOINT\tSTATUS\tCIRCUIT\tFAILS\tWINDOW")
	for _, name := range names {
		ep := report.Endpoints[name]
		circuit := "closed"
		if ep.CircuitOpen {
			circuit = "open"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\n",
			name, ep.Status, circuit, ep.ConsecutiveFails, ep.WindowUsed, ep.WindowLimit)
	}
	_ = w.Flush()

	var tasks []domain.TransferTask
	if err := getJSON(addr+"/tasks", &tasks); err != nil {
		slog.Error("Failed to fetch tasks", "addr", addr, "error", err)
		os.Exit(1)
	}
	if len(tasks) == 0 {
		fmt.Println("\nNo tasks.")
		return
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tSTATUS\tPROGRESS\tSIZE\tAGE\tTARGET")
	for _, task := range tasks {
		size := "-"
		if task.BytesLoaded > 0 {
			size = humanize.Bytes(uint64(task.BytesLoaded))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\t%s\t%s\n",
			shortID(task.ID), task.Kind, task.Status, task.Progress, size,
			humanize.Time(task.CreatedAt), task.Target)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
