package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/spf13/cobra"
)

const ruler = "======================================================================"

func newCleanupStalledCmd(s *state) *cobra.Command {
	var (
		timeoutMinutes int
		dryRun         bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup-stalled",
		Short: "Detect and fail import jobs stuck in pending or processing",
		Long: `Find import jobs that have been pending or processing for longer than
the timeout and mark them as failed.

Examples:
  importctl cleanup-stalled
  importctl cleanup-stalled --timeout 15
  importctl cleanup-stalled --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeoutMinutes <= 0 {
				return fmt.Errorf("--timeout must be positive")
			}
			out := cmd.OutOrStdout()
			detector := s.app.Detector(time.Duration(timeoutMinutes) * time.Minute)

			fmt.Fprintln(out, ruler)
			fmt.Fprintf(out, "STALLED IMPORT CLEANUP (timeout: %d min)\n", timeoutMinutes)
			fmt.Fprintln(out, ruler)
			fmt.Fprintln(out)

			stalled, err := detector.FindStalled(cmd.Context())
			if err != nil {
				return err
			}
			if len(stalled) == 0 {
				fmt.Fprintln(out, "[OK] No stalled imports found")
				return nil
			}

			fmt.Fprintf(out, "[!] Found %d stalled imports:\n\n", len(stalled))
			now := detector.Now()
			for _, job := range stalled {
				printStalledJob(out, job, now)
			}

			if dryRun {
				fmt.Fprintln(out, "[DRY RUN] No changes made (run without --dry-run to apply)")
				return nil
			}

			fmt.Fprintln(out, "Marking jobs as failed...")
			marked := 0
			for _, job := range stalled {
				ok, err := detector.MarkAsFailedIfStalled(cmd.Context(), job)
				if err != nil {
					return err
				}
				if ok {
					marked++
					fmt.Fprintf(out, "  [OK] Job %s marked as failed\n", job.ID)
				}
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, ruler)
			fmt.Fprintf(out, "[OK] Done: %d jobs marked as failed\n", marked)
			fmt.Fprintln(out, ruler)
			return nil
		},
	}

	cmd.Flags().IntVar(&timeoutMinutes, "timeout", 10, "minutes before a job is considered stalled")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show stalled jobs without changing them")
	return cmd
}

func printStalledJob(w io.Writer, job domain.ImportJob, now time.Time) {
	fmt.Fprintf(w, "  - ID %s: %s\n", job.ID, job.ImporterName)
	fmt.Fprintf(w, "    Status:  %s\n", job.Status)
	fmt.Fprintf(w, "    Created: %s\n", job.CreatedAt.Format(time.DateTime))
	fmt.Fprintf(w, "    Elapsed: %s\n", formatElapsed(now.Sub(job.CreatedAt)))
	fmt.Fprintln(w)
}

// formatElapsed renders a duration as "Hh Mm Ss".
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return strings.TrimSpace(fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds))
}
