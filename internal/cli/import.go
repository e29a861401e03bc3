package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/bulkimport/internal/dispatch"
	"github.com/rpattn/bulkimport/internal/domain"
	"github.com/rpattn/bulkimport/internal/ingestion"

	"github.com/spf13/cobra"
)

func newImportCmd(s *state) *cobra.Command {
	var (
		importerName string
		format       string
		createdBy    string
		errorLimit   int
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Run an import synchronously and print the summary",
		Long: `Import a CSV, XLSX or JSON file with a registered importer. The job is
stored like any other and processed in this process.

Examples:
  importctl import ventas.csv --importer sales
  importctl import ventas.xlsx --importer sales_model --created-by ana`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if errorLimit < 0 {
				return fmt.Errorf("--errors must not be negative")
			}
			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer file.Close()

			service := s.app.Service(dispatch.NewSync(s.app.Processor))
			job, err := service.StartImport(cmd.Context(), ingestion.ImportRequest{
				ImporterName: importerName,
				Format:       format,
				FileName:     filepath.Base(path),
				Data:         file,
				CreatedBy:    createdBy,
			})
			if err != nil {
				return err
			}

			printJobSummary(cmd.OutOrStdout(), job, errorLimit)
			return nil
		},
	}

	cmd.Flags().StringVarP(&importerName, "importer", "i", "", "importer name (see `importctl importers`)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "file format: csv, xlsx or json (default: from extension)")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "user recorded on the job")
	cmd.Flags().IntVar(&errorLimit, "errors", ingestion.DefaultErrorDisplayLimit, "max row errors to print (0 prints all)")
	_ = cmd.MarkFlagRequired("importer")
	return cmd
}

func printJobSummary(w io.Writer, job domain.ImportJob, errorLimit int) {
	fmt.Fprintf(w, "Job:       %s\n", job.ID)
	fmt.Fprintf(w, "Importer:  %s\n", job.ImporterLabel)
	fmt.Fprintf(w, "File:      %s\n", job.FileName)
	fmt.Fprintf(w, "Status:    %s\n", job.Status)
	fmt.Fprintf(w, "Rows:      %d processed, %d succeeded (%d created, %d updated), %d failed\n",
		job.ProcessedRows, job.SuccessRows, job.CreatedRows, job.UpdatedRows, job.ErrorRows)
	if elapsed, ok := job.Duration(); ok {
		fmt.Fprintf(w, "Duration:  %s\n", elapsed.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Result:    %s\n", job.ResultMessage)

	if errorLimit == 0 {
		errorLimit = len(job.ErrorDetails)
	}
	display := ingestion.DisplayErrors(job.ErrorDetails, errorLimit)
	if len(display.Errors) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Errors:")
	for _, detail := range display.Errors {
		fmt.Fprintf(w, "  Row %d: %s\n", detail.RowNumber, strings.Join(detail.Messages, ", "))
	}
	if display.Summary != "" {
		fmt.Fprintf(w, "  %s\n", display.Summary)
	}
}
