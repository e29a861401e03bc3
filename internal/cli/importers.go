package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newImportersCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "importers",
		Short: "List registered importers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			importers := s.app.Registry.All()
			if len(importers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No importers registered.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLABEL\tFIELDS\tRERUN\tKEY")
			for _, importer := range importers {
				key := importer.KeyField
				if key == "" {
					key = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n",
					importer.Name, importer.DisplayLabel(), importer.Schema.Len(), importer.CanRerun, key)
			}
			return w.Flush()
		},
	}
}
