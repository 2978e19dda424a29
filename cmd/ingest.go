package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-nl2sql/internal/ingest"
)

var ingestTable string

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE",
	Short: "Load a CSV, TSV or Excel file into a table",
	Long: `Load a tabular file into the selected store. Column types are inferred
from the data. Without --table the chat model picks an existing table that
matches the file or a name for a new one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(appOptions{console: os.Stderr})
		if err != nil {
			return err
		}
		defer a.Close()

		kind, err := a.kind()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		res, err := a.ingester.IngestFile(ctx, args[0], ingest.Request{Table: ingestTable, Kind: kind})
		if res != nil {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Message)
			if res.Created {
				table := tablewriter.NewWriter(out)
				table.SetHeader([]string{"Column", "Type"})
				table.SetAutoFormatHeaders(false)
				for _, c := range res.Columns {
					table.Append([]string{c.Name, c.Type.String()})
				}
				table.Render()
			}
		}
		return err
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestTable, "table", "t", "", "Target table (default: chosen by the model)")
}
