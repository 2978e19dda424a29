package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-nl2sql/internal/config"
	"github.com/kartoza/kartoza-nl2sql/internal/history"
)

var (
	historyLimit int
	historyClear bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show previously asked questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		h := history.New(dir, cfg.Settings.MaxHistorySize)
		out := cmd.OutOrStdout()

		if historyClear {
			if err := h.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(out, "History cleared.")
			return nil
		}

		entries, err := h.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No questions asked yet.")
			return nil
		}
		if historyLimit > 0 && len(entries) > historyLimit {
			entries = entries[:historyLimit]
		}

		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Time", "Store", "Question", "Query", "OK", "ms"})
		table.SetAutoFormatHeaders(false)
		table.SetRowLine(true)
		table.SetColWidth(48)
		for _, e := range entries {
			ok := "yes"
			if !e.Success {
				ok = "no"
			}
			table.Append([]string{
				e.Timestamp.Local().Format("2006-01-02 15:04"),
				e.Store,
				e.Question,
				e.Query,
				ok,
				fmt.Sprintf("%.0f", e.DurationMS),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete all history entries")
}
