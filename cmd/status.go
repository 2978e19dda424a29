package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-nl2sql/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show application status",
	Long:  `Show the current application status including store connections, models and history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		a, err := newApp(appOptions{})
		if err != nil {
			fmt.Fprintf(out, "Status: Not configured\n")
			fmt.Fprintf(out, "Run 'kartoza-nl2sql config init' and set the connection variables.\n")
			return err
		}
		defer a.Close()

		path, _ := config.ConfigPath()
		fmt.Fprintf(out, "Kartoza NL2SQL Status\n")
		fmt.Fprintf(out, "=====================\n")
		fmt.Fprintf(out, "Config file: %s\n", path)
		fmt.Fprintf(out, "Models: %s (chat %s, code %s)\n", a.cfg.Model.Provider, a.cfg.Model.ChatModel, a.cfg.Model.CodeModel)
		if entries, err := a.history.List(); err == nil {
			fmt.Fprintf(out, "Question History: %d questions\n", len(entries))
		}
		fmt.Fprintln(out)

		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Store", "Dialect", "Status", "Tables"})
		table.SetAutoFormatHeaders(false)
		for _, kind := range a.stores.Kinds() {
			s, _ := a.stores.Get(kind)
			status, tables := "connected", "-"

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			if err := s.EnsureConnected(ctx); err != nil {
				status = "unavailable: " + err.Error()
			} else if names, err := s.ListTables(ctx); err == nil {
				tables = fmt.Sprintf("%d", len(names))
			}
			cancel()

			table.Append([]string{string(kind), s.Dialect(), status, tables})
		}
		table.Render()
		return nil
	},
}
