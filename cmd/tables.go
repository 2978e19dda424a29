package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables or collections of a store",
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
		s, err := a.stores.Get(kind)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Pipeline.QueryTimeout()+10*time.Second)
		defer cancel()

		names, err := s.ListTables(ctx)
		if err != nil {
			return err
		}
		// Column counts are best effort
		blocks := map[string]string{}
		if schema, err := s.Schema(ctx); err == nil {
			blocks = store.SplitSchema(schema)
		} else {
			a.log.Warn("tables: schema unavailable", "error", err)
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Table", "Columns"})
		table.SetAutoFormatHeaders(false)
		for _, name := range names {
			cols := "-"
			if block, ok := blocks[name]; ok {
				cols = fmt.Sprintf("%d", strings.Count(block, "\n- "))
			}
			table.Append([]string{name, cols})
		}
		table.SetFooter([]string{fmt.Sprintf("%d tables", len(names)), ""})
		table.Render()
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema [TABLE...]",
	Short: "Print the schema text handed to the models",
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
		s, err := a.stores.Get(kind)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Pipeline.QueryTimeout()+10*time.Second)
		defer cancel()

		schema, err := s.Schema(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			fmt.Fprintln(out, schema)
			return nil
		}

		blocks := store.SplitSchema(schema)
		var parts []string
		for _, name := range args {
			block, ok := blocks[name]
			if !ok {
				return fmt.Errorf("table %q not found", name)
			}
			parts = append(parts, block)
		}
		fmt.Fprintln(out, strings.Join(parts, "\n\n"))
		return nil
	},
}
