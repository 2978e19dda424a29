package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-nl2sql/internal/tui"
)

var (
	appVersion = "dev"
	storeFlag  string
	logLevel   string
	noColor    bool
	envFiles   []string
)

// SetVersion sets the application version
func SetVersion(v string) {
	appVersion = v
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kartoza-nl2sql",
	Short: "Ask your databases questions in plain language",
	Long: `Kartoza NL2SQL - Ask MySQL, PostgreSQL, SQLite and MongoDB databases
questions in natural language.

This tool allows you to:
  - Ask questions and get answers grounded in your data
  - See the query that was generated and executed for each answer
  - Load CSV, TSV and Excel files into new or existing tables
  - Browse tables and question history
  - Serve the same features over HTTP

Run without a subcommand to start the interactive interface.

Built with love by Kartoza.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Console logging would corrupt the full-screen interface
		a, err := newApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		kind, err := a.kind()
		if err != nil {
			return err
		}

		if err := tui.RunApp(tui.Deps{
			Processor: a.pipeline,
			Stores:    a.stores,
			History:   a.history,
			Kind:      kind,
			Logger:    a.log,
		}); err != nil {
			return fmt.Errorf("running application: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVarP(&storeFlag, "store", "s", "", "Store to use: relational or document (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Environment files to load")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}
