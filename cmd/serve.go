package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-nl2sql/internal/metrics"
	"github.com/kartoza/kartoza-nl2sql/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question, ingestion and table endpoints over HTTP",
	Long: `Serve the HTTP API:

  POST /api/query    stream answer records as Server-Sent Events
  POST /api/ingest   upload a CSV, TSV or Excel file (multipart field "file")
  GET  /api/tables   list tables
  GET  /healthz      store connectivity
  GET  /metrics      Prometheus metrics`,
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

		addr := a.cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv, err := server.New(server.Config{
			Addr:        addr,
			Logger:      a.log,
			Processor:   a.pipeline,
			Ingester:    a.ingester,
			Stores:      a.stores,
			History:     a.history,
			DefaultKind: kind,
		})
		if err != nil {
			return err
		}

		metrics.BuildInfo.WithLabelValues(appVersion).Set(1)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
}
