package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-nl2sql/internal/history"
	"github.com/kartoza/kartoza-nl2sql/internal/pipeline"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

var (
	askJSON      bool
	askNoHistory bool
)

var askCmd = &cobra.Command{
	Use:   "ask QUESTION...",
	Short: "Ask a question and stream the answer",
	Long: `Ask a question in natural language. The generated query is shown once it
has been executed, followed by the answer as it is written.

With --json every record is printed as one JSON object per line.`,
	Args: cobra.MinimumNArgs(1),
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

		question := strings.Join(args, " ")
		started := time.Now()
		records := a.pipeline.Process(ctx, question, kind)

		var last pipeline.Record
		var ok bool
		if askJSON {
			last, ok, err = writeJSONRecords(cmd.OutOrStdout(), records)
		} else {
			last, ok = writeRecords(cmd.OutOrStdout(), records, lexerFor(kind), !noColor)
		}
		if err != nil {
			return err
		}
		if !ok {
			if err := context.Cause(ctx); err != nil {
				return err
			}
			return errors.New("no answer received")
		}

		if !askNoHistory {
			if err := a.history.Add(history.FromRecord(question, kind, last, started)); err != nil {
				a.log.Warn("ask: failed to save history", "error", err)
			}
		}
		if last.Label == pipeline.LabelError || last.Label == pipeline.LabelSchemaUnavailable {
			return errors.New(last.Label)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print records as JSON lines")
	askCmd.Flags().BoolVar(&askNoHistory, "no-history", false, "Do not save the question to history")
}

// writeRecords prints the label and query of the first record, then the
// answer as it grows. It returns the final record and whether any record
// was received.
func writeRecords(w io.Writer, records iter.Seq[pipeline.Record], lexer string, color bool) (pipeline.Record, bool) {
	var last pipeline.Record
	received := false
	printed := ""

	for rec := range records {
		if !received || rec.Label != last.Label || rec.Query != last.Query {
			if received {
				fmt.Fprintln(w)
			}
			writeHeading(w, rec, lexer, color)
			printed = ""
		}
		received = true
		last = rec

		if strings.HasPrefix(rec.Answer, printed) {
			fmt.Fprint(w, rec.Answer[len(printed):])
		} else {
			fmt.Fprint(w, "\n"+rec.Answer)
		}
		printed = rec.Answer
	}

	if received {
		fmt.Fprintln(w)
	}
	return last, received
}

func writeHeading(w io.Writer, rec pipeline.Record, lexer string, color bool) {
	fmt.Fprintf(w, "[%s]\n", rec.Label)
	if rec.Label != pipeline.LabelQueryNeeded || rec.Query == "" {
		return
	}
	fmt.Fprintln(w)
	if !color || quick.Highlight(w, rec.Query, lexer, "terminal256", "monokai") != nil {
		fmt.Fprint(w, rec.Query)
	}
	fmt.Fprint(w, "\n\n")
}

// writeJSONRecords prints every record as one JSON object per line
func writeJSONRecords(w io.Writer, records iter.Seq[pipeline.Record]) (pipeline.Record, bool, error) {
	enc := json.NewEncoder(w)
	var last pipeline.Record
	received := false
	for rec := range records {
		if err := enc.Encode(rec); err != nil {
			return last, received, err
		}
		last = rec
		received = true
	}
	return last, received, nil
}

func lexerFor(kind store.Kind) string {
	if kind == store.Document {
		return "javascript"
	}
	return "sql"
}
