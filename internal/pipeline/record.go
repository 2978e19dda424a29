package pipeline

import (
	"fmt"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// Record is one element of the response stream. Answer is cumulative: each
// record carries the full answer text produced so far, so consumers replace
// rather than append.
type Record struct {
	Label  string `json:"label"`
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// Record labels
const (
	LabelQueryNeeded       = "Database query needed"
	LabelNoQueryNeeded     = "No database query needed"
	LabelSchemaUnavailable = "Schema unavailable"
	LabelError             = "Processing error"
)

const (
	// NoQueryDisplay is shown in the query slot when no query was needed
	NoQueryDisplay = "no query needed"
	// NoQueryData is handed to the answer model when no query was needed
	NoQueryData = "No database query needed"
	// SchemaUnavailableAnswer is the answer of the terminal record emitted
	// when the schema could not be retrieved
	SchemaUnavailableAnswer = "Unable to retrieve the database schema. Check the connection settings and try again."
)

// QueryRequest is the input to query synthesis. ErrorContext and
// PreviousQuery are only set on retry attempts.
type QueryRequest struct {
	Question      string
	Kind          store.Kind
	Dialect       string
	Schema        string
	ErrorContext  string
	PreviousQuery string
}

func errorRecord(err error) Record {
	return Record{Label: LabelError, Query: "", Answer: fmt.Sprintf("Error: %v", err)}
}
