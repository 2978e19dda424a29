package mongostore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Operation is a whitelisted read operation
type Operation string

const (
	OpFind      Operation = "find"
	OpAggregate Operation = "aggregate"
	OpCount     Operation = "count"
	OpDistinct  Operation = "distinct"
)

const (
	// DefaultLimit applies to find queries that do not set one
	DefaultLimit int64 = 100
	// MaxLimit caps the documents materialized for a single query
	MaxLimit int64 = 1000
)

var (
	// ErrInvalidQuery is returned for query documents that cannot be parsed
	ErrInvalidQuery = errors.New("invalid query document")
	// ErrForbiddenOperator is returned for queries that run server-side code
	// or write data
	ErrForbiddenOperator = errors.New("forbidden operator")
)

// forbidden lists operators that execute JavaScript or write to the database
var forbidden = map[string]bool{
	"$where":       true,
	"$function":    true,
	"$accumulator": true,
	"$out":         true,
	"$merge":       true,
}

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// Query is the JSON query document produced by the synthesis model:
//
//	{"collection": "movies", "operation": "find",
//	 "filter": {"year": {"$gt": 2000}}, "projection": {"title": 1},
//	 "sort": {"year": -1}, "limit": 10}
//
//	{"collection": "movies", "operation": "aggregate",
//	 "pipeline": [{"$group": {"_id": "$genre", "n": {"$sum": 1}}}]}
//
//	{"collection": "movies", "operation": "count", "filter": {}}
//
//	{"collection": "movies", "operation": "distinct", "field": "genre"}
type Query struct {
	Collection string    `bson:"collection"`
	Operation  Operation `bson:"operation"`
	Filter     bson.D    `bson:"filter,omitempty"`
	Projection bson.D    `bson:"projection,omitempty"`
	Sort       bson.D    `bson:"sort,omitempty"`
	Limit      int64     `bson:"limit,omitempty"`
	Skip       int64     `bson:"skip,omitempty"`
	Pipeline   []bson.D  `bson:"pipeline,omitempty"`
	Field      string    `bson:"field,omitempty"`
}

// ParseQuery decodes and validates a query document. Relaxed extended JSON
// is accepted, so {"$oid": "..."} and {"$date": "..."} values work.
func ParseQuery(text string) (*Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}

	var q Query
	if err := bson.UnmarshalExtJSON([]byte(text), false, &q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	q.Operation = Operation(strings.ToLower(string(q.Operation)))
	if q.Operation == "countdocuments" {
		q.Operation = OpCount
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// Validate checks the operation whitelist and rejects forbidden operators
func (q *Query) Validate() error {
	if !collectionName.MatchString(q.Collection) || strings.HasPrefix(q.Collection, "system.") {
		return fmt.Errorf("%w: invalid collection %q", ErrInvalidQuery, q.Collection)
	}

	switch q.Operation {
	case OpFind, OpCount:
	case OpAggregate:
		if len(q.Pipeline) == 0 {
			return fmt.Errorf("%w: aggregate requires a pipeline", ErrInvalidQuery)
		}
	case OpDistinct:
		if q.Field == "" {
			return fmt.Errorf("%w: distinct requires a field", ErrInvalidQuery)
		}
	default:
		return fmt.Errorf("%w: unsupported operation %q (use find, aggregate, count or distinct)", ErrInvalidQuery, q.Operation)
	}

	if q.Limit < 0 || q.Skip < 0 {
		return fmt.Errorf("%w: limit and skip must not be negative", ErrInvalidQuery)
	}

	// projections and sorts accept aggregation expressions too
	parts := []any{q.Filter, q.Projection, q.Sort}
	for _, stage := range q.Pipeline {
		parts = append(parts, stage)
	}
	for _, part := range parts {
		if op := findForbidden(part); op != "" {
			return fmt.Errorf("%w: %s", ErrForbiddenOperator, op)
		}
	}
	return nil
}

// EffectiveLimit returns the limit applied to find queries
func (q *Query) EffectiveLimit() int64 {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return min(q.Limit, MaxLimit)
}

// findForbidden walks v and returns the first forbidden operator key
func findForbidden(v any) string {
	switch t := v.(type) {
	case bson.D:
		for _, e := range t {
			if forbidden[strings.ToLower(e.Key)] {
				return e.Key
			}
			if op := findForbidden(e.Value); op != "" {
				return op
			}
		}
	case bson.M:
		for k, val := range t {
			if forbidden[strings.ToLower(k)] {
				return k
			}
			if op := findForbidden(val); op != "" {
				return op
			}
		}
	case bson.A:
		for _, val := range t {
			if op := findForbidden(val); op != "" {
				return op
			}
		}
	case []any:
		for _, val := range t {
			if op := findForbidden(val); op != "" {
				return op
			}
		}
	}
	return ""
}
