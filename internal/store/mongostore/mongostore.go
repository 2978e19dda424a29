// Package mongostore implements store.Store for MongoDB. Queries are JSON
// query documents restricted to a read-only operation whitelist.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// Config holds the MongoDB connection settings
type Config struct {
	URI      string
	Database string
	User     string
	Password string
	// SampleSize is the number of documents sampled per collection when
	// describing the schema
	SampleSize      int
	ConnectTimeout  time.Duration
	ConnectAttempts uint64
}

// Store is a document store.Store backed by a lazily connected client
type Store struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	client *mongo.Client
}

var _ store.Store = (*Store)(nil)

// New creates a document store. No connection is made until first use.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb: empty URI")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongodb: database is required")
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 20
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cfg: cfg, log: logger}, nil
}

// Kind reports store.Document
func (s *Store) Kind() store.Kind {
	return store.Document
}

// Dialect returns "MongoDB"
func (s *Store) Dialect() string {
	return "MongoDB"
}

// EnsureConnected connects on first use and pings the primary on every call
func (s *Store) EnsureConnected(ctx context.Context) error {
	_, err := s.database(ctx)
	return err
}

func (s *Store) database(ctx context.Context) (*mongo.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		err := s.client.Ping(ctx, readpref.Primary())
		if err == nil {
			return s.client.Database(s.cfg.Database), nil
		}
		s.log.Warn("mongostore: health check failed, reconnecting", "error", err)
		_ = s.client.Disconnect(context.WithoutCancel(ctx))
		s.client = nil
	}

	opts := options.Client().
		ApplyURI(s.cfg.URI).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetServerSelectionTimeout(s.cfg.ConnectTimeout)
	if s.cfg.User != "" {
		opts.SetAuth(options.Credential{Username: s.cfg.User, Password: s.cfg.Password})
	}

	var client *mongo.Client
	op := func() error {
		c, err := mongo.Connect(ctx, opts)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := c.Ping(ctx, readpref.Primary()); err != nil {
			_ = c.Disconnect(context.WithoutCancel(ctx))
			return err
		}
		client = c
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.ConnectAttempts-1),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		s.log.Warn("mongostore: connect failed, retrying", "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("%w: mongodb: %v", store.ErrNotConnected, err)
	}

	s.log.Info("mongostore: connected", "database", s.cfg.Database)
	s.client = client
	return client.Database(s.cfg.Database), nil
}

// Schema samples documents from every collection and lists the top-level
// fields with their BSON types
func (s *Store) Schema(ctx context.Context) (string, error) {
	db, err := s.database(ctx)
	if err != nil {
		return "", err
	}

	names, err := s.listCollections(ctx, db)
	if err != nil {
		return "", err
	}

	collections := make([]collectionInfo, 0, len(names))
	for _, name := range names {
		sample, err := s.sample(ctx, db.Collection(name))
		if err != nil {
			return "", fmt.Errorf("sample %s: %w", name, err)
		}
		collections = append(collections, describeSample(name, sample))
	}
	return renderSchema(collections), nil
}

func (s *Store) sample(ctx context.Context, coll *mongo.Collection) ([]bson.Raw, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: s.cfg.SampleSize}}}},
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var docs []bson.Raw
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Execute parses query as a JSON query document and runs it
func (s *Store) Execute(ctx context.Context, query string) (*store.Result, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, store.NewExecutionError(query, err, "")
	}

	db, err := s.database(ctx)
	if err != nil {
		return nil, err
	}
	coll := db.Collection(q.Collection)

	result, err := s.run(ctx, coll, q)
	if err != nil {
		return nil, store.NewExecutionError(query, err, errorDetail(err))
	}
	return result, nil
}

func (s *Store) run(ctx context.Context, coll *mongo.Collection, q *Query) (*store.Result, error) {
	filter := q.Filter
	if filter == nil {
		filter = bson.D{}
	}

	switch q.Operation {
	case OpCount:
		n, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &store.Result{
			Kind:    store.Document,
			Columns: []string{"count"},
			Rows:    [][]any{{n}},
			HasRows: true,
		}, nil

	case OpDistinct:
		values, err := coll.Distinct(ctx, q.Field, filter)
		if err != nil {
			return nil, err
		}
		rows := make([][]any, 0, len(values))
		for _, v := range values {
			rows = append(rows, []any{normalize(v)})
		}
		return &store.Result{Kind: store.Document, Columns: []string{q.Field}, Rows: rows, HasRows: true}, nil

	case OpAggregate:
		cursor, err := coll.Aggregate(ctx, mongo.Pipeline(q.Pipeline))
		if err != nil {
			return nil, err
		}
		return materialize(ctx, cursor, MaxLimit)

	default:
		opts := options.Find().SetLimit(q.EffectiveLimit())
		if len(q.Projection) > 0 {
			opts.SetProjection(q.Projection)
		}
		if len(q.Sort) > 0 {
			opts.SetSort(q.Sort)
		}
		if q.Skip > 0 {
			opts.SetSkip(q.Skip)
		}
		cursor, err := coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, err
		}
		return materialize(ctx, cursor, q.EffectiveLimit())
	}
}

// materialize drains up to limit documents into a tabular result whose
// columns are the union of top-level keys in first-seen order
func materialize(ctx context.Context, cursor *mongo.Cursor, limit int64) (*store.Result, error) {
	defer cursor.Close(ctx)

	var docs []bson.D
	for int64(len(docs)) < limit && cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	result := &store.Result{Kind: store.Document, HasRows: true}
	index := make(map[string]int)
	for _, doc := range docs {
		for _, e := range doc {
			if _, ok := index[e.Key]; !ok {
				index[e.Key] = len(result.Columns)
				result.Columns = append(result.Columns, e.Key)
			}
		}
	}

	for _, doc := range docs {
		row := make([]any, len(result.Columns))
		for _, e := range doc {
			row[index[e.Key]] = normalize(e.Value)
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

// ListTables returns the collection names
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	db, err := s.database(ctx)
	if err != nil {
		return nil, err
	}
	return s.listCollections(ctx, db)
}

func (s *Store) listCollections(ctx context.Context, db *mongo.Database) ([]string, error) {
	names, err := db.ListCollectionNames(ctx, bson.D{{Key: "type", Value: "collection"}})
	if err != nil {
		return nil, err
	}
	filtered := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, "system.") {
			continue
		}
		filtered = append(filtered, n)
	}
	slices.Sort(filtered)
	return filtered, nil
}

// CreateTable creates an empty collection. Column definitions are ignored;
// documents carry their own structure.
func (s *Store) CreateTable(ctx context.Context, table string, _ []store.ColumnDef) error {
	db, err := s.database(ctx)
	if err != nil {
		return err
	}
	if err := db.CreateCollection(ctx, table); err != nil {
		var cmdErr mongo.CommandError
		// NamespaceExists
		if errors.As(err, &cmdErr) && cmdErr.Code == 48 {
			return nil
		}
		return err
	}
	return nil
}

// BulkInsert inserts one document per row; nil cells are omitted
func (s *Store) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (store.InsertResult, error) {
	result := store.InsertResult{Operation: "insert", Table: table}

	db, err := s.database(ctx)
	if err != nil {
		return failedInsert(result, err), err
	}

	docs := make([]any, 0, len(rows))
	for _, row := range rows {
		doc := bson.D{}
		for i, col := range columns {
			if i < len(row) && row[i] != nil {
				doc = append(doc, bson.E{Key: col, Value: row[i]})
			}
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		result.Status = "success"
		result.Message = fmt.Sprintf("Successfully inserted 0 rows into %s", table)
		return result, nil
	}

	res, err := db.Collection(table).InsertMany(ctx, docs)
	if err != nil {
		err = store.NewExecutionError("insertMany "+table, err, errorDetail(err))
		return failedInsert(result, err), err
	}

	result.Status = "success"
	result.RowCount = len(res.InsertedIDs)
	result.Message = fmt.Sprintf("Successfully inserted %d rows into %s", result.RowCount, table)
	s.log.Info("mongostore: bulk insert complete", "collection", table, "rows", result.RowCount)
	return result, nil
}

func failedInsert(r store.InsertResult, err error) store.InsertResult {
	r.Status = "error"
	r.Message = fmt.Sprintf("Failed to insert into %s: %v", r.Table, err)
	return r
}

// Close disconnects the shared client
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.client.Disconnect(ctx)
	s.client = nil
	return err
}

// errorDetail extracts the server message from command and write errors
func errorDetail(err error) string {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.Name != "" {
			return fmt.Sprintf("%s (%d): %s", cmdErr.Name, cmdErr.Code, cmdErr.Message)
		}
		return fmt.Sprintf("error %d: %s", cmdErr.Code, cmdErr.Message)
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) && len(writeErr.WriteErrors) > 0 {
		return writeErr.WriteErrors[0].Message
	}
	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) > 0 {
		return bulkErr.WriteErrors[0].Message
	}
	return ""
}
