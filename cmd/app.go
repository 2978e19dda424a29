package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kartoza/kartoza-nl2sql/internal/config"
	"github.com/kartoza/kartoza-nl2sql/internal/history"
	"github.com/kartoza/kartoza-nl2sql/internal/ingest"
	"github.com/kartoza/kartoza-nl2sql/internal/llm"
	"github.com/kartoza/kartoza-nl2sql/internal/logging"
	"github.com/kartoza/kartoza-nl2sql/internal/pipeline"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
	"github.com/kartoza/kartoza-nl2sql/internal/store/mongostore"
	"github.com/kartoza/kartoza-nl2sql/internal/store/sqlstore"
)

// app holds the wired components shared by the commands
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	stores   store.Registry
	chat     llm.Model
	code     llm.Model
	pipeline *pipeline.Pipeline
	ingester *ingest.Ingester
	history  *history.Store

	logCloser io.Closer
}

// appOptions controls how newApp wires the application
type appOptions struct {
	// console receives log output; nil keeps logs to the file only
	console io.Writer
}

// newApp loads the configuration and wires every component. Stores connect
// lazily, so a missing database does not prevent startup.
func newApp(opts appOptions) (*app, error) {
	if err := config.LoadEnvFile(envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, closer, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Console: opts.console,
		NoColor: noColor,
		Dir:     cfg.Log.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	a := &app{cfg: cfg, log: log, logCloser: closer}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	stores, err := buildStores(a.cfg, a.log)
	if err != nil {
		return err
	}
	a.stores = stores

	modelCfg := llm.Config{
		Provider:    a.cfg.Model.Provider,
		BaseURL:     a.cfg.Model.BaseURL,
		APIKey:      a.cfg.Model.APIKey,
		ChatModel:   a.cfg.Model.ChatModel,
		CodeModel:   a.cfg.Model.CodeModel,
		MaxTokens:   a.cfg.Model.MaxTokens,
		Temperature: a.cfg.Model.Temperature,
		Timeout:     a.cfg.Model.Timeout(),
	}
	if a.chat, err = llm.New(modelCfg, llm.Chat); err != nil {
		return fmt.Errorf("chat model: %w", err)
	}
	if a.code, err = llm.New(modelCfg, llm.Code); err != nil {
		return fmt.Errorf("code model: %w", err)
	}

	a.pipeline, err = pipeline.New(pipeline.Config{
		Logger:       a.log,
		Stores:       a.stores,
		ChatModel:    a.chat,
		CodeModel:    a.code,
		MaxAttempts:  a.cfg.Pipeline.MaxAttempts,
		ModelTimeout: a.cfg.Pipeline.ModelTimeout(),
		QueryTimeout: a.cfg.Pipeline.QueryTimeout(),
	})
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	a.ingester = ingest.New(a.stores, a.chat, a.log, a.cfg.Pipeline.ModelTimeout())

	dir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("config dir: %w", err)
	}
	a.history = history.New(dir, a.cfg.Settings.MaxHistorySize)
	return nil
}

// buildStores creates the configured relational and document stores
func buildStores(cfg *config.Config, log *slog.Logger) (store.Registry, error) {
	stores := store.Registry{}

	dsn, err := sqlstore.BuildDSN(sqlstore.Endpoint{
		Driver:   cfg.Relational.Driver,
		Host:     cfg.Relational.Host,
		Port:     cfg.Relational.Port,
		User:     cfg.Relational.User,
		Password: cfg.Relational.Password,
		Database: cfg.Relational.Database,
		Service:  cfg.Relational.Service,
		Path:     cfg.Relational.Path,
		SSLMode:  cfg.Relational.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("relational store: %w", err)
	}
	rel, err := sqlstore.New(sqlstore.Config{Driver: cfg.Relational.Driver, DSN: dsn}, log)
	if err != nil {
		return nil, fmt.Errorf("relational store: %w", err)
	}
	stores[store.Relational] = rel

	if cfg.Document.URI != "" {
		doc, err := mongostore.New(mongostore.Config{
			URI:      cfg.Document.URI,
			Database: cfg.Document.Database,
			User:     cfg.Document.User,
			Password: cfg.Document.Password,
		}, log)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("document store: %w", err)
		}
		stores[store.Document] = doc
	}

	return stores, nil
}

// kind resolves the --store flag, falling back to the configured default
func (a *app) kind() (store.Kind, error) {
	name := storeFlag
	if name == "" {
		name = a.cfg.Settings.DefaultStore
	}
	k, err := store.ParseKind(name)
	if err != nil {
		return "", err
	}
	if _, err := a.stores.Get(k); err != nil {
		return "", err
	}
	return k, nil
}

// Close releases the stores and the log file
func (a *app) Close() error {
	var errs []error
	if a.stores != nil {
		errs = append(errs, a.stores.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}
