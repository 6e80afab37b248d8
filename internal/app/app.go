// Package app assembles the pipeline from configuration. Both the server and
// the operator CLI build through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"docxingest/db/migrations"
	"docxingest/internal/attachment"
	"docxingest/internal/config"
	"docxingest/internal/email/noop"
	"docxingest/internal/email/ses"
	"docxingest/internal/events"
	"docxingest/internal/fieldextract"
	"docxingest/internal/ledger"
	"docxingest/internal/logging"
	"docxingest/internal/mailbox/maildir"
	"docxingest/internal/mailbox/s3inbox"
	"docxingest/internal/normalizer"
	"docxingest/internal/ocr"
	"docxingest/internal/parser"
	"docxingest/internal/port"
	"docxingest/internal/repository/firestore"
	"docxingest/internal/repository/redisstore"
	"docxingest/internal/repository/sqlstore"
	"docxingest/internal/service"
	"docxingest/internal/storage"
	s3storage "docxingest/internal/storage/s3"
	"docxingest/internal/upload"
	"docxingest/internal/validator"

	// Field extraction providers register themselves with the parser factory.
	_ "docxingest/internal/parser/claude"
	_ "docxingest/internal/parser/gemini"
	_ "docxingest/internal/parser/openai"
)

// App holds the wired pipeline and the resources it owns.
type App struct {
	Pipeline service.PipelineService
	Ledger   *ledger.Ledger
	Events   *events.Multi
	// Watcher is set when the mailbox supports change notification and
	// mailbox.watch is enabled.
	Watcher port.MailboxWatcher

	closers []io.Closer
}

// Close releases database and client connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Backends are the lazily opened shared connections.
type backends struct {
	cfg   *config.Config
	db    *sqlx.DB
	redis *redis.Client
	app   *App
}

func (b *backends) sql() (*sqlx.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	db, err := sqlstore.NewDB(&b.cfg.DB)
	if err != nil {
		return nil, err
	}
	b.app.closers = append(b.app.closers, db)
	if b.cfg.DB.AutoMigrate {
		if err := migrations.Up(db.DB, b.cfg.DB.Driver); err != nil {
			return nil, err
		}
	}
	b.db = db
	return db, nil
}

func (b *backends) redisClient(ctx context.Context) (*redis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	client, err := redisstore.NewClient(ctx, &b.cfg.Redis)
	if err != nil {
		return nil, err
	}
	b.redis = client
	b.app.closers = append(b.app.closers, client)
	return client, nil
}

// BuildLedger opens only the ledger and event sinks. The CLI uses it for
// read-only commands.
func BuildLedger(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	b := &backends{cfg: cfg, app: a}

	store, err := b.ledgerStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Ledger = ledger.New(store)

	if a.Events, err = b.eventSinks(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Build wires the full pipeline. A configuration the pipeline cannot run
// with is returned as *domain.FatalError by the caller's Validate step;
// Build itself reports connection failures.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := BuildLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b := &backends{cfg: cfg, app: a}
	fail := func(err error) (*App, error) {
		_ = a.Close()
		return nil, err
	}

	mailbox, watcher, err := b.mailbox()
	if err != nil {
		return fail(err)
	}
	a.Watcher = watcher

	objects, err := storage.NewObjectStorage(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("app.Build: object storage: %w", err))
	}

	fe, err := parser.NewFromConfig(&cfg.Parser)
	if err != nil {
		return fail(fmt.Errorf("app.Build: %w", err))
	}
	fields, err := fieldextract.New(fe, fieldextract.Options{
		MaxAttempts:   cfg.Extract.MaxAttempts,
		BackoffBase:   cfg.Extract.BackoffBase,
		BackoffCap:    cfg.Extract.BackoffCap,
		RatePerSecond: cfg.Extract.RatePerSecond,
	})
	if err != nil {
		return fail(fmt.Errorf("app.Build: %w", err))
	}

	notifier, err := newNotifier(&cfg.Email)
	if err != nil {
		return fail(fmt.Errorf("app.Build: notifier: %w", err))
	}

	committer := storage.NewCommitter(objects, cfg.Storage.Bucket, cfg.Upload.Timeout)
	uploader := upload.New(committer, a.Ledger, upload.Options{
		Prefix:              cfg.Storage.Prefix,
		MaxAttempts:         cfg.Upload.MaxAttempts,
		BackoffBase:         cfg.Upload.BackoffBase,
		ConfidenceThreshold: cfg.OCR.LowConfidenceThreshold,
	})

	a.Pipeline = service.NewPipelineService(service.PipelineDeps{
		Mailbox: mailbox,
		Attachments: attachment.New(attachment.Options{
			AllowedMediaTypes: cfg.Mailbox.AllowedMediaTypes,
			SubjectKeywords:   cfg.Mailbox.SubjectKeywords,
			MaxPartBytes:      cfg.Mailbox.MaxMessageSizeMB << 20,
		}),
		Normalizer: normalizer.New(normalizer.Options{MaxPages: cfg.Normalizer.MaxPages}),
		OCR: ocr.NewStage(newRecognizer(&cfg.OCR), ocr.Options{
			Concurrency:            cfg.OCR.PageConcurrency,
			MaxAttempts:            cfg.OCR.MaxAttempts,
			BackoffBase:            cfg.OCR.BackoffBase,
			RatePerSecond:          cfg.OCR.RatePerSecond,
			Timeout:                cfg.OCR.Timeout,
			LowConfidenceThreshold: cfg.OCR.LowConfidenceThreshold,
		}),
		Fields:    fields,
		Validator: validator.NewDefaultEngine(validator.OptionsFromConfig(&cfg.Validation)),
		Uploader:  uploader,
		Ledger:    a.Ledger,
		Events:    a.Events,
		Notifier:  notifier,
	}, service.PipelineConfig{
		Concurrency:    cfg.Pipeline.Concurrency,
		PayloadTimeout: cfg.Pipeline.PayloadTimeout,
		Lookback:       cfg.Mailbox.Lookback,
		ReportEnabled:  cfg.Report.Enabled,
		PresignExpiry:  cfg.Storage.PresignExpiry,
	})

	logging.For("app").Info("pipeline wired",
		"ledger", cfg.Ledger.Driver,
		"mailbox", cfg.Mailbox.Driver,
		"storage", cfg.Storage.Provider,
		"ocr", cfg.OCR.Engine,
		"event_sinks", a.Events.Names(),
	)
	return a, nil
}

func (b *backends) ledgerStore(ctx context.Context) (port.LedgerStore, error) {
	switch b.cfg.Ledger.Driver {
	case "sql":
		db, err := b.sql()
		if err != nil {
			return nil, fmt.Errorf("app: ledger: %w", err)
		}
		return sqlstore.NewLedgerStore(db), nil
	case "redis":
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: ledger: %w", err)
		}
		return redisstore.NewLedgerStore(client, b.cfg.Redis.KeyPrefix), nil
	case "firestore":
		client, err := firestore.NewClient(ctx, b.cfg.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("app: ledger: %w", err)
		}
		b.app.closers = append(b.app.closers, client)
		return firestore.NewLedgerStore(client, b.cfg.Firestore.Collection), nil
	default:
		return nil, fmt.Errorf("app: unknown ledger driver %q", b.cfg.Ledger.Driver)
	}
}

func (b *backends) eventSinks(ctx context.Context) (*events.Multi, error) {
	cfg := &b.cfg.Events
	var sinks []events.NamedSink
	for _, name := range cfg.Sinks {
		var sink port.EventSink
		switch name {
		case "log":
			sink = events.NewLogSink()
		case "memory":
			sink = events.NewMemorySink(cfg.BufferSize)
		case "sql":
			db, err := b.sql()
			if err != nil {
				return nil, fmt.Errorf("app: event sink sql: %w", err)
			}
			sink = sqlstore.NewEventStore(db)
		case "redis":
			client, err := b.redisClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("app: event sink redis: %w", err)
			}
			sink = redisstore.NewEventStream(client, b.cfg.Redis.Stream, b.cfg.Redis.StreamLen)
		case "webhook":
			ws, err := events.NewWebhookSink(cfg.WebhookURL, cfg.Source, cfg.EmitTimeout)
			if err != nil {
				return nil, fmt.Errorf("app: event sink webhook: %w", err)
			}
			sink = ws
		default:
			return nil, fmt.Errorf("app: unknown event sink %q", name)
		}
		sinks = append(sinks, events.NamedSink{Name: name, Sink: sink})
	}
	return events.NewMulti(cfg.EmitTimeout, sinks...), nil
}

func (b *backends) mailbox() (port.Mailbox, port.MailboxWatcher, error) {
	cfg := &b.cfg.Mailbox
	maxBytes := cfg.MaxMessageSizeMB << 20
	switch cfg.Driver {
	case "maildir":
		mb := maildir.New(maildir.Options{Dir: cfg.Dir, MaxMessageBytes: maxBytes})
		if cfg.Watch {
			return mb, mb, nil
		}
		return mb, nil, nil
	case "s3":
		client, err := s3storage.NewAPIClient(&b.cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("app: s3 mailbox: %w", err)
		}
		return s3inbox.New(client, cfg.Bucket, cfg.Prefix, maxBytes), nil, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown mailbox driver %q", cfg.Driver)
	}
}

func newRecognizer(cfg *config.OCRConfig) port.Recognizer {
	tesseract := ocr.NewTesseractRecognizer(nil, ocr.TesseractOptions{
		Binary:   cfg.TesseractPath,
		Language: cfg.Language,
	})
	switch cfg.Engine {
	case "tesseract":
		return tesseract
	case "textlayer":
		return ocr.NewTextLayerRecognizer()
	default:
		return ocr.NewChain(ocr.NewTextLayerRecognizer(), tesseract)
	}
}

func newNotifier(cfg *config.EmailConfig) (port.Notifier, error) {
	switch cfg.Provider {
	case "ses":
		return ses.NewSESSender(cfg.Region, cfg.FromAddress, cfg.FromName, cfg.To)
	default:
		return noop.NewNoopSender(), nil
	}
}
