package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Firestore  FirestoreConfig  `mapstructure:"firestore"`
	Storage    StorageConfig    `mapstructure:"storage"`
	S3         S3Config         `mapstructure:"s3"`
	GCS        GCSConfig        `mapstructure:"gcs"`
	Mailbox    MailboxConfig    `mapstructure:"mailbox"`
	Normalizer NormalizerConfig `mapstructure:"normalizer"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Parser     ParserConfig     `mapstructure:"parser"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Validation ValidationConfig `mapstructure:"validation"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Events     EventsConfig     `mapstructure:"events"`
	Report     ReportConfig     `mapstructure:"report"`
	Email      EmailConfig      `mapstructure:"email"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LedgerConfig selects the dedup ledger backend.
type LedgerConfig struct {
	// Driver is one of sql, redis, firestore.
	Driver string `mapstructure:"driver"`
}

// DBConfig holds SQL connection settings shared by the ledger and event store.
type DBConfig struct {
	// Driver is sqlite or postgres.
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"name"`
	SSLMode    string `mapstructure:"sslmode"`
	MaxOpen    int    `mapstructure:"max_open"`
	MaxIdle    int    `mapstructure:"max_idle"`

	// AutoMigrate applies pending migrations when the connection opens.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// SQLiteDSN returns the modernc sqlite connection string with WAL and a busy timeout.
func (d *DBConfig) SQLiteDSN() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", d.SQLitePath)
}

// RedisConfig holds settings for the redis ledger store and event stream.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	Stream    string `mapstructure:"stream"`
	StreamLen int64  `mapstructure:"stream_len"`
}

// FirestoreConfig holds settings for the firestore ledger store.
type FirestoreConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	Collection string `mapstructure:"collection"`
}

// StorageConfig selects the archive backend and its layout.
type StorageConfig struct {
	// Provider is s3 or gcs.
	Provider      string `mapstructure:"provider"`
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// S3Config holds AWS S3 settings, used by the archive and the S3 inbox.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// GCSConfig holds Google Cloud Storage settings. Empty values fall back to
// application default credentials and the public endpoint.
type GCSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// MailboxConfig holds message source settings.
type MailboxConfig struct {
	// Driver is maildir or s3.
	Driver            string        `mapstructure:"driver"`
	Dir               string        `mapstructure:"dir"`
	Watch             bool          `mapstructure:"watch"`
	Bucket            string        `mapstructure:"bucket"`
	Prefix            string        `mapstructure:"prefix"`
	Lookback          time.Duration `mapstructure:"lookback"`
	SubjectKeywords   []string      `mapstructure:"subject_keywords"`
	AllowedMediaTypes []string      `mapstructure:"allowed_media_types"`
	MaxMessageSizeMB  int64         `mapstructure:"max_message_size_mb"`
}

// NormalizerConfig holds page rendering limits.
type NormalizerConfig struct {
	MaxPages int `mapstructure:"max_pages"`
}

// OCRConfig holds OCR stage settings.
type OCRConfig struct {
	// Engine is chain, tesseract or textlayer.
	Engine                 string        `mapstructure:"engine"`
	TesseractPath          string        `mapstructure:"tesseract_path"`
	Language               string        `mapstructure:"language"`
	PageConcurrency        int           `mapstructure:"page_concurrency"`
	MaxAttempts            int           `mapstructure:"max_attempts"`
	BackoffBase            time.Duration `mapstructure:"backoff_base"`
	RatePerSecond          float64       `mapstructure:"rate_per_second"`
	Timeout                time.Duration `mapstructure:"timeout"`
	LowConfidenceThreshold float64       `mapstructure:"low_confidence_threshold"`
}

// ParserProviderConfig holds settings for a single LLM field extraction provider.
type ParserProviderConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
}

// ParserConfig holds LLM provider settings with fallback support.
type ParserConfig struct {
	Primary   ParserProviderConfig `mapstructure:"primary"`
	Secondary ParserProviderConfig `mapstructure:"secondary"`
	Tertiary  ParserProviderConfig `mapstructure:"tertiary"`
}

// PrimaryConfig returns the primary provider config.
func (p *ParserConfig) PrimaryConfig() *ParserProviderConfig {
	return &p.Primary
}

// SecondaryConfig returns the secondary provider config, or nil if not configured.
func (p *ParserConfig) SecondaryConfig() *ParserProviderConfig {
	if p.Secondary.Provider != "" {
		return &p.Secondary
	}
	return nil
}

// TertiaryConfig returns the tertiary provider config, or nil if not configured.
func (p *ParserConfig) TertiaryConfig() *ParserProviderConfig {
	if p.Tertiary.Provider != "" {
		return &p.Tertiary
	}
	return nil
}

// Providers returns the configured providers in fallback order.
func (p *ParserConfig) Providers() []*ParserProviderConfig {
	out := []*ParserProviderConfig{p.PrimaryConfig()}
	if s := p.SecondaryConfig(); s != nil {
		out = append(out, s)
	}
	if t := p.TertiaryConfig(); t != nil {
		out = append(out, t)
	}
	return out
}

// ExtractConfig holds field extraction retry settings.
type ExtractConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffCap    time.Duration `mapstructure:"backoff_cap"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

// ValidationConfig holds validator thresholds.
type ValidationConfig struct {
	TotalTolerance  float64       `mapstructure:"total_tolerance"`
	MaxAge          time.Duration `mapstructure:"max_age"`
	MaxFuture       time.Duration `mapstructure:"max_future"`
	ExtraCurrencies []string      `mapstructure:"extra_currencies"`
}

// UploadConfig holds commit retry settings.
type UploadConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds coordinator settings.
type PipelineConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PayloadTimeout time.Duration `mapstructure:"payload_timeout"`
	RunOnStart     bool          `mapstructure:"run_on_start"`
}

// EventsConfig selects the event sinks.
type EventsConfig struct {
	// Sinks is a list of log, memory, sql, redis, webhook.
	Sinks       []string      `mapstructure:"sinks"`
	WebhookURL  string        `mapstructure:"webhook_url"`
	Source      string        `mapstructure:"source"`
	BufferSize  int           `mapstructure:"buffer_size"`
	EmitTimeout time.Duration `mapstructure:"emit_timeout"`
}

// ReportConfig controls the per-batch CSV and XLSX report.
type ReportConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// EmailConfig holds notification delivery settings.
type EmailConfig struct {
	Provider    string   `mapstructure:"provider"`
	Region      string   `mapstructure:"region"`
	FromAddress string   `mapstructure:"from_address"`
	FromName    string   `mapstructure:"from_name"`
	To          []string `mapstructure:"to"`
}

// JWTConfig holds operator token signing settings.
type JWTConfig struct {
	Secret            string        `mapstructure:"secret"`
	AccessTokenExpiry time.Duration `mapstructure:"access_expiry"`
	Issuer            string        `mapstructure:"issuer"`
}

// AuthConfig holds the operator credential. OperatorKeyHash is a bcrypt hash.
type AuthConfig struct {
	OperatorKeyHash string `mapstructure:"operator_key_hash"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

const envPrefix = "DOCX"

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("ledger.driver", "sql")

	// DB defaults
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.sqlite_path", "docxingest.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "docxingest")
	v.SetDefault("db.password", "docxingest_secret")
	v.SetDefault("db.name", "docxingest")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 10)
	v.SetDefault("db.max_idle", 5)
	v.SetDefault("db.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "docxingest:ledger:")
	v.SetDefault("redis.stream", "docxingest:events")
	v.SetDefault("redis.stream_len", 10000)

	v.SetDefault("firestore.project_id", "")
	v.SetDefault("firestore.collection", "ledger")

	// Storage defaults
	v.SetDefault("storage.provider", "s3")
	v.SetDefault("storage.bucket", "docxingest-archive")
	v.SetDefault("storage.prefix", "invoices")
	v.SetDefault("storage.presign_expiry", 86400)

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")

	v.SetDefault("gcs.endpoint", "")
	v.SetDefault("gcs.credentials_file", "")

	// Mailbox defaults
	v.SetDefault("mailbox.driver", "maildir")
	v.SetDefault("mailbox.dir", "./mail")
	v.SetDefault("mailbox.watch", true)
	v.SetDefault("mailbox.bucket", "")
	v.SetDefault("mailbox.prefix", "inbound/")
	v.SetDefault("mailbox.lookback", "72h")
	v.SetDefault("mailbox.subject_keywords", "insurance,policy,premium,claim,renewal,invoice")
	v.SetDefault("mailbox.allowed_media_types", "application/pdf,image/jpeg,image/png,image/tiff")
	v.SetDefault("mailbox.max_message_size_mb", 25)

	v.SetDefault("normalizer.max_pages", 50)

	// OCR defaults
	v.SetDefault("ocr.engine", "chain")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.page_concurrency", 4)
	v.SetDefault("ocr.max_attempts", 3)
	v.SetDefault("ocr.backoff_base", "500ms")
	v.SetDefault("ocr.rate_per_second", 10.0)
	v.SetDefault("ocr.timeout", "60s")
	v.SetDefault("ocr.low_confidence_threshold", 0.5)

	// Parser defaults
	v.SetDefault("parser.primary.provider", "claude")
	v.SetDefault("parser.primary.api_key", "")
	v.SetDefault("parser.primary.default_model", "")
	v.SetDefault("parser.primary.timeout_secs", 120)
	v.SetDefault("parser.secondary.provider", "")
	v.SetDefault("parser.secondary.api_key", "")
	v.SetDefault("parser.secondary.default_model", "")
	v.SetDefault("parser.secondary.timeout_secs", 120)
	v.SetDefault("parser.tertiary.provider", "")
	v.SetDefault("parser.tertiary.api_key", "")
	v.SetDefault("parser.tertiary.default_model", "")
	v.SetDefault("parser.tertiary.timeout_secs", 120)

	v.SetDefault("extract.max_attempts", 4)
	v.SetDefault("extract.backoff_base", "1s")
	v.SetDefault("extract.backoff_cap", "30s")
	v.SetDefault("extract.rate_per_second", 2.0)

	v.SetDefault("validation.total_tolerance", 0.02)
	v.SetDefault("validation.max_age", "8760h")
	v.SetDefault("validation.max_future", "720h")
	v.SetDefault("validation.extra_currencies", "")

	v.SetDefault("upload.max_attempts", 3)
	v.SetDefault("upload.backoff_base", "1s")
	v.SetDefault("upload.timeout", "60s")

	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.poll_interval", "5m")
	v.SetDefault("pipeline.payload_timeout", "10m")
	v.SetDefault("pipeline.run_on_start", true)

	v.SetDefault("events.sinks", "log,memory")
	v.SetDefault("events.webhook_url", "")
	v.SetDefault("events.source", "docxingest/pipeline")
	v.SetDefault("events.buffer_size", 1000)
	v.SetDefault("events.emit_timeout", "5s")

	v.SetDefault("report.enabled", true)

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "us-east-1")
	v.SetDefault("email.from_address", "noreply@docxingest.local")
	v.SetDefault("email.from_name", "Invoice Ingestion")
	v.SetDefault("email.to", "")

	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.access_expiry", "1h")
	v.SetDefault("jwt.issuer", "docxingest")

	v.SetDefault("auth.operator_key_hash", "")

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")
}

// Load reads configuration from defaults, an optional YAML file named by
// DOCX_CONFIG_FILE, and environment variables with the DOCX_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := os.Getenv(envPrefix + "_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load: reading %s: %w", path, err)
		}
	}

	// Bind environment variables explicitly for nested keys
	for _, key := range v.AllKeys() {
		env := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	// Railway/Heroku/Render set a PORT env var. Use it if DOCX_SERVER_PORT is not explicitly set.
	if port := os.Getenv("PORT"); port != "" && os.Getenv("DOCX_SERVER_PORT") == "" {
		cfg.Server.Port = ":" + port
	}

	cfg.Mailbox.SubjectKeywords = splitList(cfg.Mailbox.SubjectKeywords)
	cfg.Mailbox.AllowedMediaTypes = splitList(cfg.Mailbox.AllowedMediaTypes)
	cfg.Validation.ExtraCurrencies = splitList(cfg.Validation.ExtraCurrencies)
	cfg.Events.Sinks = splitList(cfg.Events.Sinks)
	cfg.Email.To = splitList(cfg.Email.To)
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)

	return cfg, nil
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, s := range strings.Split(item, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Validate reports configuration that would make the pipeline unable to run.
func (c *Config) Validate() error {
	var errs []error

	switch c.Ledger.Driver {
	case "sql", "redis", "firestore":
	default:
		errs = append(errs, fmt.Errorf("ledger.driver %q is not one of sql, redis, firestore", c.Ledger.Driver))
	}
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not one of sqlite, postgres", c.DB.Driver))
	}
	if c.Ledger.Driver == "firestore" && c.Firestore.ProjectID == "" {
		errs = append(errs, errors.New("firestore.project_id is required for the firestore ledger"))
	}
	switch c.Storage.Provider {
	case "s3", "gcs":
	default:
		errs = append(errs, fmt.Errorf("storage.provider %q is not one of s3, gcs", c.Storage.Provider))
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required"))
	}
	switch c.Mailbox.Driver {
	case "maildir":
		if c.Mailbox.Dir == "" {
			errs = append(errs, errors.New("mailbox.dir is required for the maildir mailbox"))
		}
	case "s3":
		if c.Mailbox.Bucket == "" {
			errs = append(errs, errors.New("mailbox.bucket is required for the s3 mailbox"))
		}
	default:
		errs = append(errs, fmt.Errorf("mailbox.driver %q is not one of maildir, s3", c.Mailbox.Driver))
	}
	switch c.OCR.Engine {
	case "chain", "tesseract", "textlayer":
	default:
		errs = append(errs, fmt.Errorf("ocr.engine %q is not one of chain, tesseract, textlayer", c.OCR.Engine))
	}
	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, errors.New("pipeline.concurrency must be at least 1"))
	}
	if c.OCR.PageConcurrency < 1 {
		errs = append(errs, errors.New("ocr.page_concurrency must be at least 1"))
	}
	if c.OCR.MaxAttempts < 1 || c.Extract.MaxAttempts < 1 || c.Upload.MaxAttempts < 1 {
		errs = append(errs, errors.New("ocr, extract and upload max_attempts must be at least 1"))
	}
	if c.Validation.TotalTolerance < 0 {
		errs = append(errs, errors.New("validation.total_tolerance must not be negative"))
	}
	if c.Normalizer.MaxPages < 1 {
		errs = append(errs, errors.New("normalizer.max_pages must be at least 1"))
	}
	if c.Parser.Primary.Provider == "" {
		errs = append(errs, errors.New("parser.primary.provider is required"))
	}
	for _, sink := range c.Events.Sinks {
		switch sink {
		case "log", "memory", "sql", "redis":
		case "webhook":
			if c.Events.WebhookURL == "" {
				errs = append(errs, errors.New("events.webhook_url is required for the webhook sink"))
			}
		default:
			errs = append(errs, fmt.Errorf("events sink %q is unknown", sink))
		}
	}

	return errors.Join(errs...)
}
