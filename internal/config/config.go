package config

import (
	"fmt"
	"runtime"
	"time"
)

// Default configuration values.
const (
	defaultServiceName        = "analyzer"
	defaultServiceVersion     = "1.0.0"
	defaultServicePort        = 8074
	defaultMaxBodyBytes       = 64 << 20
	defaultChunkSize          = 20
	defaultMinTextLength      = 200
	defaultSnippetCapBytes    = 1 << 20
	defaultCorpusPath         = "keywords.yml"
	defaultMaxImages          = 8
	defaultMaxImageBytes      = 2 << 20
	defaultImageFetchTimeout  = 10 * time.Second
	defaultValidationThresh   = 0.55
	defaultValidationCacheMax = 4096
	defaultValidationTimeout  = 5 * time.Second
	defaultFlushBatch         = 50
	defaultFlushInterval      = 2 * time.Second
	defaultFlushTimeout       = 10 * time.Second
	defaultScreenshotWorkers  = 4
	defaultScreenshotMinConf  = 0.7
	defaultScreenshotMatches  = 5
	defaultDLQSweepInterval   = 60 * time.Second
	defaultDLQMaxRetries      = 5
	defaultDLQTTL             = 30 * 24 * time.Hour
	defaultRenderThreshold    = 2
	defaultPolicyCacheTTL     = 30 * time.Second
	defaultDBHost             = "localhost"
	defaultDBPort             = 5432
	defaultDBUser             = "postgres"
	defaultDBName             = "compliance"
	defaultDBSSLMode          = "disable"
	defaultDBMaxConns         = 25
	defaultDBMaxIdleConns     = 5
	defaultRedisAddr          = "localhost:6379"
	defaultESURL              = "http://localhost:9200"
	defaultESResultsIndex     = "analysis-results"
	defaultESMatchesIndex     = "analysis-matches"
	defaultMinIOBucket        = "evidence"
	defaultRenderURL          = "http://localhost:8075"
	defaultRenderTimeout      = 60 * time.Second
	defaultScreenshotTimeout  = 90 * time.Second
	defaultOCRTimeout         = 15 * time.Second
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
)

// Caps applied to core-count scaled sizes.
const (
	pageConcurrencyPerCore = 8
	pageConcurrencyMax     = 50
	hitQueuePerCore        = 500
	hitQueueMax            = 4000
	screenshotQueuePerCore = 125
	screenshotQueueMax     = 1000
	htmlCachePerCore       = 125
	htmlCacheMax           = 1000
)

// Config holds all configuration for the analyzer service.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	ImageScan     ImageScanConfig     `yaml:"image_scan"`
	Rules         RulesConfig         `yaml:"rules"`
	Validation    ValidationConfig    `yaml:"validation"`
	Evidence      EvidenceConfig      `yaml:"evidence"`
	DLQ           DLQConfig           `yaml:"dlq"`
	DomainPolicy  DomainPolicyConfig  `yaml:"domain_policy"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	MinIO         MinIOConfig         `yaml:"minio"`
	Render        RenderConfig        `yaml:"render"`
	OCR           OCRConfig           `yaml:"ocr"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `yaml:"port"  env:"ANALYZER_PORT"`
	Debug   bool   `yaml:"debug" env:"APP_DEBUG"`
}

// IngestConfig bounds the batch ingestion endpoint.
type IngestConfig struct {
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"INGEST_MAX_BODY_BYTES"`
}

// PipelineConfig holds page-pipeline tuning.
type PipelineConfig struct {
	// ChunkSize bounds how many pages of a batch are in flight at once.
	ChunkSize int `yaml:"chunk_size" env:"PIPELINE_CHUNK_SIZE"`
	// MinTextLength is the extracted-text length below which a page with no
	// candidates is considered JS-heavy and eligible for render escalation.
	MinTextLength int `yaml:"min_text_length" env:"PIPELINE_MIN_TEXT_LENGTH"`
	// SnippetCapBytes caps the concatenated snippets kept per task.
	SnippetCapBytes int `yaml:"snippet_cap_bytes"`
}

// ImageScanConfig bounds QR/OCR image scanning.
type ImageScanConfig struct {
	MaxImages     int           `yaml:"max_images"      env:"IMAGE_SCAN_MAX_IMAGES"`
	MaxImageBytes int64         `yaml:"max_image_bytes" env:"IMAGE_SCAN_MAX_BYTES"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
}

// RulesConfig locates the keyword corpus.
type RulesConfig struct {
	CorpusPath string `yaml:"corpus_path" env:"KEYWORDS_FILE"`
}

// ValidationConfig holds the validation gate settings.
type ValidationConfig struct {
	Enabled    bool          `yaml:"enabled"     env:"VALIDATION_ENABLED"`
	ServiceURL string        `yaml:"service_url" env:"NLP_SERVICE_URL"`
	Threshold  float64       `yaml:"threshold"   env:"VALIDATION_THRESHOLD"`
	CacheMax   int           `yaml:"cache_max"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EvidenceConfig holds hit flushing and screenshot capture settings.
type EvidenceConfig struct {
	FlushBatch              int           `yaml:"flush_batch"    env:"EVIDENCE_FLUSH_BATCH"`
	FlushInterval           time.Duration `yaml:"flush_interval" env:"EVIDENCE_FLUSH_INTERVAL"`
	FlushTimeout            time.Duration `yaml:"flush_timeout"`
	ScreenshotWorkers       int           `yaml:"screenshot_workers" env:"SCREENSHOT_WORKERS"`
	ScreenshotMinConfidence float64       `yaml:"screenshot_min_confidence"`
	ScreenshotMaxMatches    int           `yaml:"screenshot_max_matches"`
	ArchiveHTML             bool          `yaml:"archive_html" env:"ARCHIVE_HTML"`
}

// DLQConfig holds dead-letter queue settings.
type DLQConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env:"DLQ_SWEEP_INTERVAL"`
	MaxRetries    int           `yaml:"max_retries"    env:"DLQ_MAX_RETRIES"`
	TTL           time.Duration `yaml:"ttl"`
}

// DomainPolicyConfig holds render-escalation learning settings.
type DomainPolicyConfig struct {
	RenderSuccessThreshold int           `yaml:"render_success_threshold" env:"RENDER_SUCCESS_THRESHOLD"`
	CacheTTL               time.Duration `yaml:"cache_ttl"`
}

// DatabaseConfig holds Postgres configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host"     env:"POSTGRES_HOST"`
	Port            int           `yaml:"port"     env:"POSTGRES_PORT"`
	User            string        `yaml:"user"     env:"POSTGRES_USER"`
	Password        string        `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" env:"POSTGRES_DB"`
	SSLMode         string        `yaml:"sslmode"  env:"POSTGRES_SSLMODE"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `yaml:"address"  env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB"`
}

// ElasticsearchConfig holds the optional search index configuration.
type ElasticsearchConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ELASTICSEARCH_ENABLED"`
	URL          string `yaml:"url"     env:"ELASTICSEARCH_URL"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ResultsIndex string `yaml:"results_index"`
	MatchesIndex string `yaml:"matches_index"`
}

// MinIOConfig holds the optional object store configuration.
type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"    env:"MINIO_ENABLED"`
	Endpoint  string `yaml:"endpoint"   env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	Bucket    string `yaml:"bucket"     env:"MINIO_BUCKET"`
	UseSSL    bool   `yaml:"use_ssl"    env:"MINIO_USE_SSL"`
}

// RenderConfig holds the render microservice client configuration.
type RenderConfig struct {
	URL               string        `yaml:"url" env:"RENDERER_URL"`
	RenderTimeout     time.Duration `yaml:"render_timeout"`
	ScreenshotTimeout time.Duration `yaml:"screenshot_timeout"`
}

// OCRConfig holds the optional OCR sidecar configuration.
type OCRConfig struct {
	Enabled bool          `yaml:"enabled" env:"OCR_ENABLED"`
	URL     string        `yaml:"url"     env:"OCR_SERVICE_URL"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Sizing carries every core-count derived bound, computed once at startup
// and injected. Hot-path code never consults the environment or CPU count.
type Sizing struct {
	// PageConcurrency caps pages processed simultaneously across all tasks.
	PageConcurrency int
	// HitQueueCap bounds the validated-hit queue feeding the DB flusher.
	HitQueueCap int
	// ScreenshotQueueCap bounds the screenshot job queue.
	ScreenshotQueueCap int
	// HTMLCacheCap bounds the rendered/raw HTML LRU cache.
	HTMLCacheCap int
}

// ComputeSizing derives queue and concurrency bounds from the core count.
func ComputeSizing(cores int) Sizing {
	if cores < 1 {
		cores = 1
	}
	return Sizing{
		PageConcurrency:    capped(cores*pageConcurrencyPerCore, pageConcurrencyMax),
		HitQueueCap:        capped(cores*hitQueuePerCore, hitQueueMax),
		ScreenshotQueueCap: capped(cores*screenshotQueuePerCore, screenshotQueueMax),
		HTMLCacheCap:       capped(cores*htmlCachePerCore, htmlCacheMax),
	}
}

// DefaultSizing computes sizing from the detected core count.
func DefaultSizing() Sizing {
	return ComputeSizing(runtime.NumCPU())
}

func capped(n, max int) int {
	if n > max {
		return max
	}
	return n
}

// Load reads the config file at path (if present), applies defaults, then
// applies environment overrides so the environment always wins.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	var cfg Config
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setIngestDefaults(&cfg.Ingest)
	setPipelineDefaults(&cfg.Pipeline)
	setImageScanDefaults(&cfg.ImageScan)
	setRulesDefaults(&cfg.Rules)
	setValidationDefaults(&cfg.Validation)
	setEvidenceDefaults(&cfg.Evidence)
	setDLQDefaults(&cfg.DLQ)
	setDomainPolicyDefaults(&cfg.DomainPolicy)
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	setElasticsearchDefaults(&cfg.Elasticsearch)
	setMinIODefaults(&cfg.MinIO)
	setRenderDefaults(&cfg.Render)
	setOCRDefaults(&cfg.OCR)
	setLoggingDefaults(&cfg.Logging)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
}

func setIngestDefaults(i *IngestConfig) {
	if i.MaxBodyBytes == 0 {
		i.MaxBodyBytes = defaultMaxBodyBytes
	}
}

func setPipelineDefaults(p *PipelineConfig) {
	if p.ChunkSize == 0 {
		p.ChunkSize = defaultChunkSize
	}
	if p.MinTextLength == 0 {
		p.MinTextLength = defaultMinTextLength
	}
	if p.SnippetCapBytes == 0 {
		p.SnippetCapBytes = defaultSnippetCapBytes
	}
}

func setImageScanDefaults(i *ImageScanConfig) {
	if i.MaxImages == 0 {
		i.MaxImages = defaultMaxImages
	}
	if i.MaxImageBytes == 0 {
		i.MaxImageBytes = defaultMaxImageBytes
	}
	if i.FetchTimeout == 0 {
		i.FetchTimeout = defaultImageFetchTimeout
	}
}

func setRulesDefaults(r *RulesConfig) {
	if r.CorpusPath == "" {
		r.CorpusPath = defaultCorpusPath
	}
}

func setValidationDefaults(v *ValidationConfig) {
	if v.Threshold == 0 {
		v.Threshold = defaultValidationThresh
	}
	if v.CacheMax == 0 {
		v.CacheMax = defaultValidationCacheMax
	}
	if v.Timeout == 0 {
		v.Timeout = defaultValidationTimeout
	}
}

func setEvidenceDefaults(e *EvidenceConfig) {
	if e.FlushBatch == 0 {
		e.FlushBatch = defaultFlushBatch
	}
	if e.FlushInterval == 0 {
		e.FlushInterval = defaultFlushInterval
	}
	if e.FlushTimeout == 0 {
		e.FlushTimeout = defaultFlushTimeout
	}
	if e.ScreenshotWorkers == 0 {
		e.ScreenshotWorkers = defaultScreenshotWorkers
	}
	if e.ScreenshotMinConfidence == 0 {
		e.ScreenshotMinConfidence = defaultScreenshotMinConf
	}
	if e.ScreenshotMaxMatches == 0 {
		e.ScreenshotMaxMatches = defaultScreenshotMatches
	}
}

func setDLQDefaults(d *DLQConfig) {
	if d.SweepInterval == 0 {
		d.SweepInterval = defaultDLQSweepInterval
	}
	if d.MaxRetries == 0 {
		d.MaxRetries = defaultDLQMaxRetries
	}
	if d.TTL == 0 {
		d.TTL = defaultDLQTTL
	}
}

func setDomainPolicyDefaults(d *DomainPolicyConfig) {
	if d.RenderSuccessThreshold == 0 {
		d.RenderSuccessThreshold = defaultRenderThreshold
	}
	if d.CacheTTL == 0 {
		d.CacheTTL = defaultPolicyCacheTTL
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Database == "" {
		d.Database = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = time.Hour
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddr
	}
}

func setElasticsearchDefaults(e *ElasticsearchConfig) {
	if e.URL == "" {
		e.URL = defaultESURL
	}
	if e.ResultsIndex == "" {
		e.ResultsIndex = defaultESResultsIndex
	}
	if e.MatchesIndex == "" {
		e.MatchesIndex = defaultESMatchesIndex
	}
}

func setMinIODefaults(m *MinIOConfig) {
	if m.Bucket == "" {
		m.Bucket = defaultMinIOBucket
	}
}

func setRenderDefaults(r *RenderConfig) {
	if r.URL == "" {
		r.URL = defaultRenderURL
	}
	if r.RenderTimeout == 0 {
		r.RenderTimeout = defaultRenderTimeout
	}
	if r.ScreenshotTimeout == 0 {
		r.ScreenshotTimeout = defaultScreenshotTimeout
	}
}

func setOCRDefaults(o *OCRConfig) {
	if o.Timeout == 0 {
		o.Timeout = defaultOCRTimeout
	}
}

func setLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if l.Format == "" {
		l.Format = defaultLogFormat
	}
}
