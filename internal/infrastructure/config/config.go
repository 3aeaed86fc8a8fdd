package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Log         LogConfig
	HTTP        HTTPConfig
	DICOMweb    DICOMwebConfig
	Viewer      ViewerConfig
	Annotations []AnnotationRecord
	Redis       RedisConfig
	Session     SessionConfig
	Storage     StorageConfig
	Auth        AuthConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64 // STOW uploads
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	ProxyEnabled      bool // expose the archive under /dicomweb
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// DICOMwebConfig holds the archives the viewer talks to.
type DICOMwebConfig struct {
	// BaseURI resolves servers configured by path only.
	BaseURI string
	// URL configures a single server when no servers are listed.
	URL     string
	Timeout time.Duration
	Servers []ServerRecord
}

// ServerRecord is one [[dicomweb.servers]] entry.
type ServerRecord struct {
	ID             string   `mapstructure:"id" validate:"required"`
	URL            string   `mapstructure:"url" validate:"required_without=Path,omitempty,url"`
	Path           string   `mapstructure:"path" validate:"required_without=URL,omitempty,startswith=/"`
	QidoPathPrefix string   `mapstructure:"qido_path_prefix"`
	WadoPathPrefix string   `mapstructure:"wado_path_prefix"`
	StowPathPrefix string   `mapstructure:"stow_path_prefix"`
	StorageClasses []string `mapstructure:"storage_classes" validate:"omitempty,dive,required"`
	Read           *bool    `mapstructure:"read"`
	Write          *bool    `mapstructure:"write"`
}

// Settings converts the record into adapter settings.
func (r ServerRecord) Settings() dicomweb.ServerSettings {
	return dicomweb.ServerSettings{
		ID:             r.ID,
		URL:            r.URL,
		Path:           r.Path,
		QidoPathPrefix: r.QidoPathPrefix,
		WadoPathPrefix: r.WadoPathPrefix,
		StowPathPrefix: r.StowPathPrefix,
		StorageClasses: r.StorageClasses,
		Read:           r.Read,
		Write:          r.Write,
	}
}

// CodeRecord is a coded concept in the annotation configuration.
type CodeRecord struct {
	Value            string `mapstructure:"value" validate:"required"`
	SchemeDesignator string `mapstructure:"scheme_designator" validate:"required"`
	SchemeVersion    string `mapstructure:"scheme_version"`
	Meaning          string `mapstructure:"meaning" validate:"required"`
}

func (r CodeRecord) concept() viewer.CodedConcept {
	return viewer.CodedConcept{
		CodeValue:              r.Value,
		CodingSchemeDesignator: r.SchemeDesignator,
		CodingSchemeVersion:    r.SchemeVersion,
		CodeMeaning:            r.Meaning,
	}
}

// EvaluationRecord is a question with its allowed answers.
type EvaluationRecord struct {
	Name   CodeRecord   `mapstructure:"name"`
	Values []CodeRecord `mapstructure:"values" validate:"min=1,dive"`
}

// MeasurementRecord is a measurement with its unit.
type MeasurementRecord struct {
	Name CodeRecord `mapstructure:"name"`
	Unit CodeRecord `mapstructure:"unit"`
}

// StrokeRecord overrides the ROI outline.
type StrokeRecord struct {
	Color []float64 `mapstructure:"color" validate:"omitempty,min=3,max=4,dive,gte=0,lte=255"`
	Width *float64  `mapstructure:"width" validate:"omitempty,gt=0"`
}

// FillRecord overrides the ROI interior.
type FillRecord struct {
	Color []float64 `mapstructure:"color" validate:"omitempty,min=3,max=4,dive,gte=0,lte=255"`
}

// StyleRecord is the ROI style of a finding.
type StyleRecord struct {
	Stroke *StrokeRecord `mapstructure:"stroke"`
	Fill   *FillRecord   `mapstructure:"fill"`
	Radius *float64      `mapstructure:"radius" validate:"omitempty,gt=0"`
}

// AnnotationRecord is one [[annotations]] entry.
type AnnotationRecord struct {
	Finding       CodeRecord          `mapstructure:"finding"`
	GeometryTypes []string            `mapstructure:"geometry_types" validate:"omitempty,dive,oneof=point circle box polygon line freehandpolygon freehandline"`
	Evaluations   []EvaluationRecord  `mapstructure:"evaluations" validate:"omitempty,dive"`
	Measurements  []MeasurementRecord `mapstructure:"measurements" validate:"omitempty,dive"`
	Style         *StyleRecord        `mapstructure:"style"`
}

// AnnotationConfig converts the record into the viewer's annotation config.
func (r AnnotationRecord) AnnotationConfig() viewer.AnnotationConfig {
	cfg := viewer.AnnotationConfig{Finding: r.Finding.concept()}
	for _, g := range r.GeometryTypes {
		cfg.GeometryTypes = append(cfg.GeometryTypes, viewer.GeometryType(g))
	}
	for _, e := range r.Evaluations {
		evaluation := viewer.EvaluationConfig{Name: e.Name.concept()}
		for _, v := range e.Values {
			evaluation.Values = append(evaluation.Values, v.concept())
		}
		cfg.Evaluations = append(cfg.Evaluations, evaluation)
	}
	for _, m := range r.Measurements {
		cfg.Measurements = append(cfg.Measurements, viewer.MeasurementConfig{
			Name: m.Name.concept(),
			Unit: m.Unit.concept(),
		})
	}
	if r.Style != nil {
		style := &viewer.StyleConfig{Radius: r.Style.Radius}
		if r.Style.Stroke != nil {
			style.Stroke = &viewer.StrokeConfig{Color: r.Style.Stroke.Color, Width: r.Style.Stroke.Width}
		}
		if r.Style.Fill != nil {
			style.Fill = &viewer.FillConfig{Color: r.Style.Fill.Color}
		}
		cfg.Style = style
	}
	return cfg
}

// ViewerConfig holds slide viewer settings
type ViewerConfig struct {
	Preload    bool          // preload tiles of lower pyramid levels
	SessionTTL time.Duration // lifetime of an idle viewer session
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address of the Redis server.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SessionConfig selects the viewer session store
type SessionConfig struct {
	Store            string // memory, redis
	FallbackToMemory bool   // use memory when redis is unreachable
	KeyPrefix        string
	CleanupInterval  time.Duration
}

// StorageConfig holds object storage settings for manifest export
type StorageConfig struct {
	Enabled         bool
	Endpoint        string // empty = AWS
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool // required by MinIO
	Prefix          string
	PresignExpiry   time.Duration
}

// AuthConfig holds access token verification settings
type AuthConfig struct {
	Enabled bool
	Secret  string
	Issuer  string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool   // export zap entries through the OTLP log bridge
	ProfilingEnabled  bool   // push profiles to Pyroscope
	ProfilingAddress  string // Pyroscope server, e.g. "http://pyroscope:4040"
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with WSI_ prefix (e.g., WSI_DICOMWEB_URL)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/wsiviewer")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return load(v)
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("WSI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			ProxyEnabled:      v.GetBool("http.proxy_enabled"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		DICOMweb: DICOMwebConfig{
			BaseURI: v.GetString("dicomweb.base_uri"),
			URL:     v.GetString("dicomweb.url"),
			Timeout: v.GetDuration("dicomweb.timeout"),
		},
		Viewer: ViewerConfig{
			Preload:    v.GetBool("viewer.preload"),
			SessionTTL: v.GetDuration("viewer.session_ttl"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Session: SessionConfig{
			Store:            v.GetString("session.store"),
			FallbackToMemory: v.GetBool("session.fallback_to_memory"),
			KeyPrefix:        v.GetString("session.key_prefix"),
			CleanupInterval:  v.GetDuration("session.cleanup_interval"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			Prefix:          v.GetString("storage.prefix"),
			PresignExpiry:   v.GetDuration("storage.presign_expiry"),
		},
		Auth: AuthConfig{
			Enabled: v.GetBool("auth.enabled"),
			Secret:  v.GetString("auth.secret"),
			Issuer:  v.GetString("auth.issuer"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingAddress:  v.GetString("telemetry.profiling_address"),
		},
	}

	if err := v.UnmarshalKey("dicomweb.servers", &cfg.DICOMweb.Servers); err != nil {
		return nil, fmt.Errorf("error decoding dicomweb.servers: %w", err)
	}
	if err := v.UnmarshalKey("annotations", &cfg.Annotations); err != nil {
		return nil, fmt.Errorf("error decoding annotations: %w", err)
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "wsi-viewer"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 120 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 512 << 20 // 512MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 600
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// An empty origin list allows no cross-origin requests.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "Accept", "X-Request-ID"}
	}
	if cfg.DICOMweb.BaseURI == "" {
		cfg.DICOMweb.BaseURI = "http://localhost:" + cfg.App.Port
	}
	if cfg.DICOMweb.Timeout == 0 {
		cfg.DICOMweb.Timeout = dicomweb.DefaultTimeout
	}
	if len(cfg.DICOMweb.Servers) == 0 && cfg.DICOMweb.URL != "" {
		cfg.DICOMweb.Servers = []ServerRecord{{ID: "default", URL: cfg.DICOMweb.URL}}
	}
	if cfg.Viewer.SessionTTL == 0 {
		cfg.Viewer.SessionTTL = 2 * time.Hour
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = "wsi:session:"
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = 5 * time.Minute
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "manifests/"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 15 * time.Minute
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "wsi-viewer"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "wsi-viewer"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
}

var recordValidator = validator.New()

// validate performs validation on the configuration
func (c *Config) validate() error {
	if len(c.DICOMweb.Servers) == 0 {
		return errors.New("dicomweb: at least one server needs to be configured (dicomweb.url or [[dicomweb.servers]])")
	}
	for i, server := range c.DICOMweb.Servers {
		if err := recordValidator.Struct(server); err != nil {
			return fmt.Errorf("dicomweb.servers[%d]: %w", i, err)
		}
	}
	if err := recordValidator.Var(c.DICOMweb.Servers, "unique=ID"); err != nil {
		return errors.New("dicomweb.servers: server ids must be unique")
	}
	for i, annotation := range c.Annotations {
		if err := recordValidator.Struct(annotation); err != nil {
			return fmt.Errorf("annotations[%d]: %w", i, err)
		}
	}

	if err := recordValidator.Var(c.Session.Store, "oneof=memory redis"); err != nil {
		return fmt.Errorf("session.store must be one of memory, redis, got %q", c.Session.Store)
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required when auth is enabled")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Auth.Enabled && len(c.Auth.Secret) < 32 {
			return fmt.Errorf("auth.secret must be at least 32 characters in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.HTTP.ProxyEnabled {
			return fmt.Errorf("http.proxy_enabled must be false in production")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled {
		if err := recordValidator.Var(c.Telemetry.ProfilingAddress, "required,url"); err != nil {
			return fmt.Errorf("telemetry.profiling_address must be a URL when profiling is enabled")
		}
	}

	return nil
}

// ServerSettings returns the adapter settings of every configured archive.
func (c *Config) ServerSettings() []dicomweb.ServerSettings {
	settings := make([]dicomweb.ServerSettings, 0, len(c.DICOMweb.Servers))
	for _, server := range c.DICOMweb.Servers {
		settings = append(settings, server.Settings())
	}
	return settings
}

// AnnotationConfigs returns the annotation configuration of every finding.
func (c *Config) AnnotationConfigs() []viewer.AnnotationConfig {
	configs := make([]viewer.AnnotationConfig, 0, len(c.Annotations))
	for _, annotation := range c.Annotations {
		configs = append(configs, annotation.AnnotationConfig())
	}
	return configs
}
