// Package config loads NoteMesh configuration from defaults, YAML files,
// an optional .env file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Environment names a deployment stage
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Storage providers
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StorageDynamoDB = "dynamodb"
)

// LLM providers
const (
	LLMGateway = "gateway"
	LLMGemini  = "gemini"
	LLMMock    = "mock"
)

// Config holds all application configuration
type Config struct {
	Environment Environment `yaml:"-"`

	Server     Server     `yaml:"server"`
	Storage    Storage    `yaml:"storage"`
	AWS        AWS        `yaml:"aws"`
	Supabase   Supabase   `yaml:"supabase"`
	Auth       Auth       `yaml:"auth"`
	LLM        LLM        `yaml:"llm"`
	Proxy      Proxy      `yaml:"proxy"`
	Clustering Clustering `yaml:"clustering"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
	CORS       CORS       `yaml:"cors"`
	Logging    Logging    `yaml:"logging"`
	Metrics    Metrics    `yaml:"metrics"`
	Tracing    Tracing    `yaml:"tracing"`

	// LoadedFrom lists the sources applied, lowest priority first
	LoadedFrom []string `yaml:"-"`
}

type Server struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxRequestSize  int64         `yaml:"max_request_size" env:"MAX_REQUEST_SIZE"`
}

// Address returns host:port
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Storage struct {
	Provider   string `yaml:"provider" env:"STORAGE_PROVIDER"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	TableName  string `yaml:"table_name" env:"TABLE_NAME"`
}

type AWS struct {
	Region            string `yaml:"region" env:"AWS_REGION"`
	EventBusName      string `yaml:"event_bus_name" env:"EVENT_BUS_NAME"`
	WebSocketEndpoint string `yaml:"websocket_endpoint" env:"WEBSOCKET_ENDPOINT"`
	MetricsNamespace  string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
}

type Supabase struct {
	URL            string `yaml:"url" env:"SUPABASE_URL"`
	ServiceRoleKey string `yaml:"-" env:"SUPABASE_SERVICE_ROLE_KEY"`
}

type Auth struct {
	Enabled   bool     `yaml:"enabled" env:"ENABLE_AUTH"`
	JWTSecret string   `yaml:"-" env:"JWT_SECRET"`
	JWTIssuer string   `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	Audience  []string `yaml:"audience" env:"JWT_AUDIENCE" envSeparator:","`
}

type LLM struct {
	Provider      string        `yaml:"provider" env:"LLM_PROVIDER"`
	GatewayURL    string        `yaml:"gateway_url" env:"LLM_GATEWAY_URL"`
	GatewayAPIKey string        `yaml:"-" env:"LOVABLE_API_KEY"`
	GeminiAPIKey  string        `yaml:"-" env:"GEMINI_API_KEY"`
	ClusterModel  string        `yaml:"cluster_model" env:"CLUSTER_MODEL"`
	ImproveModel  string        `yaml:"improve_model" env:"IMPROVE_MODEL"`
	Timeout       time.Duration `yaml:"timeout" env:"LLM_TIMEOUT"`
}

// Proxy points the API at deployed cluster-nodes and improve-note functions
// instead of calling the model in-process.
type Proxy struct {
	Enabled bool          `yaml:"enabled" env:"PROXY_ENABLED"`
	BaseURL string        `yaml:"base_url" env:"PROXY_BASE_URL"`
	APIKey  string        `yaml:"-" env:"PROXY_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"PROXY_TIMEOUT"`
}

type Clustering struct {
	DailyLimit int `yaml:"daily_limit" env:"CLUSTER_DAILY_LIMIT"`
}

type RateLimit struct {
	Enabled           bool `yaml:"enabled" env:"ENABLE_RATE_LIMIT"`
	RequestsPerMinute int  `yaml:"requests_per_minute" env:"RATE_LIMIT_RPM"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	MaxAge         int      `yaml:"max_age" env:"CORS_MAX_AGE"`
}

type Logging struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled" env:"ENABLE_METRICS"`
	Path    string `yaml:"path" env:"METRICS_PATH"`
}

type Tracing struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLE_TRACING"`
	Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string  `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	SampleRate  float64 `yaml:"sample_rate" env:"TRACING_SAMPLE_RATE"`
}

// Default returns a configuration that runs locally without any files
func Default(env Environment) *Config {
	return &Config{
		Environment: env,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxRequestSize:  1 << 20,
		},
		Storage: Storage{
			Provider:   StorageMemory,
			SQLitePath: "notemesh.db",
			TableName:  "notemesh-" + string(env),
		},
		AWS: AWS{
			Region:           "us-east-1",
			MetricsNamespace: "NoteMesh",
		},
		Auth: Auth{
			Enabled:  env != Development,
			Audience: []string{"authenticated"},
		},
		LLM: LLM{
			Provider:     LLMMock,
			ClusterModel: "google/gemini-2.5-flash",
			ImproveModel: "gemini-2.5-flash",
			Timeout:      30 * time.Second,
		},
		Proxy:      Proxy{Timeout: 60 * time.Second},
		Clustering: Clustering{DailyLimit: 20},
		RateLimit:  RateLimit{Enabled: true, RequestsPerMinute: 120},
		CORS: CORS{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
			MaxAge:         300,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Metrics: Metrics{Enabled: true, Path: "/metrics"},
		Tracing: Tracing{ServiceName: "notemesh-api", SampleRate: 0.1},
	}
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Storage.Provider {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for sqlite"))
		}
	case StorageDynamoDB:
		if c.Storage.TableName == "" {
			errs = append(errs, errors.New("TABLE_NAME is required for dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage provider %q", c.Storage.Provider))
	}

	switch c.LLM.Provider {
	case LLMMock:
		if c.IsProduction() && !c.Proxy.Enabled {
			errs = append(errs, errors.New("the mock LLM provider is not allowed in production"))
		}
	case LLMGateway:
		if c.IsProduction() && c.LLM.GatewayAPIKey == "" {
			errs = append(errs, errors.New("LOVABLE_API_KEY is required in production"))
		}
	case LLMGemini:
		if c.LLM.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}

	if c.Proxy.Enabled && c.Proxy.BaseURL == "" {
		errs = append(errs, errors.New("PROXY_BASE_URL is required when the proxy is enabled"))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" && c.Supabase.URL == "" {
		errs = append(errs, errors.New("JWT_SECRET or SUPABASE_URL is required when auth is enabled"))
	}
	if c.IsProduction() && !c.Auth.Enabled {
		errs = append(errs, errors.New("auth cannot be disabled in production"))
	}
	if c.Clustering.DailyLimit < 0 {
		errs = append(errs, errors.New("clustering.daily_limit must not be negative"))
	}
	return errors.Join(errs...)
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}
