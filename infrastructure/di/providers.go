package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"notemesh/application/ports"
	"notemesh/application/services"
	"notemesh/infrastructure/config"
	"notemesh/infrastructure/llm"
	"notemesh/infrastructure/messaging/eventbridge"
	"notemesh/infrastructure/messaging/websocket"
	"notemesh/infrastructure/persistence/dynamodb"
	"notemesh/infrastructure/persistence/memory"
	"notemesh/infrastructure/persistence/sqlite"
	"notemesh/infrastructure/proxy"
	"notemesh/pkg/auth"
	"notemesh/pkg/observability"
)

// verifierCacheTTL bounds how long a remotely verified token is trusted
const verifierCacheTTL = time.Minute

// Storage bundles the repositories of one storage provider
type Storage struct {
	Canvases    ports.CanvasRepository
	Notebooks   ports.NotebookRepository
	Usage       ports.UsageTracker
	Connections ports.ConnectionRegistry
}

// ProvideLogLevel creates the adjustable level shared by the logger and the
// config watcher
func ProvideLogLevel(cfg *config.Config) (zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	return level, nil
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = level
	if cfg.Logging.Format != "" {
		zcfg.Encoding = cfg.Logging.Format
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", string(cfg.Environment))), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWS.Region),
	)
}

// ProvideStorage opens the configured storage provider
func ProvideStorage(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (*Storage, func(), error) {
	switch cfg.Storage.Provider {
	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close sqlite store", zap.Error(err))
			}
		}
		logger.Info("Using sqlite storage", zap.String("path", cfg.Storage.SQLitePath))
		return &Storage{
			Canvases:    store,
			Notebooks:   store,
			Usage:       store,
			Connections: memory.NewConnectionRegistry(),
		}, cleanup, nil

	case config.StorageDynamoDB:
		client := awsdynamodb.NewFromConfig(awsCfg)
		table := cfg.Storage.TableName
		logger.Info("Using dynamodb storage", zap.String("table", table))
		return &Storage{
			Canvases:    dynamodb.NewCanvasRepository(client, table, logger),
			Notebooks:   dynamodb.NewNotebookRepository(client, table, logger),
			Usage:       dynamodb.NewUsageTracker(client, table, logger),
			Connections: dynamodb.NewConnectionRegistry(client, table, logger),
		}, func() {}, nil

	case config.StorageMemory, "":
		logger.Info("Using in-memory storage")
		return &Storage{
			Canvases:    memory.NewCanvasRepository(),
			Notebooks:   memory.NewNotebookRepository(),
			Usage:       memory.NewUsageTracker(),
			Connections: memory.NewConnectionRegistry(),
		}, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

// ProvideCanvasRepository extracts the canvas repository
func ProvideCanvasRepository(s *Storage) ports.CanvasRepository { return s.Canvases }

// ProvideNotebookRepository extracts the notebook repository
func ProvideNotebookRepository(s *Storage) ports.NotebookRepository { return s.Notebooks }

// ProvideUsageTracker extracts the usage tracker
func ProvideUsageTracker(s *Storage) ports.UsageTracker { return s.Usage }

// ProvideConnectionRegistry extracts the connection registry
func ProvideConnectionRegistry(s *Storage) ports.ConnectionRegistry { return s.Connections }

// ProvideCollector creates the Prometheus collector, or nil when metrics are off
func ProvideCollector(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector("notemesh")
}

// ProvideEventPublisher creates the EventBridge publisher, or nil when no
// bus is configured
func ProvideEventPublisher(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.AWS.EventBusName == "" {
		return nil
	}
	return eventbridge.NewPublisher(awseventbridge.NewFromConfig(awsCfg), cfg.AWS.EventBusName, logger)
}

// ProvideChangeNotifier pushes canvas changes to websocket clients when an
// endpoint is configured and counts them when metrics are on
func ProvideChangeNotifier(
	cfg *config.Config,
	awsCfg aws.Config,
	connections ports.ConnectionRegistry,
	collector *observability.Collector,
	logger *zap.Logger,
) ports.ChangeNotifier {
	var next ports.ChangeNotifier
	if cfg.AWS.WebSocketEndpoint != "" {
		next = websocket.NewNotifier(websocket.NewClient(awsCfg, cfg.AWS.WebSocketEndpoint), connections, logger)
	}
	if collector == nil {
		return next
	}
	return &meteredNotifier{next: next, collector: collector}
}

// ProvideWebSocketNotifier creates the notifier used by the relay Lambda,
// which cannot run without an endpoint
func ProvideWebSocketNotifier(
	cfg *config.Config,
	awsCfg aws.Config,
	connections ports.ConnectionRegistry,
	logger *zap.Logger,
) (*websocket.Notifier, error) {
	if cfg.AWS.WebSocketEndpoint == "" {
		return nil, fmt.Errorf("WEBSOCKET_ENDPOINT is required")
	}
	return websocket.NewNotifier(websocket.NewClient(awsCfg, cfg.AWS.WebSocketEndpoint), connections, logger), nil
}

// ProvideLLMProvider creates the configured language model provider
func ProvideLLMProvider(ctx context.Context, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) (ports.LLMProvider, error) {
	var provider ports.LLMProvider
	switch cfg.LLM.Provider {
	case config.LLMGateway:
		provider = llm.NewGatewayProvider(llm.GatewayConfig{
			URL:     cfg.LLM.GatewayURL,
			APIKey:  cfg.LLM.GatewayAPIKey,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	case config.LLMGemini:
		gemini, err := llm.NewGeminiProvider(ctx, cfg.LLM.GeminiAPIKey, logger)
		if err != nil {
			return nil, err
		}
		provider = gemini
	case config.LLMMock, "":
		provider = llm.NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	if collector == nil {
		return provider, nil
	}
	return &timedProvider{next: provider, collector: collector}, nil
}

// ProvideClusteringService creates the in-process clustering service
func ProvideClusteringService(cfg *config.Config, provider ports.LLMProvider, usage ports.UsageTracker, logger *zap.Logger) *services.ClusteringService {
	return services.NewClusteringService(provider, usage, cfg.Clustering.DailyLimit, logger).
		WithModel(cfg.LLM.ClusterModel)
}

// ProvideImprovementService creates the in-process improvement service
func ProvideImprovementService(cfg *config.Config, provider ports.LLMProvider, logger *zap.Logger) *services.ImprovementService {
	return services.NewImprovementService(provider, logger).WithModel(cfg.LLM.ImproveModel)
}

// ProvideClusteringProvider calls the deployed cluster-nodes function when
// the proxy is enabled and the model in-process otherwise
func ProvideClusteringProvider(cfg *config.Config, local *services.ClusteringService, logger *zap.Logger) ports.ClusteringProvider {
	if cfg.Proxy.Enabled {
		return proxy.NewClusteringClient(proxyConfig(cfg), logger)
	}
	return local
}

// ProvideNoteImprover mirrors ProvideClusteringProvider for improve-note
func ProvideNoteImprover(cfg *config.Config, local *services.ImprovementService, logger *zap.Logger) ports.NoteImprover {
	if cfg.Proxy.Enabled {
		return proxy.NewImprovementClient(proxyConfig(cfg), logger)
	}
	return local
}

// ProvideTracer creates the X-Ray tracer used by the function Lambdas
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(cfg.Tracing.ServiceName)
}

// ProvideCloudWatchMetrics publishes invocation metrics from the function
// Lambdas; it is a no-op outside AWS
func ProvideCloudWatchMetrics(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) *observability.Metrics {
	if cfg.IsDevelopment() {
		return observability.NewMetrics(cfg.AWS.MetricsNamespace, nil, logger)
	}
	return observability.NewMetrics(cfg.AWS.MetricsNamespace, awscloudwatch.NewFromConfig(awsCfg), logger)
}

func proxyConfig(cfg *config.Config) proxy.Config {
	pc := proxy.DefaultConfig(cfg.Proxy.BaseURL, cfg.Proxy.APIKey)
	if cfg.Proxy.Timeout > 0 {
		pc.Timeout = cfg.Proxy.Timeout
	}
	return pc
}

// ProvideCanvasService creates the canvas service
func ProvideCanvasService(
	repo ports.CanvasRepository,
	clusterer ports.ClusteringProvider,
	publisher ports.EventPublisher,
	notifier ports.ChangeNotifier,
	logger *zap.Logger,
) *services.CanvasService {
	return services.NewCanvasService(repo, clusterer, publisher, notifier, logger)
}

// ProvideNoteService creates the note service
func ProvideNoteService(
	repo ports.NotebookRepository,
	improver ports.NoteImprover,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *services.NoteService {
	return services.NewNoteService(repo, improver, publisher, logger)
}

// ProvideTokenVerifier returns nil when authentication is disabled. A JWT
// secret enables local verification; otherwise tokens are checked against
// Supabase with a short cache.
func ProvideTokenVerifier(cfg *config.Config) (auth.TokenVerifier, error) {
	if !cfg.Auth.Enabled {
		return nil, nil
	}
	if cfg.Auth.JWTSecret != "" {
		return auth.NewJWTValidator(auth.JWTConfig{
			SecretKey: cfg.Auth.JWTSecret,
			Issuer:    cfg.Auth.JWTIssuer,
			Audience:  cfg.Auth.Audience,
			Leeway:    30 * time.Second,
		})
	}
	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceRoleKey != "" {
		verifier, err := auth.NewSupabaseVerifier(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey)
		if err != nil {
			return nil, err
		}
		return auth.NewCachingVerifier(verifier, verifierCacheTTL), nil
	}
	return nil, fmt.Errorf("authentication enabled but neither JWT_SECRET nor Supabase credentials are set")
}

// ProvideRateLimiters returns nil limiters when rate limiting is disabled
func ProvideRateLimiters(cfg *config.Config) *RateLimiters {
	if !cfg.RateLimit.Enabled {
		return &RateLimiters{}
	}
	rpm := cfg.RateLimit.RequestsPerMinute
	return &RateLimiters{
		User: auth.NewUserRateLimiter(rpm),
		IP:   auth.NewIPRateLimiter(rpm * 2),
	}
}

// RateLimiters holds the per-user and per-IP limiters
type RateLimiters struct {
	User *auth.KeyedLimiter
	IP   *auth.KeyedLimiter
}
