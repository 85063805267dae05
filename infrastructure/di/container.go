package di

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"notemesh/application/ports"
	"notemesh/application/services"
	"notemesh/infrastructure/config"
	"notemesh/interfaces/http/rest"
	"notemesh/pkg/auth"
	"notemesh/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	LogLevel      zap.AtomicLevel
	Storage       *Storage
	Publisher     ports.EventPublisher
	Notifier      ports.ChangeNotifier
	Collector     *observability.Collector
	Verifier      auth.TokenVerifier
	RateLimiters  *RateLimiters
	CanvasService *services.CanvasService
	NoteService   *services.NoteService
}

// FunctionContainer holds what the cluster-nodes and improve-note Lambdas need
type FunctionContainer struct {
	Config      *config.Config
	Logger      *zap.Logger
	Clustering  *services.ClusteringService
	Improvement *services.ImprovementService
	Tracer      *observability.Tracer
	Metrics     *observability.Metrics
}

// WebSocketContainer holds what the websocket Lambdas need
type WebSocketContainer struct {
	Config      *config.Config
	Logger      *zap.Logger
	AWS         aws.Config
	Verifier    auth.TokenVerifier
	Connections ports.ConnectionRegistry
}

// ApplyConfig takes over the settings that can change without a restart
func (c *Container) ApplyConfig(cfg *config.Config) {
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		c.Logger.Warn("Ignoring invalid log level", zap.String("level", cfg.Logging.Level))
		return
	}
	if level.Level() != c.LogLevel.Level() {
		c.Logger.Info("Log level changed",
			zap.Stringer("from", c.LogLevel.Level()),
			zap.Stringer("to", level.Level()),
		)
		c.LogLevel.SetLevel(level.Level())
	}
}

// RouterOptions builds the HTTP surface options from the wired dependencies
func (c *Container) RouterOptions() rest.Options {
	opts := rest.Options{
		Verifier:       c.Verifier,
		Metrics:        c.Collector,
		MetricsPath:    c.Config.Metrics.Path,
		AllowedOrigins: c.Config.CORS.AllowedOrigins,
		CORSMaxAge:     c.Config.CORS.MaxAge,
		Debug:          c.Config.IsDevelopment(),
	}
	// nil *KeyedLimiter must stay a nil interface
	if c.RateLimiters != nil && c.RateLimiters.User != nil {
		opts.UserLimiter = c.RateLimiters.User
	}
	if c.RateLimiters != nil && c.RateLimiters.IP != nil {
		opts.IPLimiter = c.RateLimiters.IP
	}
	return opts
}

// Handler builds the HTTP handler serving the API
func (c *Container) Handler() http.Handler {
	return rest.NewRouter(c.CanvasService, c.NoteService, c.RouterOptions(), c.Logger).Setup()
}

// RunBackground starts the sweepers of the rate limiters and token cache
func (c *Container) RunBackground(ctx context.Context) {
	if c.RateLimiters != nil {
		for _, l := range []*auth.KeyedLimiter{c.RateLimiters.User, c.RateLimiters.IP} {
			if l != nil {
				go l.Run(ctx)
			}
		}
	}
	if cv, ok := c.Verifier.(*auth.CachingVerifier); ok {
		go cv.Run(ctx)
	}
}
