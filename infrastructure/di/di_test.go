package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"notemesh/application/ports"
	"notemesh/domain/canvas"
	"notemesh/infrastructure/config"
	"notemesh/infrastructure/persistence/sqlite"
	"notemesh/pkg/auth"
	"notemesh/pkg/observability"
)

func TestInitializeContainer_Development(t *testing.T) {
	cfg := config.Default(config.Development)
	cfg.Logging.Format = "console"

	c, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, c.Verifier, "auth is off in development")
	assert.Nil(t, c.Publisher)
	assert.NotNil(t, c.Collector)
	assert.NotNil(t, c.RateLimiters.User)

	view, err := c.CanvasService.Open(context.Background(), "u1", "")
	require.NoError(t, err)
	_, err = c.CanvasService.SubmitChat(context.Background(), "u1", view.Canvas.ID, "hello #greeting")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Collector.CanvasMutations.WithLabelValues(string(canvas.EventNodeAdded))))

	updated := config.Default(config.Development)
	updated.Logging.Level = "debug"
	c.ApplyConfig(updated)
	assert.Equal(t, zapcore.DebugLevel, c.LogLevel.Level())
}

func TestInitializeContainer_RejectsUnknownStorage(t *testing.T) {
	cfg := config.Default(config.Development)
	cfg.Storage.Provider = "floppy"

	_, _, err := InitializeContainer(context.Background(), cfg)
	assert.ErrorContains(t, err, "floppy")
}

func TestProvideStorage_SQLite(t *testing.T) {
	cfg := config.Default(config.Development)
	cfg.Storage.Provider = config.StorageSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "notemesh.db")

	s, cleanup, err := ProvideStorage(context.Background(), cfg, awsConfigForTest(), zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	_, ok := s.Canvases.(*sqlite.Store)
	assert.True(t, ok)
	assert.Same(t, s.Canvases, s.Notebooks)
}

func TestProvideTokenVerifier(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantNil bool
		wantErr bool
		check   func(t *testing.T, v auth.TokenVerifier)
	}{
		{
			name:    "disabled",
			mutate:  func(c *config.Config) { c.Auth.Enabled = false },
			wantNil: true,
		},
		{
			name: "jwt secret",
			mutate: func(c *config.Config) {
				c.Auth.Enabled = true
				c.Auth.JWTSecret = "secret"
			},
			check: func(t *testing.T, v auth.TokenVerifier) {
				_, ok := v.(*auth.JWTValidator)
				assert.True(t, ok)
			},
		},
		{
			name: "supabase",
			mutate: func(c *config.Config) {
				c.Auth.Enabled = true
				c.Supabase.URL = "https://project.supabase.co"
				c.Supabase.ServiceRoleKey = "service-role"
			},
			check: func(t *testing.T, v auth.TokenVerifier) {
				_, ok := v.(*auth.CachingVerifier)
				assert.True(t, ok)
			},
		},
		{
			name:    "enabled without credentials",
			mutate:  func(c *config.Config) { c.Auth.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default(config.Development)
			tt.mutate(cfg)
			v, err := ProvideTokenVerifier(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, v)
				return
			}
			tt.check(t, v)
		})
	}
}

type stubLLM struct{}

func (stubLLM) Name() string { return "stub" }

func (stubLLM) Complete(context.Context, string, ports.CompletionOptions) (string, error) {
	return "ok", nil
}

func TestTimedProvider(t *testing.T) {
	collector := observability.NewCollector("notemesh")
	p := &timedProvider{next: stubLLM{}, collector: collector}

	out, err := p.Complete(context.Background(), "prompt", ports.CompletionOptions{Operation: "cluster"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "stub", p.Name())
	assert.Equal(t, 1, testutil.CollectAndCount(collector.LLMDuration))
}

func awsConfigForTest() aws.Config {
	return aws.Config{Region: "us-east-1"}
}

func TestInitializeFunctionContainer(t *testing.T) {
	cfg := config.Default(config.Development)
	cfg.Logging.Format = "console"

	fc, cleanup, err := InitializeFunctionContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, fc.Tracer)
	assert.NotNil(t, fc.Metrics)

	improved, err := fc.Improvement.ImproveNote(context.Background(), "first idea. second idea.")
	require.NoError(t, err)
	assert.NotEmpty(t, improved)
}

func TestContainer_RouterOptions(t *testing.T) {
	cfg := config.Default(config.Development)
	cfg.RateLimit.Enabled = false
	cfg.Logging.Format = "console"

	c, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	opts := c.RouterOptions()
	assert.Nil(t, opts.UserLimiter)
	assert.Nil(t, opts.IPLimiter)
	assert.True(t, opts.Debug)
	assert.NotNil(t, c.Handler())
}
