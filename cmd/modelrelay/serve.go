package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/modelrelay/modelrelay/pkg/clients"
	"github.com/modelrelay/modelrelay/pkg/config"
	"github.com/modelrelay/modelrelay/pkg/logger"
	"github.com/modelrelay/modelrelay/pkg/logstore"
	"github.com/modelrelay/modelrelay/pkg/observability"
	"github.com/modelrelay/modelrelay/pkg/pipeline"
	"github.com/modelrelay/modelrelay/pkg/providers"
	"github.com/modelrelay/modelrelay/pkg/router"
	"github.com/modelrelay/modelrelay/pkg/server"
	"github.com/modelrelay/modelrelay/pkg/sigcache"
	"github.com/modelrelay/modelrelay/pkg/transform"
)

// ServeCmd starts the proxy server.
type ServeCmd struct {
	Watch bool `help:"Reload model routes when the config file changes." default:"true" negatable:""`
}

func (c *ServeCmd) Run(cli *CLI, ctx context.Context) error {
	if err := config.LoadEnvFiles(); err != nil {
		return err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.GetLogger()

	clientRegistry := clients.NewRegistry()
	if err := clientRegistry.RegisterDefaults(); err != nil {
		return err
	}
	providerRegistry := buildProviders(cfg.Providers)

	if err := os.MkdirAll(filepath.Dir(cfg.Sigcache.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create sigcache dir: %w", err)
	}
	signatures, err := sigcache.Open(cfg.Sigcache.Path)
	if err != nil {
		return err
	}
	defer signatures.Close()

	transforms := transform.NewRegistry(
		transform.NewClampMaxTokens(),
		transform.NewRestoreThoughtSignatures(signatures),
		transform.NewEnsureToolCallRequest(),
		transform.NewKimiResponse(),
		transform.NewCleanupExtraProperties(),
		transform.NewExtractThoughtSignatures(signatures),
		transform.NewValidateToolArguments(),
		transform.NewEnsureToolCallResponse(),
	)

	rt := router.New(cfg.Models)
	controller := pipeline.NewController(clientRegistry, providerRegistry, rt, transforms, log)

	var store *logstore.Store
	if cfg.Logging.DBPath != "" {
		blobRoot := cfg.Logging.BlobRoot
		if blobRoot == "" {
			blobRoot = filepath.Join(filepath.Dir(cfg.Logging.DBPath), "blobs")
		}
		store, err = logstore.Open(cfg.Logging.DBPath, blobRoot)
		if err != nil {
			return fmt.Errorf("failed to open log store: %w", err)
		}
		defer store.Close()
	} else {
		log.Info("exchange logging disabled, set logging.db_path to enable")
	}

	obs, err := observability.Init(cfg.Tracing.Enabled, "modelrelay")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	srv := server.New(*cfg, controller, rt, store, obs, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})

	if c.Watch {
		stop := make(chan struct{})
		g.Go(func() error {
			<-ctx.Done()
			close(stop)
			return nil
		})
		err := config.Watch(cli.Config, stop, func(next *config.Config) {
			rt.Update(next.Models)
			log.Info("model routes updated", "models", len(next.Models.Definitions))
		})
		if err != nil {
			log.Warn("config watcher unavailable", "error", err)
		}
	}

	log.Info("proxy started",
		"address", cfg.Server.Address(),
		"models", len(cfg.Models.Definitions),
		"providers", providerRegistry.Keys())
	return g.Wait()
}

// buildProviders registers every provider adapter. Adapters with no
// configuration still register so per-model overrides can supply
// credentials.
func buildProviders(cfg config.ProvidersConfig) *providers.Registry {
	openai := config.OpenAIProviderConfig{}
	if cfg.OpenAI != nil {
		openai = *cfg.OpenAI
	}
	openrouter := config.OpenRouterProviderConfig{}
	if cfg.OpenRouter != nil {
		openrouter = *cfg.OpenRouter
	}
	vertex := config.VertexProviderConfig{}
	if cfg.Vertex != nil {
		vertex = *cfg.Vertex
	}
	anthropic := config.AnthropicProviderConfig{}
	if cfg.Anthropic != nil {
		anthropic = *cfg.Anthropic
	}

	return providers.NewRegistry(
		providers.NewOpenAIAdapter(openai),
		providers.NewOpenRouterAdapter(openrouter),
		providers.NewVertexAdapter(vertex),
		providers.NewAnthropicAdapter(anthropic),
	)
}
