package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/giantswarm/strategy-eval/internal/config"
	"github.com/giantswarm/strategy-eval/internal/llm"
	"github.com/giantswarm/strategy-eval/internal/modelhost"
	"github.com/giantswarm/strategy-eval/internal/store"
)

// newLLMClient creates a client from the loaded configuration. Non-empty
// endpoint and apiKey flags take precedence.
func newLLMClient(c *config.Config, endpoint, apiKey string) *llm.OpenAIClient {
	opts := []llm.Option{
		llm.WithBaseURL(c.Llm.BaseURL),
		llm.WithModel(c.Llm.Model),
		llm.WithEmbeddingModel(c.Llm.EmbeddingModel),
		llm.WithStreaming(c.Llm.Stream),
	}
	if c.Llm.APIKey != "" {
		opts = append(opts, llm.WithAPIKey(c.Llm.APIKey))
	}
	if c.Llm.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*c.Llm.Temperature))
	}
	if endpoint != "" {
		opts = append(opts, llm.WithBaseURL(endpoint))
	}
	if apiKey != "" {
		opts = append(opts, llm.WithAPIKey(apiKey))
	}
	return llm.NewOpenAIClient(opts...)
}

// openStore opens the configured results database. It returns nil when
// DB_DRIVER is unset.
func openStore(ctx context.Context, c *config.Config) (*store.SQLStore, error) {
	if !c.StoreEnabled() {
		return nil, nil
	}
	driver, err := store.ParseDriver(c.Store.Driver)
	if err != nil {
		return nil, err
	}
	s, err := store.OpenStore(ctx, driver, c.Store.DSN)
	if err != nil {
		return nil, err
	}
	slog.Debug("results store opened", "driver", driver)
	return s, nil
}

// newModelHost connects to the cluster named by the persistent kubeconfig and
// namespace flags. Failures are logged and yield nil, since a cluster is
// only needed for self-served models.
func newModelHost(ctx context.Context, cmd *cobra.Command, inCluster bool) *modelhost.Host {
	namespace, _ := cmd.Flags().GetString("namespace")
	kubeconfig, _ := cmd.Flags().GetString("kubeconfig")

	host, err := modelhost.New(namespace, kubeconfig, inCluster)
	if err != nil {
		slog.Warn("model host not available", "error", err)
		return nil
	}
	if err := host.Available(ctx); err != nil {
		slog.Warn("model host not available", "error", err)
		return nil
	}
	return host
}
