package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	mcptools "github.com/giantswarm/strategy-eval/internal/mcp"
	"github.com/giantswarm/strategy-eval/internal/server"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

func newServeCmd() *cobra.Command {
	var (
		transport      string
		httpAddr       string
		httpEndpoint   string
		allowedOrigins []string
		inCluster      bool
		outputDir      string
		suitesDir      string
		concurrency    int

		enableOAuth     bool
		oauthBaseURL    string
		oauthProvider   string
		dexIssuerURL    string
		dexClientID     string
		dexClientSecret string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server to expose the strategy benchmark via the Model Context Protocol.

Supports multiple transport types:
  - stdio: Standard input/output (default, for IDE integration)
  - streamable-http: HTTP with streaming support (for remote access)

The streamable-http transport also serves a REST API under /api/v1 and a
/healthz probe. OAuth 2.1 authentication can be enabled for it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			namespace, _ := cmd.Flags().GetString("namespace")

			client := newLLMClient(cfg, "", "")
			sc := &server.ServerContext{
				LLMClient:   client,
				Embedder:    client,
				Namespace:   namespace,
				OutputDir:   outputDir,
				SuitesDir:   suitesDir,
				Concurrency: concurrency,
				ModelHost:   newModelHost(ctx, cmd, inCluster),
			}

			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to open results store: %w", err)
			}
			if st != nil {
				defer st.Close()
				sc.Store = st
			}

			mcpSrv := mcpserver.NewMCPServer("strategy-eval", rootCmd.Version,
				mcpserver.WithToolCapabilities(true),
			)

			if err := mcptools.RegisterTools(mcpSrv, sc); err != nil {
				return fmt.Errorf("failed to register MCP tools: %w", err)
			}

			// Set up graceful shutdown.
			shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			switch transport {
			case transportStdio:
				return runStdioServer(mcpSrv)
			case transportStreamableHTTP:
				slog.Info("starting MCP server", "transport", transport, "addr", httpAddr)
				if enableOAuth {
					return runOAuthHTTPServer(shutdownCtx, sc, mcpSrv, httpAddr, httpEndpoint, server.OAuthConfig{
						BaseURL:         oauthBaseURL,
						Provider:        oauthProvider,
						DexIssuerURL:    dexIssuerURL,
						DexClientID:     dexClientID,
						DexClientSecret: dexClientSecret,
					})
				}
				return runHTTPServer(shutdownCtx, sc, mcpSrv, httpAddr, httpEndpoint, allowedOrigins)
			default:
				return fmt.Errorf("unsupported transport: %s (supported: stdio, streamable-http)", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http)")
	cmd.Flags().StringVar(&httpEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http)")
	cmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origins", nil, "CORS origins allowed to call the HTTP API (default: any)")
	cmd.Flags().BoolVar(&inCluster, "in-cluster", false, "Use in-cluster Kubernetes authentication")
	cmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory for test results")
	cmd.Flags().StringVar(&suitesDir, "suites-dir", "", "External test suites directory (optional)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Questions answered in parallel per strategy")

	// OAuth flags.
	cmd.Flags().BoolVar(&enableOAuth, "enable-oauth", false, "Enable OAuth 2.1 authentication (for HTTP transport)")
	cmd.Flags().StringVar(&oauthBaseURL, "oauth-base-url", "", "OAuth base URL (e.g. https://strategy-eval.example.com)")
	cmd.Flags().StringVar(&oauthProvider, "oauth-provider", server.OAuthProviderDex, "OAuth provider: dex")
	cmd.Flags().StringVar(&dexIssuerURL, "dex-issuer-url", "", "Dex OIDC issuer URL")
	cmd.Flags().StringVar(&dexClientID, "dex-client-id", "", "Dex OAuth client ID")
	cmd.Flags().StringVar(&dexClientSecret, "dex-client-secret", "", "Dex OAuth client secret")

	return cmd
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, sc *server.ServerContext, mcpSrv *mcpserver.MCPServer, addr, endpoint string, origins []string) error {
	router := server.NewRouter(sc, server.RouterOptions{
		MCPEndpoint:    endpoint,
		MCPHandler:     mcpserver.NewStreamableHTTPServer(mcpSrv, mcpserver.WithEndpointPath(endpoint)),
		AllowedOrigins: origins,
	})
	httpServer := server.NewHTTPServer(addr, router)

	slog.Info("HTTP server listening",
		"addr", addr,
		"mcp_endpoint", endpoint,
		"api", "/api/v1",
		"health", "/healthz",
	)

	if err := server.ServeUntilDone(ctx, httpServer.ListenAndServe, httpServer.Shutdown); err != nil {
		return err
	}
	slog.Info("HTTP server stopped")
	return nil
}

func runOAuthHTTPServer(ctx context.Context, sc *server.ServerContext, mcpSrv *mcpserver.MCPServer, addr, endpoint string, oc server.OAuthConfig) error {
	// Credentials may come from the environment instead of flags.
	if oc.DexIssuerURL == "" {
		oc.DexIssuerURL = os.Getenv("DEX_ISSUER_URL")
	}
	if oc.DexClientID == "" {
		oc.DexClientID = os.Getenv("DEX_CLIENT_ID")
	}
	if oc.DexClientSecret == "" {
		oc.DexClientSecret = os.Getenv("DEX_CLIENT_SECRET")
	}

	if oc.BaseURL == "" {
		return fmt.Errorf("--oauth-base-url is required when --enable-oauth is set")
	}
	if oc.DexIssuerURL == "" {
		return fmt.Errorf("dex issuer URL is required (--dex-issuer-url or DEX_ISSUER_URL)")
	}
	if oc.DexClientID == "" {
		return fmt.Errorf("dex client ID is required (--dex-client-id or DEX_CLIENT_ID)")
	}
	if oc.DexClientSecret == "" {
		return fmt.Errorf("dex client secret is required (--dex-client-secret or DEX_CLIENT_SECRET)")
	}

	oauthSrv, err := server.NewOAuthHTTPServer(sc, mcpSrv, endpoint, oc)
	if err != nil {
		return fmt.Errorf("failed to create OAuth HTTP server: %w", err)
	}

	slog.Info("OAuth-enabled HTTP server listening",
		"addr", addr,
		"base_url", oc.BaseURL,
		"provider", oc.Provider,
		"mcp_endpoint", endpoint,
	)

	err = server.ServeUntilDone(ctx, func() error { return oauthSrv.Start(addr) }, oauthSrv.Shutdown)
	if err != nil {
		return err
	}
	slog.Info("OAuth HTTP server stopped")
	return nil
}
