// Souschef server — hosts the recipe execution engine, the LLM tool
// surface, and the session channel the cooking UI connects to.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/souschef-ai/souschef/pkg/api"
	"github.com/souschef-ai/souschef/pkg/config"
	"github.com/souschef-ai/souschef/pkg/recipes"
	"github.com/souschef-ai/souschef/pkg/session"
	"github.com/souschef-ai/souschef/pkg/tools"
	"github.com/souschef-ai/souschef/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// buildRecipeSource constructs the catalog backend selected in config.
func buildRecipeSource(cfg *config.RecipesConfig) (recipes.Source, error) {
	switch cfg.Source {
	case config.SourceRemote:
		return recipes.NewRemoteSource(cfg.ManifestURL, cfg.CacheTTLDuration()), nil
	default:
		return recipes.NewLocalSource(cfg.Dir)
	}
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	mcpStdio := flag.Bool("mcp-stdio",
		getEnv("MCP_STDIO", "") == "true",
		"Serve the LLM tool surface over stdio (MCP)")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	slog.SetLogLoggerLevel(cfg.SlogLevel())

	slog.Info("Starting souschef",
		"version", version.GitCommit,
		"addr", cfg.Server.Addr(),
		"config_dir", *configDir)

	// 2. Recipe catalog
	source, err := buildRecipeSource(&cfg.Recipes)
	if err != nil {
		slog.Error("Failed to initialize recipe source", "error", err)
		os.Exit(1)
	}
	slog.Info("Recipe source initialized", "source", cfg.Recipes.Source)

	// 3. Session registry and LLM tool surface
	sessions := session.NewService(source)
	registry := tools.NewRegistry(sessions)
	slog.Info("Tool registry initialized", "tools", len(registry.Tools()))

	// 4. HTTP server (health, session channel, UI actions)
	httpServer := api.NewServer(&cfg.Server, sessions)

	errCh := make(chan error, 1)

	// Optional: expose the tool surface to an assistant runtime that
	// launched this process. Logs go to stderr, so stdout stays clean
	// for the MCP framing.
	if *mcpStdio {
		mcpServer := tools.NewMCPServer(registry, version.AppName, version.GitCommit)
		go func() {
			if err := mcpServer.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
				slog.Error("MCP stdio server error", "error", err)
				errCh <- err
			}
		}()
		slog.Info("MCP tool server listening on stdio")
	}
	go func() {
		addr := cfg.Server.Addr()
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Souschef started successfully")

	// 5. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 6. Graceful shutdown: stop accepting requests, then tear down
	// sessions (cancelling every timer and reminder worker).
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	sessions.StopAll()

	slog.Info("Shutdown complete")
}
