package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/fundscout/internal/api"
	"github.com/kalambet/fundscout/internal/ingest"
	"github.com/kalambet/fundscout/internal/retrieval"
	"github.com/kalambet/fundscout/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the ingest worker (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running fundscout server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, index and job queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the tool registry over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "fundscout.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "fundscout version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	probe := newAPIClientFor(cfg)
	probe.httpClient.Timeout = 2 * time.Second
	if probe.healthy(context.Background()) {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	a, err := openApp(cfg, "api")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.llm.Ping(pingCtx); err != nil {
		slog.Warn("model provider not reachable; requests will fail until it is", "base_url", cfg.LLM.BaseURL, "error", err)
	}
	cancel()

	if cfg.API.Token == "" {
		slog.Warn("API token not set; the HTTP API is unauthenticated", "env", "FUNDSCOUT_API_TOKEN")
	}

	// Index on first start so the first query does not pay for it.
	go func() {
		if err := a.engine.EnsureIndexed(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("initial indexing failed", "error", err)
		}
	}()

	worker := ingest.NewWorker(a.store, a.ingester, 0)
	go worker.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Router:       a.router,
		RAG:          a.rag,
		Search:       a.engine,
		Sectors:      a.store,
		Interactions: a.store,
		Reindex: func(ctx context.Context, reason string) (string, error) {
			return ingest.Enqueue(ctx, a.store, reason)
		},
		Token: cfg.API.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "fundscout listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("fundscout is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("stopping fundscout (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to fundscout (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := newAPIClientFor(cfg)
	client.httpClient.Timeout = 2 * time.Second
	running := client.healthy(ctx)
	if running {
		printStatus("Server", "running on port %d", cfg.Server.Port)
	} else {
		printStatus("Server", "stopped")
	}

	printStatus("Fast model", "%s", cfg.LLM.FastModel)
	printStatus("Reasoning model", "%s", cfg.LLM.ReasoningModel)
	printStatus("Embed model", "%s", cfg.LLM.EmbedModel)
	if cfg.LLM.APIKey == "" {
		printWarning("FUNDSCOUT_LLM_API_KEY is not set")
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		printError("opening storage: %v", err)
		return nil
	}
	defer store.Close()

	if n, err := store.CountCompanies(ctx); err == nil {
		printStatus("Companies", "%d", n)
	}
	if n, err := retrieval.NewSQLiteStore(store.DB()).Count(ctx, cfg.LLM.EmbedModel); err == nil {
		printStatus("Indexed docs", "%d", n)
	}
	if counts, err := store.JobCounts(ctx); err == nil {
		printStatus("Jobs", "%s", formatCounts(counts))
	}
	if versions, err := store.AppliedMigrations(); err == nil && len(versions) > 0 {
		printStatus("Schema", "v%d", versions[len(versions)-1])
	}
	if running {
		if resp, err := client.get(ctx, fmt.Sprintf("/v1/interactions?limit=%d", maxInteractionsShown)); err == nil {
			var interactions []json.RawMessage
			if decodeJSON(resp, &interactions) == nil {
				printStatus("Interactions", "%s", countLabel(len(interactions), maxInteractionsShown))
			}
		}
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

const maxInteractionsShown = 100

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

// formatCounts renders per-status job counts in a stable order.
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}

func runMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg, "mcp")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Tools:        a.registry,
		Sectors:      a.store,
		Interactions: a.store,
		Version:      version,
	})
	slog.Info("MCP server started (stdio transport)", "tools", len(a.registry.Names()))
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
