package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/fundscout/internal/config"
	"github.com/kalambet/fundscout/internal/retrieval"
	"github.com/kalambet/fundscout/internal/storage"
	"github.com/kalambet/fundscout/internal/trace"
)

func queryArg(args []string) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" {
		return "", errors.New("a non-empty query is required")
	}
	return q, nil
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Route a funding question to the research or advice pipeline",
	Long: `Route a funding question to the research or advice pipeline.

Examples:
  fundscout ask "Which AI startups raised a Series A last year?"
  fundscout ask "Who should I pitch for my food delivery startup?"
  fundscout ask --advice-only "How do I approach fintech investors?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := queryArg(args)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		adviceOnly, _ := cmd.Flags().GetBool("advice-only")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg, "cli")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := trace.WithTrace(cmd.Context(), trace.New("cli"))
		out := cmd.OutOrStdout()

		if adviceOnly {
			res, err := a.advice.AdviceOnly(ctx, query, nil)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(out, res)
			}
			renderAdvice(out, res)
			return nil
		}

		res, err := a.router.Route(ctx, query, nil)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(out, res)
		}
		renderRoute(out, res)
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("json", false, "print the raw JSON result")
	askCmd.Flags().Bool("advice-only", false, "skip routing and summarization; run the advice agent directly")
}

// --- rag ---

var ragCmd = &cobra.Command{
	Use:   "rag <query>",
	Short: "Answer a question from the knowledge base with cited sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := queryArg(args)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg, "cli")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := trace.WithTrace(cmd.Context(), trace.New("cli"))
		res, err := a.rag.Run(ctx, query, nil)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		renderRAG(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	ragCmd.Flags().Bool("json", false, "print the raw JSON result")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over the indexed companies",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := queryArg(args)
		if err != nil {
			return err
		}
		topK, _ := cmd.Flags().GetInt("top-k")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		asJSON, _ := cmd.Flags().GetBool("json")
		if threshold > 2 {
			return fmt.Errorf("--threshold must be in [0, 2], got %v", threshold)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg, "cli")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.SemanticSearch(cmd.Context(), query, topK, threshold)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		renderSearch(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("top-k", 0, "maximum number of results (default from retrieval.top_k)")
	searchCmd.Flags().Float64("threshold", -1, "maximum cosine distance (default from retrieval.distance_threshold)")
	searchCmd.Flags().Bool("json", false, "print the raw JSON result")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the company store into the vector index",
	Long: `Index the company store into the vector index.

Only documents whose text changed since the last run are re-embedded. With
--queue the rebuild is scheduled on the running server instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		queue, _ := cmd.Flags().GetBool("queue")
		if queue {
			return queueReindex(cmd)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg, "cli")
		if err != nil {
			return err
		}
		defer a.Close()

		printStep("Indexing companies with %s...", a.cfg.LLM.EmbedModel)
		stats, err := a.ingester.Run(cmd.Context())
		if err != nil {
			if errors.Is(err, retrieval.ErrIngestInProgress) {
				return errors.New("another ingestion is running; try again later")
			}
			return err
		}
		printSuccess("Indexed %d companies: %d embedded, %d unchanged, %d skipped, %d removed",
			stats.Total, stats.Embedded, stats.Unchanged, stats.Skipped, stats.Removed)
		return nil
	},
}

func queueReindex(cmd *cobra.Command) error {
	reason, _ := cmd.Flags().GetString("reason")
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.post(cmd.Context(), "/v1/ingest", map[string]string{"reason": reason})
	if err != nil {
		return err
	}
	var result struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	printSuccess("Queued reindex job %s", result.JobID)
	return nil
}

func init() {
	ingestCmd.Flags().Bool("queue", false, "schedule the rebuild on the running server")
	ingestCmd.Flags().String("reason", "cli", "reason recorded with a queued job")
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Load company records from a JSON file into the company store",
	Long: `Load company records from a JSON file into the company store.

The file holds an array of objects with company_name, description, sector,
series, funding_amount, total_funding, valuation, investors, founded_year,
url and date. Records without a company name are skipped. Records without
source_index take their position in the array. Run "fundscout ingest"
afterwards to index them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening import file: %w", err)
		}
		defer f.Close()

		companies, skipped, err := decodeCompanies(f)
		if err != nil {
			return err
		}
		for _, s := range skipped {
			printWarning("Skipping record %d: missing company_name", s+1)
		}
		if len(companies) == 0 {
			return errors.New("no valid company records to import")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		if err := store.UpsertCompanies(cmd.Context(), companies); err != nil {
			return err
		}
		total, err := store.CountCompanies(cmd.Context())
		if err != nil {
			return err
		}
		printSuccess("Imported %d companies (%d in store)", len(companies), total)
		return nil
	},
}

// --- sectors ---

var sectorsCmd = &cobra.Command{
	Use:   "sectors",
	Short: "List the sector vocabulary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		sectors, err := store.ListValidSectors(cmd.Context())
		if err != nil {
			return err
		}
		for _, s := range sectors {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	},
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "List recently routed queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		interactions, err := store.RecentInteractions(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(interactions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No interactions found.")
			return nil
		}
		for _, ix := range interactions {
			status := ix.Status
			if status != "completed" {
				status = colorize(colorRed, status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-8s  %s  %s\n",
				colorize(colorCyan, shortID(ix.WorkflowID)),
				ix.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				ix.Intent,
				status,
				truncate(ix.Query, 80),
			)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	interactionsCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: fmt.Sprintf(`Set a configuration value in the config file.

Valid keys: %s`, strings.Join(config.ValidKeys(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value, restoring its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
