// StockPulse collects financial news and daily prices, scores headline
// sentiment and correlates it with price movement.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/seenimoa/stockpulse/api"
	"github.com/seenimoa/stockpulse/internal/config"
	"github.com/seenimoa/stockpulse/internal/logging"
	"github.com/seenimoa/stockpulse/internal/pipeline"
	"github.com/seenimoa/stockpulse/internal/scheduler"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stockpulse",
	Short: "StockPulse: news sentiment and stock price correlation",
	Long: `StockPulse collects business and technology headlines and daily stock
prices, scores headline sentiment per symbol and measures how sentiment
lines up with next-trading-day price moves.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logging.Setup(cfg.Logging)
		api.Version = version
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(coverageCmd)
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(analyzeTextCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("StockPulse %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and the collection scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		noSchedule, _ := cmd.Flags().GetBool("no-scheduler")
		if cfg.Scheduler.Enabled && !noSchedule {
			sched, err := scheduler.New(a.collector, cfg.Scheduler)
			if err != nil {
				return err
			}
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := sched.Stop(stopCtx); err != nil {
					log.Warn().Err(err).Msg("scheduler did not stop cleanly")
				}
			}()
		}

		srv := api.NewServer(cfg, api.Deps{Analyzer: a.analyzer, Refresher: a.collector, Repo: a.store})
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		return srv.Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().Bool("no-scheduler", false, "do not start the background collection jobs")
}

// --- Refresh Command ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one collection of prices and headlines now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := pipeline.RefreshOptions{}
		opts.PageSize, _ = cmd.Flags().GetInt("page-size")
		opts.DaysBack, _ = cmd.Flags().GetInt("days-back")
		opts.SkipNews, _ = cmd.Flags().GetBool("skip-news")
		opts.SkipPrices, _ = cmd.Flags().GetBool("skip-prices")
		symbols, _ := cmd.Flags().GetStringSlice("symbols")
		for _, raw := range symbols {
			s := utils.NormalizeSymbol(raw)
			if !cfg.HasSymbol(s) {
				return fmt.Errorf("unknown symbol: %s", raw)
			}
			opts.Symbols = append(opts.Symbols, s)
		}

		result, err := a.collector.Refresh(ctx, opts)
		if result != nil {
			printJSON(result)
		}
		return err
	},
}

func init() {
	refreshCmd.Flags().StringSlice("symbols", nil, "collect only these symbols")
	refreshCmd.Flags().Int("page-size", 0, "headlines per category (default: news.page_size)")
	refreshCmd.Flags().Int("days-back", 0, "also collect RSS articles from the last N days")
	refreshCmd.Flags().Bool("skip-news", false, "do not collect headlines")
	refreshCmd.Flags().Bool("skip-prices", false, "do not collect prices")
}

// --- Schedule Command ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the collection scheduler in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sched, err := scheduler.New(a.collector, cfg.Scheduler)
		if err != nil {
			return err
		}
		sched.Start()
		if now, _ := cmd.Flags().GetBool("run-now"); now {
			sched.RunNow(scheduler.JobDaily)
		}
		log.Info().Time("next_run", sched.Next()).Msg("scheduler running, press Ctrl+C to stop")

		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return sched.Stop(stopCtx)
	},
}

func init() {
	scheduleCmd.Flags().Bool("run-now", false, "run a daily collection immediately")
}

// --- Backfill Command ---

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Score stored articles that have no sentiment yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		result, err := a.collector.Backfill(ctx, limit)
		if result != nil {
			printJSON(result)
		}
		return err
	},
}

func init() {
	backfillCmd.Flags().Int("limit", 0, "maximum article/symbol pairs to score (0 = all)")
}

// --- Coverage Command ---

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Show the share of stored articles with a sentiment score",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.collector.Coverage(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("  %-8s %10s %10s %8s\n", "SYMBOL", "ARTICLES", "SCORED", "COVERAGE")
		for _, row := range rows {
			fmt.Printf("  %-8s %10d %10d %7.1f%%\n", row.Symbol, row.TotalArticles, row.ArticlesWithSentiment, row.CoveragePct)
		}
		return nil
	},
}

// --- Correlate Command ---

var correlateCmd = &cobra.Command{
	Use:   "correlate [symbol]",
	Short: "Correlate stored sentiment with next-day price changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol := utils.NormalizeSymbol(args[0])
		if !cfg.HasSymbol(symbol) {
			return fmt.Errorf("unknown symbol: %s", args[0])
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		live, _ := cmd.Flags().GetBool("live")
		days, _ := cmd.Flags().GetInt("days")
		if live {
			report, err := a.analyzer.AnalyzeCorrelation(cmd.Context(), symbol)
			if err != nil {
				return err
			}
			printJSON(report)
			return nil
		}
		report, err := a.store.CorrelationData(cmd.Context(), symbol, days)
		if err != nil {
			return err
		}
		printJSON(report)
		return nil
	},
}

func init() {
	correlateCmd.Flags().Int("days", 90, "days of stored history to use")
	correlateCmd.Flags().Bool("live", false, "fetch headlines and prices from the providers instead")
}

// --- Analyze Text Command ---

var analyzeTextCmd = &cobra.Command{
	Use:   "analyze-text [text]",
	Short: "Score the sentiment of a piece of text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		analyzer := pipeline.NewAnalyzer(pipeline.Sources{}, nil, cfg.Keywords(), cfg.News.Categories)
		printJSON(analyzer.AnalyzeText(strings.Join(args, " ")))
		return nil
	},
}

// --- Migrate Command ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema and seed the symbol universe",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Printf("schema ready, %d symbols seeded\n", len(cfg.Symbols))
		return nil
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  StockPulse System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Market Status: %s\n", utils.MarketStatus())
		fmt.Printf("  Time (ET):     %s\n", utils.NowEastern().Format("2006-01-02 15:04 MST"))
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Database:      %s\n", cfg.Database.Driver)
		fmt.Printf("    Cache:         %s\n", cfg.Cache.Backend)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Printf("    Symbols:       %s\n", strings.Join(cfg.SymbolList(), ", "))
		fmt.Printf("    Scheduler:     %v %v\n", cfg.Scheduler.Enabled, cfg.Scheduler.DailySpecs)
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		if a, err := newApp(cmd.Context(), cfg); err == nil {
			defer a.Close()
			if usage, err := a.store.UsageToday(cmd.Context()); err == nil {
				fmt.Println()
				fmt.Println("  API Usage Today:")
				fmt.Printf("    News calls:    %d / %d\n", usage.NewsCalls, cfg.Quota.MaxNewsCalls)
				fmt.Printf("    Stock calls:   %d / %d\n", usage.StockCalls, cfg.Quota.MaxStockCalls)
			}
		} else {
			fmt.Printf("\n  Database:      unavailable (%v)\n", err)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode output")
	}
}
