package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tradearena/agent-arena/internal/broker"
	"github.com/tradearena/agent-arena/internal/config"
	"github.com/tradearena/agent-arena/internal/decision"
	"github.com/tradearena/agent-arena/internal/engine"
	"github.com/tradearena/agent-arena/internal/events"
	"github.com/tradearena/agent-arena/internal/exec"
	"github.com/tradearena/agent-arena/internal/llm"
	"github.com/tradearena/agent-arena/internal/market"
	"github.com/tradearena/agent-arena/internal/observ"
	"github.com/tradearena/agent-arena/internal/repo"
	"github.com/tradearena/agent-arena/internal/seed"
)

var cfgPath string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "arena",
		Short:         "Trading agent competition engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config/arena.yaml", "path to config file")
	root.AddCommand(seedCmd(), runCmd())

	if err := root.Execute(); err != nil {
		observ.Log("fatal", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create configured agents and their ledgers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			n, err := seed.Agents(cmd.Context(), store, cfg.Agents)
			if err != nil {
				return err
			}
			observ.Log("seed_done", map[string]any{"created": n, "configured": len(cfg.Agents)})
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute a run over the configured date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			start, end, err := cfg.Run.RunDates()
			if err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			if _, err := seed.Agents(cmd.Context(), store, cfg.Agents); err != nil {
				return fmt.Errorf("seed agents: %w", err)
			}

			feed := buildFeed(cfg, store)
			provider := buildProvider(cfg)
			gateway := buildGateway(cfg)

			sink := buildSink(cfg)

			eng := decision.NewEngine(provider, store).
				WithBackoff(cfg.Provider.MaxRetries, time.Duration(cfg.Provider.BackoffBaseMs)*time.Millisecond)
			ex := exec.New(gateway, store)
			cycle := engine.NewCycle(eng, ex, store, feed, sink, cfg.Run.MaxAttempts, cfg.Run.HistoryDays)
			orch := engine.NewOrchestrator(store, sink, cycle, engine.RunConfig{
				Start:           start,
				End:             end,
				IntervalMinutes: cfg.Run.IntervalMinutes,
				SessionMinutes:  cfg.Run.SessionMinutes,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run, err := orch.Execute(ctx)
			if run != nil {
				observ.Log("run_finished", map[string]any{"run_id": run.ID, "status": string(run.Status)})
			}
			return err
		},
	}
}

func openStore(cfg config.Root) (repo.Repository, error) {
	if cfg.Mode == "live" {
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("live mode requires database_dsn")
		}
		return repo.Open(cfg.DatabaseDSN)
	}
	return repo.NewMemory(), nil
}

func buildFeed(cfg config.Root, store repo.Repository) market.Feed {
	if cfg.Mode == "live" {
		primary := market.NewRestFeed(cfg.Feed.BaseURL, time.Duration(cfg.Feed.TimeoutMs)*time.Millisecond)
		return market.NewFallbackFeed(primary, nil, store)
	}
	stub := market.NewStubFeed()
	for _, a := range cfg.Agents {
		for _, t := range a.Watchlist {
			stub.SetPrice(t, syntheticPrice(t))
			stub.SetHistory(t, syntheticHistory(t, cfg.Run.HistoryDays))
		}
	}
	return stub
}

func buildProvider(cfg config.Root) llm.Provider {
	if cfg.Mode == "live" {
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:        cfg.Provider.BaseURL,
			APIKey:         os.Getenv(cfg.Provider.APIKeyEnv),
			Model:          cfg.Provider.Model,
			Timeout:        time.Duration(cfg.Provider.TimeoutMs) * time.Millisecond,
			RequestsPerMin: cfg.Provider.RequestsPerMin,
		})
	}
	// Scripted provider so mock runs exercise the whole pipeline offline.
	return llm.NewStubProvider(`{"action":"HOLD","reasoning":"mock mode default"}`)
}

func buildGateway(cfg config.Root) broker.Gateway {
	brokerSeed := time.Now().UnixNano()
	if cfg.Mode != "live" {
		brokerSeed = 1 // deterministic fills in mock mode
	}
	return broker.NewSimGateway(cfg.Broker.SlippageBpsMin, cfg.Broker.SlippageBpsMax, brokerSeed)
}

func buildSink(cfg config.Root) events.Sink {
	if cfg.Events.SSEAddr == "" {
		return events.LogSink{}
	}
	hub := events.NewSSEHub()
	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	go func() {
		observ.Log("sse_listen", map[string]any{"addr": cfg.Events.SSEAddr})
		if err := http.ListenAndServe(cfg.Events.SSEAddr, mux); err != nil {
			observ.Log("sse_server_error", map[string]any{"error": err.Error()})
		}
	}()
	return events.Multi{events.LogSink{}, hub}
}

// syntheticPrice derives a stable per-ticker price so mock runs are
// reproducible without a feed.
func syntheticPrice(ticker string) float64 {
	h := 0
	for _, c := range ticker {
		h = h*31 + int(c)
	}
	return 50 + float64(h%400)
}

func syntheticHistory(ticker string, days int) []market.Candle {
	if days <= 0 {
		days = 30
	}
	base := syntheticPrice(ticker)
	out := make([]market.Candle, 0, days)
	day := time.Now().UTC().AddDate(0, 0, -days)
	for i := 0; i < days; i++ {
		drift := float64((i*7)%11-5) / 100 * base
		c := base + drift
		out = append(out, market.Candle{
			Date:   day.AddDate(0, 0, i),
			Open:   c * 0.995,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000000,
		})
	}
	return out
}
