package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Run struct {
	StartDate       string `yaml:"start_date"` // YYYY-MM-DD
	EndDate         string `yaml:"end_date"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	SessionMinutes  int    `yaml:"session_minutes"`
	HistoryDays     int    `yaml:"history_days"`
	MaxAttempts     int    `yaml:"max_attempts"` // per-agent validation attempts per cycle
}

type Provider struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	TimeoutMs      int    `yaml:"timeout_ms"`
	MaxRetries     int    `yaml:"max_retries"`
	BackoffBaseMs  int    `yaml:"backoff_base_ms"`
	RequestsPerMin int    `yaml:"requests_per_min"`
}

type Feed struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type Broker struct {
	SlippageBpsMin int `yaml:"slippage_bps_min"`
	SlippageBpsMax int `yaml:"slippage_bps_max"`
}

type Events struct {
	SSEAddr string `yaml:"sse_addr"` // empty disables the SSE hub
}

type AgentSeed struct {
	Name            string   `yaml:"name"`
	Provider        string   `yaml:"provider"`
	InitialCapital  float64  `yaml:"initial_capital"`
	Watchlist       []string `yaml:"watchlist"`
	MaxPositionPct  float64  `yaml:"max_position_pct"`
	MaxTradesPerDay int      `yaml:"max_trades_per_day"`
	LeverageTiers   []int    `yaml:"leverage_tiers"`
}

type Root struct {
	Mode        string      `yaml:"mode"` // mock | live
	DatabaseDSN string      `yaml:"database_dsn"`
	Run         Run         `yaml:"run"`
	Provider    Provider    `yaml:"provider"`
	Feed        Feed        `yaml:"feed"`
	Broker      Broker      `yaml:"broker"`
	Events      Events      `yaml:"events"`
	Agents      []AgentSeed `yaml:"agents"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}

	if c.Mode == "" {
		c.Mode = "mock"
	}
	if c.Run.IntervalMinutes == 0 {
		c.Run.IntervalMinutes = 390 // one cycle per trading day
	}
	if c.Run.SessionMinutes == 0 {
		c.Run.SessionMinutes = 390 // 09:30-16:00
	}
	if c.Run.HistoryDays == 0 {
		c.Run.HistoryDays = 30
	}
	if c.Run.MaxAttempts == 0 {
		c.Run.MaxAttempts = 3
	}

	if c.Provider.TimeoutMs == 0 {
		c.Provider.TimeoutMs = 60000
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Provider.BackoffBaseMs == 0 {
		c.Provider.BackoffBaseMs = 1000
	}
	if c.Provider.RequestsPerMin == 0 {
		c.Provider.RequestsPerMin = 60
	}
	if c.Provider.APIKeyEnv == "" {
		c.Provider.APIKeyEnv = "ARENA_PROVIDER_API_KEY"
	}

	if c.Feed.TimeoutMs == 0 {
		c.Feed.TimeoutMs = 10000
	}

	if c.Broker.SlippageBpsMin == 0 {
		c.Broker.SlippageBpsMin = 1
	}
	if c.Broker.SlippageBpsMax == 0 {
		c.Broker.SlippageBpsMax = 5
	}

	for i := range c.Agents {
		if c.Agents[i].InitialCapital == 0 {
			c.Agents[i].InitialCapital = 100000
		}
		if c.Agents[i].MaxPositionPct == 0 {
			c.Agents[i].MaxPositionPct = 0.30
		}
		if len(c.Agents[i].LeverageTiers) == 0 {
			c.Agents[i].LeverageTiers = []int{1}
		}
	}

	return c, nil
}

// RunDates parses the configured date range.
func (r Run) RunDates() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", r.StartDate)
	if err != nil {
		return start, end, fmt.Errorf("parse start_date: %w", err)
	}
	end, err = time.Parse("2006-01-02", r.EndDate)
	if err != nil {
		return start, end, fmt.Errorf("parse end_date: %w", err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("end_date %s before start_date %s", r.EndDate, r.StartDate)
	}
	return start, end, nil
}
