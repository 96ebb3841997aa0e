package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/broker"
	"papertrade/internal/recorder"
	"papertrade/internal/timeflow"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Session  SessionConfig   `json:"session"`
	Broker   BrokerConfig    `json:"broker"`
	Guards   GuardsConfig    `json:"guards"`
	Recorder RecorderConfig  `json:"recorder"`
	Store    StoreSizeConfig `json:"store"`
}

// SessionConfig describes the simulated session.
type SessionConfig struct {
	Mode    string   `json:"mode"` // "backtest" or "realtime-replay"
	StepMs  int      `json:"stepMs"`
	PollMs  int      `json:"pollMs"`
	Symbols []string `json:"symbols"`
	Start   string   `json:"start"` // RFC3339, defaults to now
}

// BrokerConfig describes the simulated venue. Decimal fields are JSON
// strings to avoid float rounding.
type BrokerConfig struct {
	Name           string `json:"name"`
	QuoteCurrency  string `json:"quoteCurrency"`
	InitialBalance string `json:"initialBalance"`
	TakerFeeRate   string `json:"takerFeeRate"`
	MakerFeeRate   string `json:"makerFeeRate"`
	SlippageBps    string `json:"slippageBps"`
	LatencyMs      int    `json:"latencyMs"`
}

// GuardsConfig describes the submission guard layer.
type GuardsConfig struct {
	MaxOrdersPerSec       int  `json:"maxOrdersPerSec"`
	CancelAllOnKillSwitch bool `json:"cancelAllOnKillSwitch"`
}

// RecorderConfig toggles session recording.
type RecorderConfig struct {
	Enabled  bool            `json:"enabled"`
	Postgres recorder.Config `json:"postgres"`
}

// StoreSizeConfig sizes the market data buffers.
type StoreSizeConfig struct {
	TradeCapacityPerSymbol int `json:"tradeCapacityPerSymbol"`
	BarCapacityPerSeries   int `json:"barCapacityPerSeries"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Mode     timeflow.Mode
	Step     time.Duration
	Poll     time.Duration
	Symbols  []string
	Start    time.Time
	Broker   broker.PaperConfig
	Guards   GuardsConfig
	Recorder RecorderConfig
	Store    StoreSizeConfig
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	loaded := Loaded{
		Symbols:  cfg.Session.Symbols,
		Guards:   cfg.Guards,
		Recorder: cfg.Recorder,
		Store:    cfg.Store,
		Step:     time.Duration(cfg.Session.StepMs) * time.Millisecond,
		Poll:     time.Duration(cfg.Session.PollMs) * time.Millisecond,
	}

	switch cfg.Session.Mode {
	case "", "backtest":
		loaded.Mode = timeflow.Backtest
	case "realtime-replay":
		loaded.Mode = timeflow.RealTimeReplay
	default:
		return Loaded{}, fmt.Errorf("unknown session mode %q", cfg.Session.Mode)
	}

	if len(loaded.Symbols) == 0 {
		return Loaded{}, fmt.Errorf("session requires at least one symbol")
	}

	if cfg.Session.Start != "" {
		start, err := time.Parse(time.RFC3339, cfg.Session.Start)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse session start: %w", err)
		}
		loaded.Start = start.UTC()
	} else {
		loaded.Start = time.Now().UTC()
	}

	brokerCfg, err := resolveBroker(cfg.Broker)
	if err != nil {
		return Loaded{}, err
	}
	loaded.Broker = brokerCfg

	if loaded.Guards.MaxOrdersPerSec < 0 {
		return Loaded{}, fmt.Errorf("maxOrdersPerSec must not be negative")
	}
	return loaded, nil
}

func resolveBroker(cfg BrokerConfig) (broker.PaperConfig, error) {
	out := broker.PaperConfig{
		Name:          cfg.Name,
		QuoteCurrency: cfg.QuoteCurrency,
		Latency:       time.Duration(cfg.LatencyMs) * time.Millisecond,
	}

	for _, field := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"initialBalance", cfg.InitialBalance, &out.InitialBalance},
		{"takerFeeRate", cfg.TakerFeeRate, &out.TakerFeeRate},
		{"makerFeeRate", cfg.MakerFeeRate, &out.MakerFeeRate},
		{"slippageBps", cfg.SlippageBps, &out.SlippageBps},
	} {
		if field.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(field.raw)
		if err != nil {
			return broker.PaperConfig{}, fmt.Errorf("parse broker %s: %w", field.name, err)
		}
		if v.IsNegative() {
			return broker.PaperConfig{}, fmt.Errorf("broker %s must not be negative", field.name)
		}
		*field.dst = v
	}
	return out, nil
}
