package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/timeflow"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadResolvesFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"session": {
			"mode": "realtime-replay",
			"stepMs": 1000,
			"pollMs": 100,
			"symbols": ["BTCUSDT", "ETHUSDT"],
			"start": "2024-01-01T10:00:00Z"
		},
		"broker": {
			"name": "paper-1",
			"quoteCurrency": "USDT",
			"initialBalance": "10000000",
			"takerFeeRate": "0.0004",
			"makerFeeRate": "0.0002",
			"slippageBps": "5",
			"latencyMs": 20
		},
		"guards": {"maxOrdersPerSec": 10, "cancelAllOnKillSwitch": true},
		"recorder": {"enabled": true, "postgres": {"host": "db", "database": "papertrade"}},
		"store": {"tradeCapacityPerSymbol": 1000}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, timeflow.RealTimeReplay, loaded.Mode)
	assert.Equal(t, time.Second, loaded.Step)
	assert.Equal(t, 100*time.Millisecond, loaded.Poll)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, loaded.Symbols)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), loaded.Start)

	assert.Equal(t, "paper-1", loaded.Broker.Name)
	assert.True(t, loaded.Broker.InitialBalance.Equal(decimal.NewFromInt(10_000_000)))
	assert.True(t, loaded.Broker.TakerFeeRate.Equal(decimal.RequireFromString("0.0004")))
	assert.Equal(t, 20*time.Millisecond, loaded.Broker.Latency)

	assert.Equal(t, 10, loaded.Guards.MaxOrdersPerSec)
	assert.True(t, loaded.Guards.CancelAllOnKillSwitch)
	assert.True(t, loaded.Recorder.Enabled)
	assert.Equal(t, "db", loaded.Recorder.Postgres.Host)
	assert.Equal(t, 1000, loaded.Store.TradeCapacityPerSymbol)
}

func TestLoadDefaultsToBacktest(t *testing.T) {
	path := writeConfig(t, `{"session": {"symbols": ["BTCUSDT"]}}`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, timeflow.Backtest, loaded.Mode)
	assert.WithinDuration(t, time.Now().UTC(), loaded.Start, 5*time.Second)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown mode",
			body: `{"session": {"mode": "warp", "symbols": ["BTCUSDT"]}}`,
			want: "unknown session mode",
		},
		{
			name: "no symbols",
			body: `{"session": {"mode": "backtest"}}`,
			want: "at least one symbol",
		},
		{
			name: "bad start",
			body: `{"session": {"symbols": ["BTCUSDT"], "start": "yesterday"}}`,
			want: "parse session start",
		},
		{
			name: "bad decimal",
			body: `{"session": {"symbols": ["BTCUSDT"]}, "broker": {"takerFeeRate": "many"}}`,
			want: "parse broker takerFeeRate",
		},
		{
			name: "negative fee",
			body: `{"session": {"symbols": ["BTCUSDT"]}, "broker": {"takerFeeRate": "-1"}}`,
			want: "must not be negative",
		},
		{
			name: "negative rate limit",
			body: `{"session": {"symbols": ["BTCUSDT"]}, "guards": {"maxOrdersPerSec": -1}}`,
			want: "maxOrdersPerSec",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
