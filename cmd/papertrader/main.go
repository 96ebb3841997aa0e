package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"papertrade/internal/broker"
	"papertrade/internal/clock"
	"papertrade/internal/market"
	"papertrade/internal/obs"
	"papertrade/internal/ops"
	"papertrade/internal/orch"
	"papertrade/internal/position"
	"papertrade/internal/recorder"
	"papertrade/internal/source"
	"papertrade/internal/timeflow"
)

const demoSource = "demo-strategy"

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	steps := flag.Int("steps", 2400, "Synthetic data steps to run (50ms simulated time each)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "papertrade",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := run(ctx, loaded, *steps); err != nil {
		log.Fatalf("session failed: %v", err)
	}
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.Loaded{
			Mode:    timeflow.Backtest,
			Symbols: []string{"BTCUSDT"},
			Start:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			Broker: broker.PaperConfig{
				InitialBalance: decimal.NewFromInt(10_000_000),
				TakerFeeRate:   decimal.RequireFromString("0.0004"),
				MakerFeeRate:   decimal.RequireFromString("0.0002"),
			},
			Guards: ops.GuardsConfig{MaxOrdersPerSec: 10},
		}, nil
	}
	return ops.Load(path)
}

func run(ctx context.Context, loaded ops.Loaded, steps int) error {
	metrics := obs.NewMetrics()

	flow := timeflow.New(clock.NewVirtual(), timeflow.Config{
		Mode: loaded.Mode,
		Step: loaded.Step,
		Poll: loaded.Poll,
	})
	flow.Start(ctx)

	var ticks atomic.Int64
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-flow.Ticks():
				ticks.Add(1)
			}
		}
	}()

	store := market.NewStore(market.StoreConfig{
		TradeCapacityPerSymbol: loaded.Store.TradeCapacityPerSymbol,
		BarCapacityPerSeries:   loaded.Store.BarCapacityPerSeries,
	})
	marketBus := market.NewBus()
	agg := market.NewAggregator(market.M1, store, marketBus, metrics)
	pipeline := market.NewPipeline(flow.Clock(), flow, store, marketBus, agg, metrics)
	view := market.NewView(flow.Clock(), store)

	engine := broker.NewPaper(loaded.Broker, view, metrics)
	marketBus.SubscribeBooks(engine.OnOrderBookTop)

	orchestrator := orch.NewOrchestrator(engine,
		orch.NewLimiterPool(flow.Clock(), loaded.Guards.MaxOrdersPerSec), metrics)
	defer orchestrator.Close()

	projector := position.NewProjector(orchestrator.Ownership())
	engine.SubscribeEvents(func(e broker.Event) {
		if fe, ok := e.(broker.FillEvent); ok {
			projector.HandleFill(fe.Fill)
		}
	})
	marketBus.SubscribeTrades(func(e market.TradeTickEvent) {
		projector.HandleTick(e.Symbol, e.Tick.Price)
	})
	projector.SubscribeChanges(func(c position.PositionChanged) {
		if c.Removed {
			logs.Infof("position closed: %s %s realized=%s",
				c.Position.SourceID, c.Position.Symbol, c.Position.RealizedPnL)
		}
	})

	if loaded.Recorder.Enabled {
		rec, err := recorder.Open(loaded.Recorder.Postgres)
		if err != nil {
			return err
		}
		defer rec.Close()
		detach := rec.Attach(marketBus, engine.SubscribeEvents)
		defer detach()
	}

	gen := source.NewSynthetic(source.SyntheticConfig{
		Symbols: loaded.Symbols,
		Start:   loaded.Start,
	}, pipeline)

	logs.Infof("session start: mode=%s symbols=%v start=%s",
		loaded.Mode, loaded.Symbols, loaded.Start.Format(time.RFC3339))

	if err := runScriptedSession(ctx, orchestrator, gen, loaded.Symbols[0], steps); err != nil {
		return err
	}

	pipeline.CloseSession()
	summarize(view, engine, projector, metrics, loaded.Symbols, ticks.Load())
	return nil
}

// runScriptedSession drives the synthetic feed and places a handful of
// orders at fixed points, exercising the full submission path.
func runScriptedSession(ctx context.Context, orchestrator *orch.Orchestrator, gen *source.Synthetic, symbol string, steps int) error {
	warmup := steps / 10
	if warmup < 20 {
		warmup = 20
	}
	gen.RunSteps(warmup)

	if _, err := orchestrator.PlaceOrder(ctx, broker.PlaceOrderRequest{
		Symbol:   symbol,
		Side:     broker.Buy,
		Type:     broker.Market,
		Quantity: decimal.RequireFromString("0.5"),
		SourceID: demoSource,
	}); err != nil {
		return err
	}

	gen.RunSteps(warmup)

	// a resting limit below the market, canceled later by client order id
	const restingID = "demo-resting-bid"
	if _, err := orchestrator.PlaceOrder(ctx, broker.PlaceOrderRequest{
		Symbol:        symbol,
		Side:          broker.Buy,
		Type:          broker.Limit,
		Quantity:      decimal.RequireFromString("0.2"),
		LimitPrice:    decimal.NewFromInt(40_000),
		ClientOrderID: restingID,
		SourceID:      demoSource,
	}); err != nil {
		return err
	}

	remaining := steps - 2*warmup
	if remaining > 0 {
		gen.RunSteps(remaining)
	}

	ack, err := orchestrator.CancelByClientOrderID(ctx, restingID)
	if err != nil {
		return err
	}
	if !ack.Accepted {
		logs.Warnf("resting order not canceled: %s", ack.Message)
	}

	if _, err := orchestrator.PlaceOrder(ctx, broker.PlaceOrderRequest{
		Symbol:   symbol,
		Side:     broker.Sell,
		Type:     broker.Market,
		Quantity: decimal.RequireFromString("0.5"),
		SourceID: demoSource,
	}); err != nil {
		return err
	}
	return nil
}

func summarize(view *market.View, engine *broker.Paper, projector *position.Projector, metrics *obs.Metrics, symbols []string, ticks int64) {
	snap := metrics.Snapshot()
	logs.Infof("session end at %s: ticks=%d trades=%d quotes=%d bars=%d",
		view.Now().Format(time.RFC3339), ticks,
		snap.TradesIngested, snap.QuotesIngested, snap.BarsClosed)
	logs.Infof("orders: placed=%d filled=%d canceled=%d rejected=%d fills=%d guard_blocks=%d",
		snap.OrdersPlaced, snap.OrdersFilled, snap.OrdersCanceled, snap.OrdersRejected,
		snap.Fills, snap.GuardBlocks)

	acct := engine.Account()
	logs.Infof("account: %s free=%s reserved=%s",
		acct.Balance.Currency, acct.Balance.Free, acct.Balance.Reserved)

	for _, sym := range symbols {
		if bar, ok := view.GetLastBar(sym, market.M1); ok {
			logs.Infof("%s last bar %s: o=%s h=%s l=%s c=%s v=%s",
				sym, bar.Time.Format("15:04"), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		}
	}
	for _, pos := range projector.Snapshot() {
		logs.Infof("position %s %s: net=%s avg=%s realized=%s unrealized=%s",
			pos.SourceID, pos.Symbol, pos.NetQuantity, pos.AvgPrice,
			pos.RealizedPnL, pos.UnrealizedPnL)
	}
}
