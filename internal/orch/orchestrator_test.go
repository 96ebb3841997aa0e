package orch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/broker"
	"papertrade/internal/bus"
	"papertrade/internal/clock"
	"papertrade/internal/obs"
)

type fakeEngine struct {
	hub      *bus.Hub[broker.Event]
	placed   []broker.PlaceOrderRequest
	canceled []string
	nextID   int
	refuse   bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{hub: bus.NewHub[broker.Event]()}
}

func (f *fakeEngine) PlaceOrder(_ context.Context, req broker.PlaceOrderRequest) (broker.OrderAck, error) {
	f.placed = append(f.placed, req)
	if f.refuse {
		return broker.OrderAck{ClientOrderID: req.ClientOrderID, Message: "refused"}, nil
	}
	f.nextID++
	return broker.OrderAck{
		Accepted:      true,
		OrderID:       fmt.Sprintf("order-%d", f.nextID),
		ClientOrderID: req.ClientOrderID,
	}, nil
}

func (f *fakeEngine) CancelOrder(_ context.Context, orderID string) (broker.CancelAck, error) {
	f.canceled = append(f.canceled, orderID)
	return broker.CancelAck{Accepted: true, OrderID: orderID}, nil
}

func (f *fakeEngine) CancelAll(context.Context) error {
	f.canceled = append(f.canceled, "*")
	return nil
}

func (f *fakeEngine) SubscribeEvents(fn func(broker.Event)) func() {
	return f.hub.Subscribe(fn)
}

func newTestOrchestrator(maxPerSec int) (*Orchestrator, *fakeEngine, *clock.Virtual) {
	clk := clock.NewVirtual()
	clk.SetUTC(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	engine := newFakeEngine()
	o := NewOrchestrator(engine, NewLimiterPool(clk, maxPerSec), obs.NewMetrics())
	return o, engine, clk
}

func req(clientID string) broker.PlaceOrderRequest {
	return broker.PlaceOrderRequest{
		Symbol:        "BTCUSDT",
		Side:          broker.Buy,
		Type:          broker.Market,
		Quantity:      decimal.NewFromInt(1),
		ClientOrderID: clientID,
		SourceID:      "strat-1",
	}
}

func TestPlaceOrderDelegatesAndRecordsOwnership(t *testing.T) {
	o, engine, _ := newTestOrchestrator(0)

	ack, err := o.PlaceOrder(context.Background(), req("c-1"))
	require.NoError(t, err)
	require.True(t, ack.Accepted)
	require.Len(t, engine.placed, 1)

	assert.Equal(t, "strat-1", o.Ownership().Owner(ack.OrderID))
	assert.Equal(t, UnknownSource, o.Ownership().Owner("elsewhere"))
}

func TestPlaceOrderAssignsClientOrderID(t *testing.T) {
	o, engine, _ := newTestOrchestrator(0)

	ack, err := o.PlaceOrder(context.Background(), req(""))
	require.NoError(t, err)
	require.True(t, ack.Accepted)
	assert.NotEmpty(t, engine.placed[0].ClientOrderID, "missing client order id must be assigned")
}

func TestPlaceOrderDuplicateClientOrderID(t *testing.T) {
	o, engine, _ := newTestOrchestrator(0)

	_, err := o.PlaceOrder(context.Background(), req("dup"))
	require.NoError(t, err)

	_, err = o.PlaceOrder(context.Background(), req("dup"))
	require.ErrorIs(t, err, ErrDuplicateClientOrder)
	assert.Len(t, engine.placed, 1, "duplicate must not reach the engine")
}

func TestKillSwitchBlocksSubmissions(t *testing.T) {
	o, engine, _ := newTestOrchestrator(0)

	o.KillSwitch().Trip("maintenance")
	_, err := o.PlaceOrder(context.Background(), req("c-1"))
	require.ErrorIs(t, err, ErrKillSwitch)
	assert.Contains(t, err.Error(), "maintenance")
	assert.Empty(t, engine.placed)

	o.KillSwitch().Clear()
	_, err = o.PlaceOrder(context.Background(), req("c-2"))
	require.NoError(t, err)
}

func TestRateLimitViolationTripsKillSwitch(t *testing.T) {
	o, engine, _ := newTestOrchestrator(2)

	for i := 0; i < 2; i++ {
		_, err := o.PlaceOrder(context.Background(), req(fmt.Sprintf("c-%d", i)))
		require.NoError(t, err)
	}

	_, err := o.PlaceOrder(context.Background(), req("c-2"))
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "FixedWindow(2/sec)")

	tripped, reason := o.KillSwitch().Tripped()
	assert.True(t, tripped, "rate violation escalates to the kill switch")
	assert.Contains(t, reason, "FixedWindow(2/sec)")
	assert.Len(t, engine.placed, 2)
}

func TestRateLimitWindowRollsOver(t *testing.T) {
	o, _, clk := newTestOrchestrator(1)

	_, err := o.PlaceOrder(context.Background(), req("c-1"))
	require.NoError(t, err)

	clk.AdvanceTo(clk.Now().Add(time.Second))
	_, err = o.PlaceOrder(context.Background(), req("c-2"))
	require.NoError(t, err, "new second opens a fresh window")
}

func TestRateLimitIsPerSource(t *testing.T) {
	o, _, _ := newTestOrchestrator(1)

	r1 := req("c-1")
	r2 := req("c-2")
	r2.SourceID = "strat-2"

	_, err := o.PlaceOrder(context.Background(), r1)
	require.NoError(t, err)
	_, err = o.PlaceOrder(context.Background(), r2)
	require.NoError(t, err, "a different source has its own window")
}

func TestCancelByClientOrderID(t *testing.T) {
	o, engine, _ := newTestOrchestrator(0)

	ack, err := o.PlaceOrder(context.Background(), req("c-1"))
	require.NoError(t, err)

	cancel, err := o.CancelByClientOrderID(context.Background(), "c-1")
	require.NoError(t, err)
	assert.True(t, cancel.Accepted)
	assert.Equal(t, []string{ack.OrderID}, engine.canceled)

	_, err = o.CancelByClientOrderID(context.Background(), "never-seen")
	require.ErrorIs(t, err, ErrUnknownClientOrderID)
}

func TestCancelAllBySource(t *testing.T) {
	o, engine, _ := newTestOrchestrator(0)

	for i := 0; i < 3; i++ {
		_, err := o.PlaceOrder(context.Background(), req(fmt.Sprintf("c-%d", i)))
		require.NoError(t, err)
	}
	other := req("c-x")
	other.SourceID = "strat-2"
	_, err := o.PlaceOrder(context.Background(), other)
	require.NoError(t, err)

	canceled := o.CancelAllBySource(context.Background(), "strat-1")
	assert.Equal(t, 3, canceled)
	assert.Len(t, engine.canceled, 3)
}

func TestSetKillSwitchCancelAllOnEnable(t *testing.T) {
	o, engine, _ := newTestOrchestrator(0)

	require.NoError(t, o.SetKillSwitch(context.Background(), true, true))
	tripped, _ := o.KillSwitch().Tripped()
	assert.True(t, tripped)
	assert.Equal(t, []string{"*"}, engine.canceled)

	require.NoError(t, o.SetKillSwitch(context.Background(), false, false))
	tripped, _ = o.KillSwitch().Tripped()
	assert.False(t, tripped)
}

func TestTerminalOrderLeavesOwnership(t *testing.T) {
	o, engine, clk := newTestOrchestrator(0)

	ack, err := o.PlaceOrder(context.Background(), req("c-1"))
	require.NoError(t, err)
	require.Equal(t, "strat-1", o.Ownership().Owner(ack.OrderID))

	engine.hub.Publish(broker.OrderUpdatedEvent{
		Time:  clk.Now(),
		Order: broker.Order{OrderID: ack.OrderID, ClientOrderID: "c-1", Status: broker.StatusFilled},
	})
	assert.Equal(t, UnknownSource, o.Ownership().Owner(ack.OrderID))

	_, err = o.CancelByClientOrderID(context.Background(), "c-1")
	assert.ErrorIs(t, err, ErrUnknownClientOrderID, "terminal orders drop the client id mapping")
}

func TestEngineFaultTripsKillSwitch(t *testing.T) {
	o, engine, clk := newTestOrchestrator(0)

	engine.hub.Publish(broker.BrokerErrorEvent{
		Time: clk.Now(), Code: broker.CodeOrderCanceled, Message: "order canceled: by user",
	})
	tripped, _ := o.KillSwitch().Tripped()
	require.False(t, tripped, "informational notices must not trip the switch")

	engine.hub.Publish(broker.BrokerErrorEvent{
		Time: clk.Now(), Code: broker.CodeFillRejected, Message: "order rejected: insufficient funds",
	})
	tripped, reason := o.KillSwitch().Tripped()
	require.True(t, tripped)
	assert.Contains(t, reason, "insufficient funds")
}

func TestIdempotencyStore(t *testing.T) {
	s := NewIdempotencyStore()
	if !s.Register("a") {
		t.Fatalf("first registration must succeed")
	}
	if s.Register("a") {
		t.Fatalf("second registration must fail")
	}
	if !s.Seen("a") {
		t.Fatalf("expect a to be seen")
	}
	if s.Seen("b") {
		t.Fatalf("expect b to be unseen")
	}
}
