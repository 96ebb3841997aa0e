package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"papertrade/internal/broker"
	"papertrade/internal/obs"
)

var (
	ErrKillSwitch           = errors.New("kill switch engaged")
	ErrDuplicateClientOrder = errors.New("duplicate client order id")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrUnknownClientOrderID = errors.New("unknown client order id")
)

// Broker is the submission surface the orchestrator guards.
type Broker interface {
	PlaceOrder(ctx context.Context, req broker.PlaceOrderRequest) (broker.OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) (broker.CancelAck, error)
	CancelAll(ctx context.Context) error
	SubscribeEvents(fn func(broker.Event)) func()
}

// Orchestrator composes the guard pipeline in front of the engine: kill
// switch, idempotency, per-source rate limiting, then delegation, then
// ownership bookkeeping. It also watches the engine's event stream to clean
// up terminal orders and to trip the kill switch on engine faults.
type Orchestrator struct {
	engine      Broker
	killSwitch  *KillSwitch
	idempotency *IdempotencyStore
	limiters    *LimiterPool
	ownership   *OwnershipStore
	orderIDs    *OrderIDMap
	metrics     *obs.Metrics

	unsubscribe func()
}

// NewOrchestrator wires the guards and subscribes to the engine's events.
func NewOrchestrator(engine Broker, limiters *LimiterPool, metrics *obs.Metrics) *Orchestrator {
	o := &Orchestrator{
		engine:      engine,
		killSwitch:  NewKillSwitch(),
		idempotency: NewIdempotencyStore(),
		limiters:    limiters,
		ownership:   NewOwnershipStore(),
		orderIDs:    NewOrderIDMap(),
		metrics:     metrics,
	}
	o.unsubscribe = engine.SubscribeEvents(o.onEngineEvent)
	return o
}

// Close detaches the orchestrator from the engine's event stream.
func (o *Orchestrator) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
}

// KillSwitch exposes the switch for operator tooling.
func (o *Orchestrator) KillSwitch() *KillSwitch { return o.killSwitch }

// Ownership exposes the order ownership map, used by the position projector
// to attribute fills.
func (o *Orchestrator) Ownership() *OwnershipStore { return o.ownership }

// PlaceOrder runs the guard pipeline and delegates to the engine. A missing
// client order id is assigned automatically. Guard violations return a
// sentinel error without reaching the engine; a rate-limit violation also
// trips the kill switch.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req broker.PlaceOrderRequest) (broker.OrderAck, error) {
	if tripped, reason := o.killSwitch.Tripped(); tripped {
		o.metrics.IncGuardBlocks()
		return broker.OrderAck{}, fmt.Errorf("%w: %s", ErrKillSwitch, reason)
	}

	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	if !o.idempotency.Register(req.ClientOrderID) {
		o.metrics.IncGuardBlocks()
		return broker.OrderAck{}, fmt.Errorf("%w: %s", ErrDuplicateClientOrder, req.ClientOrderID)
	}

	limiter := o.limiters.For(req.SourceID)
	if !limiter.Allow() {
		o.metrics.IncGuardBlocks()
		reason := fmt.Sprintf("source %q exceeded %s", req.SourceID, limiter.Name())
		o.killSwitch.Trip(reason)
		return broker.OrderAck{}, fmt.Errorf("%w: %s", ErrRateLimited, reason)
	}

	ack, err := o.engine.PlaceOrder(ctx, req)
	if err != nil {
		return ack, err
	}
	if ack.Accepted {
		o.orderIDs.Record(req.ClientOrderID, ack.OrderID)
		o.ownership.Record(ack.OrderID, req.SourceID)
	}
	return ack, nil
}

// CancelOrder cancels by engine order id.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID string) (broker.CancelAck, error) {
	return o.engine.CancelOrder(ctx, orderID)
}

// CancelByClientOrderID resolves the client order id and cancels.
func (o *Orchestrator) CancelByClientOrderID(ctx context.Context, clientOrderID string) (broker.CancelAck, error) {
	orderID, ok := o.orderIDs.Resolve(clientOrderID)
	if !ok {
		return broker.CancelAck{}, fmt.Errorf("%w: %s", ErrUnknownClientOrderID, clientOrderID)
	}
	return o.engine.CancelOrder(ctx, orderID)
}

// CancelAll cancels every open order on the engine.
func (o *Orchestrator) CancelAll(ctx context.Context) error {
	return o.engine.CancelAll(ctx)
}

// CancelAllBySource cancels the source's open orders best-effort, logging and
// continuing past individual failures. It returns the number of accepted
// cancels.
func (o *Orchestrator) CancelAllBySource(ctx context.Context, sourceID string) int {
	canceled := 0
	for _, orderID := range o.ownership.OrdersOf(sourceID) {
		ack, err := o.engine.CancelOrder(ctx, orderID)
		if err != nil {
			logs.Errorf("cancel %s for source %s: %v", orderID, sourceID, err)
			continue
		}
		if !ack.Accepted {
			logs.Warnf("cancel %s for source %s refused: %s", orderID, sourceID, ack.Message)
			continue
		}
		canceled++
	}
	return canceled
}

// SetKillSwitch engages or clears the switch. With cancelAllOnEnable set,
// engaging also cancels every open order.
func (o *Orchestrator) SetKillSwitch(ctx context.Context, enabled, cancelAllOnEnable bool) error {
	if !enabled {
		o.killSwitch.Clear()
		return nil
	}
	o.killSwitch.Trip("engaged by operator")
	if cancelAllOnEnable {
		return o.engine.CancelAll(ctx)
	}
	return nil
}

// onEngineEvent tracks order lifecycles: terminal orders leave the ownership
// map, and non-informational engine errors trip the kill switch.
func (o *Orchestrator) onEngineEvent(e broker.Event) {
	switch ev := e.(type) {
	case broker.OrderUpdatedEvent:
		if ev.Order.Status.Terminal() {
			o.ownership.Forget(ev.Order.OrderID)
			o.orderIDs.Forget(ev.Order.ClientOrderID)
		}
	case broker.BrokerErrorEvent:
		if ev.Code.Informational() {
			return
		}
		o.killSwitch.Trip(fmt.Sprintf("engine fault: %s", ev.Message))
	}
}
