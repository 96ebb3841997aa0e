package position

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"papertrade/internal/broker"
	"papertrade/internal/bus"
)

// PositionState is the projector's view of one (source, symbol) pair.
type PositionState struct {
	SourceID      string
	Symbol        string
	NetQuantity   decimal.Decimal
	AvgPrice      decimal.Decimal
	RealizedPnL   decimal.Decimal
	LastPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// PositionChanged is published after every state change. Removed marks a
// position that just reached zero quantity; the state itself is kept.
type PositionChanged struct {
	Position PositionState
	Removed  bool
}

// OwnerResolver attributes a fill to the source that placed its order.
type OwnerResolver interface {
	Owner(orderID string) string
}

type posKey struct {
	source string
	symbol string
}

// Projector folds fills into per-(source, symbol) positions with
// weighted-average-cost accounting and marks them to the latest trade price.
type Projector struct {
	resolver OwnerResolver
	changes  *bus.Hub[PositionChanged]

	mu     sync.Mutex
	states map[posKey]*PositionState
}

// NewProjector creates an empty projector.
func NewProjector(resolver OwnerResolver) *Projector {
	return &Projector{
		resolver: resolver,
		changes:  bus.NewHub[PositionChanged](),
		states:   make(map[posKey]*PositionState),
	}
}

// SubscribeChanges registers a change handler and returns its unsubscribe func.
func (p *Projector) SubscribeChanges(fn func(PositionChanged)) func() {
	return p.changes.Subscribe(fn)
}

// HandleFill applies one execution to its owner's position.
//
// Same-direction fills blend the average price by quantity-weighted mean.
// Opposite-direction fills realize PnL on the closed portion; a remainder
// that flips the position's sign resets the average price to the fill price,
// and a full close zeros it. The fee is always deducted from realized PnL.
func (p *Projector) HandleFill(fill broker.Fill) {
	source := p.resolver.Owner(fill.OrderID)
	key := posKey{source: source, symbol: strings.ToUpper(fill.Symbol)}

	signed := fill.Quantity
	if fill.Side == broker.Sell {
		signed = signed.Neg()
	}

	p.mu.Lock()
	s, ok := p.states[key]
	if !ok {
		s = &PositionState{SourceID: source, Symbol: key.symbol}
		p.states[key] = s
	}

	net := s.NetQuantity
	sameDirection := net.IsZero() || net.Sign() == signed.Sign()
	if sameDirection {
		newNet := net.Add(signed)
		s.AvgPrice = net.Abs().Mul(s.AvgPrice).
			Add(fill.Quantity.Mul(fill.Price)).
			Div(newNet.Abs())
		s.NetQuantity = newNet
	} else {
		closed := decimal.Min(net.Abs(), fill.Quantity)
		direction := decimal.NewFromInt(int64(net.Sign()))
		s.RealizedPnL = s.RealizedPnL.Add(fill.Price.Sub(s.AvgPrice).Mul(closed).Mul(direction))

		newNet := net.Add(signed)
		switch {
		case newNet.Sign() != 0 && newNet.Sign() != net.Sign():
			// flipped through zero, the remainder opens at the fill price
			s.AvgPrice = fill.Price
		case newNet.IsZero():
			s.AvgPrice = decimal.Zero
		}
		s.NetQuantity = newNet
	}
	s.RealizedPnL = s.RealizedPnL.Sub(fill.Fee)
	s.LastPrice = fill.Price
	s.UnrealizedPnL = s.LastPrice.Sub(s.AvgPrice).Mul(s.NetQuantity)

	change := PositionChanged{Position: *s, Removed: s.NetQuantity.IsZero()}
	p.mu.Unlock()

	p.changes.Publish(change)
}

// HandleTick re-marks every position on the symbol across all sources.
// Zero-quantity positions are skipped in tick-driven publication.
func (p *Projector) HandleTick(symbol string, price decimal.Decimal) {
	symbol = strings.ToUpper(symbol)

	var updated []PositionChanged
	p.mu.Lock()
	for key, s := range p.states {
		if key.symbol != symbol {
			continue
		}
		s.LastPrice = price
		s.UnrealizedPnL = price.Sub(s.AvgPrice).Mul(s.NetQuantity)
		if s.NetQuantity.IsZero() {
			continue
		}
		updated = append(updated, PositionChanged{Position: *s})
	}
	p.mu.Unlock()

	for _, c := range updated {
		p.changes.Publish(c)
	}
}

// Snapshot returns copies of every position state, sorted for stable output.
func (p *Projector) Snapshot() []PositionState {
	p.mu.Lock()
	out := make([]PositionState, 0, len(p.states))
	for _, s := range p.states {
		out = append(out, *s)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Get returns the (source, symbol) position.
func (p *Projector) Get(sourceID, symbol string) (PositionState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[posKey{source: sourceID, symbol: strings.ToUpper(symbol)}]
	if !ok {
		return PositionState{}, false
	}
	return *s, true
}
