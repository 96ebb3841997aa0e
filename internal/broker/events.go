package broker

import "time"

// ErrorCode classifies broker error events. Some codes are informational
// notices rather than faults.
type ErrorCode int

const (
	// CodeOrderCanceled is the informational notice accompanying a cancel.
	CodeOrderCanceled ErrorCode = iota
	// CodeFillRejected marks a placement the engine refused.
	CodeFillRejected
	// CodeStreamFault marks a failure in the broker's data handling.
	CodeStreamFault
)

// Informational reports whether the code describes normal operation.
func (c ErrorCode) Informational() bool {
	return c == CodeOrderCanceled
}

// Event is anything the broker publishes on its event stream.
type Event interface {
	EventTime() time.Time
}

// OrderUpdatedEvent carries the order snapshot after any state change.
type OrderUpdatedEvent struct {
	Time  time.Time
	Order Order
}

// EventTime implements Event.
func (e OrderUpdatedEvent) EventTime() time.Time { return e.Time }

// FillEvent carries one execution. It is always published before the
// order update it caused.
type FillEvent struct {
	Time time.Time
	Fill Fill
}

// EventTime implements Event.
func (e FillEvent) EventTime() time.Time { return e.Time }

// BrokerErrorEvent reports a fault or an informational notice.
type BrokerErrorEvent struct {
	Time    time.Time
	Code    ErrorCode
	OrderID string
	Message string
}

// EventTime implements Event.
func (e BrokerErrorEvent) EventTime() time.Time { return e.Time }
