// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package adapter defines the protocol-agnostic contract (§4.1) that every
// field protocol implementation (ControlLogix, Modbus/TCP, MQTT, SQL) must
// satisfy so the driver worker (C2) can drive any of them identically.
package adapter

import (
	"context"
	"time"

	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// ErrorKind classifies an adapter failure (spec.md §4.1, §7). The driver
// worker's scan loop does not consult the kind: a failed read marks only
// that tag bad, and the worker reopens the session only when
// Session.Alive reports false.
type ErrorKind string

const (
	KindConnect    ErrorKind = "connect"
	KindTransport  ErrorKind = "transport"
	KindProtocol   ErrorKind = "protocol"
	KindCoercion   ErrorKind = "coercion"
	KindPermission ErrorKind = "permission"
	KindUnknown    ErrorKind = "unknown"
)

// Error wraps an adapter failure with its kind.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsReconnect reports whether this error is of a connect or transport
// kind. The driver worker does not call it.
func (e *Error) IsReconnect() bool {
	return e.Kind == KindConnect || e.Kind == KindTransport
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ReadResult is the outcome of reading one address.
type ReadResult struct {
	Value    any
	DataKind schema.DataKind
	Err      error
}

// WriteResult is the outcome of writing one address.
type WriteResult struct {
	Confirmed    bool // ControlLogix: confirm read matched; SQL: statement executed; others: always false
	ConfirmValue any
	Err          error
}

// AddressRead describes one tag to read in a batch call.
type AddressRead struct {
	TagID    string
	Address  string
	DataKind schema.DataKind
}

// Session is an opaque, protocol-specific open connection/subscription.
type Session interface {
	// Alive is a cheap liveness probe.
	Alive() bool
	// Close is idempotent and always succeeds.
	Close() error
}

// Adapter is the capability set every protocol family variant implements
// (spec.md §4.1). One concrete Adapter exists per protocol; the factory
// selects among them by schema.Protocol (config field "tipo").
type Adapter interface {
	// Open establishes a session, blocking up to timeout. tags is the
	// full set of this device's configured tags -- protocols that need
	// to know addresses/topics/columns up front (MQTT subscriptions,
	// SQL column lists) use it; polled protocols may ignore it.
	Open(ctx context.Context, opts schema.DeviceOptions, tags []schema.TagConfig, timeout time.Duration) (Session, error)

	// Read batches a read of every given address. The result slice has
	// exactly len(addrs) entries, in the same order.
	Read(ctx context.Context, sess Session, addrs []AddressRead) []ReadResult

	// Write coerces value to dataKind and writes it to address.
	Write(ctx context.Context, sess Session, address string, value any, dataKind schema.DataKind) WriteResult
}

// Factory resolves a schema.Protocol to its Adapter implementation.
type Factory func(proto schema.Protocol) (Adapter, bool)

// AsyncSample is one tag value delivered outside the Read/poll cycle.
type AsyncSample struct {
	TagID    string
	Value    any
	DataKind schema.DataKind
	Err      error
}

// AsyncSession is implemented by sessions that deliver samples
// asynchronously instead of answering Read calls (MQTT, spec.md §4.1: "read
// is not polled"). The driver worker drains Samples() each scan tick instead
// of calling Adapter.Read.
type AsyncSession interface {
	Session
	Samples() <-chan AsyncSample
}

// BatchWriter is implemented by adapters that support the multi-column
// batch write variant (SQL only, spec.md §4.7 "/api/escrever_lote"). The
// write-routing fabric (C4) type-asserts for this instead of widening the
// Adapter interface for every other protocol.
type BatchWriter interface {
	WriteBatch(ctx context.Context, sess Session, values map[string]any, rowID string) WriteResult
}
