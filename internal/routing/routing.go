// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package routing is the write-routing fabric (spec.md §4.4): it resolves a
// tag id to its owning device, gates the write past the cognitive
// collaborator's policy hook, and enqueues it onto that device's bounded
// channel for the owning driverworker.Worker to drain. Grounded on
// internal/memorystore/buffer.go's bounded, pre-capacity-allocated buffer
// pattern, generalized from a metric ring buffer to a per-device command
// queue.
package routing

import (
	"errors"
	"sync"

	"github.com/EngRafael35/Inlogic-ia/internal/driverworker"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// DefaultQueueCapacity is the per-device pending-write channel size
// (spec.md §4.4).
const DefaultQueueCapacity = 256

var (
	ErrUnknownTag      = errors.New("tag desconhecida")
	ErrUnknownDriver   = errors.New("driver desconhecido")
	ErrWriteNotAllowed = errors.New("escrita não permitida para esta tag")
	ErrQueueFull       = errors.New("fila de escrita cheia")
)

// PolicyGate is the cognitive collaborator's write-validation hook (C6,
// spec.md §4.6 "validate_write"). A nil PolicyGate allows every write.
type PolicyGate interface {
	ValidateWrite(tagID string, value any) error
}

// Router holds the tag->device routing table and one bounded channel per
// device. The table is rebuilt wholesale and swapped atomically on restart
// (§4.7 "/api/system/restart") -- readers never see a half-updated table.
type Router struct {
	mu   sync.RWMutex
	tags map[string]schema.TagConfig

	queueMu sync.RWMutex
	queues  map[string]chan driverworker.WriteJob

	gate PolicyGate
}

func New(gate PolicyGate) *Router {
	return &Router{
		tags:   map[string]schema.TagConfig{},
		queues: map[string]chan driverworker.WriteJob{},
		gate:   gate,
	}
}

// Rebuild replaces the routing table and allocates a fresh queue per
// device, returning the receive side of each queue for the supervisor to
// hand to the corresponding driverworker.Worker.
func (r *Router) Rebuild(devices []schema.DeviceConfig, tags []schema.TagConfig) map[string]<-chan driverworker.WriteJob {
	tagIndex := make(map[string]schema.TagConfig, len(tags))
	for _, t := range tags {
		tagIndex[t.ID] = t
	}

	queues := make(map[string]chan driverworker.WriteJob, len(devices))
	recvs := make(map[string]<-chan driverworker.WriteJob, len(devices))
	for _, d := range devices {
		q := make(chan driverworker.WriteJob, DefaultQueueCapacity)
		queues[d.ID] = q
		recvs[d.ID] = q
	}

	r.mu.Lock()
	r.tags = tagIndex
	r.mu.Unlock()

	r.queueMu.Lock()
	r.queues = queues
	r.queueMu.Unlock()

	return recvs
}

// DrainAll empties every per-device write queue and reports how many
// pending jobs were discarded per device id. Called by the supervisor
// before Rebuild replaces the queue map on restart, so writes sitting in
// the old queues are observable as dropped rather than silently
// garbage-collected (spec.md §5, §8 S6).
func (r *Router) DrainAll() map[string]int {
	r.queueMu.RLock()
	defer r.queueMu.RUnlock()

	dropped := make(map[string]int, len(r.queues))
	for id, q := range r.queues {
		n := 0
	drain:
		for {
			select {
			case <-q:
				n++
			default:
				break drain
			}
		}
		if n > 0 {
			dropped[id] = n
		}
	}
	return dropped
}

// EnqueueWrite routes a single-tag write (§4.7 "/api/escrever"): resolves
// the tag's owning device, runs it past the policy gate, and enqueues it.
func (r *Router) EnqueueWrite(tagID string, value any) error {
	r.mu.RLock()
	tag, ok := r.tags[tagID]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownTag
	}
	if !tag.Writable {
		return ErrWriteNotAllowed
	}

	if r.gate != nil {
		if err := r.gate.ValidateWrite(tagID, value); err != nil {
			return err
		}
	}

	return r.enqueue(tag.DriverID, driverworker.WriteJob{TagID: tagID, Value: value})
}

// EnqueueBatchWrite routes a multi-column SQL write (§4.7
// "/api/escrever_lote") directly to driverID -- batch writes name columns
// by tag id, not a single routed tag, so no single owning tag exists.
func (r *Router) EnqueueBatchWrite(driverID string, values map[string]any, rowID string) error {
	if r.gate != nil {
		for tagID, v := range values {
			if err := r.gate.ValidateWrite(tagID, v); err != nil {
				return err
			}
		}
	}
	return r.enqueue(driverID, driverworker.WriteJob{Values: values, RowID: rowID})
}

func (r *Router) enqueue(driverID string, job driverworker.WriteJob) error {
	r.queueMu.RLock()
	q, ok := r.queues[driverID]
	r.queueMu.RUnlock()
	if !ok {
		return ErrUnknownDriver
	}

	select {
	case q <- job:
		return nil
	default:
		return ErrQueueFull
	}
}
