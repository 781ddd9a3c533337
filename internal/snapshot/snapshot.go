// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package snapshot holds the shared, concurrently-read driver state (spec.md
// §4.3): one *schema.DriverRecord per device, replaced wholesale by its
// owning driverworker.Worker and read by everything else (the HTTP control
// plane, the ingestion fan-out, the cognitive nodes). Grounded on
// internal/memorystore/level.go's sync.RWMutex-guarded map, simplified from
// a tree to a flat map since devices have no hierarchy here.
package snapshot

import (
	"sync"
	"time"

	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// Store is safe for concurrent use. Each device id has exactly one writer
// (its driverworker.Worker); Put replaces that device's record atomically,
// readers never observe a partially-updated record.
type Store struct {
	mu      sync.RWMutex
	records map[string]*schema.DriverRecord
}

func New() *Store {
	return &Store{records: make(map[string]*schema.DriverRecord)}
}

// Put replaces the record for rec.Config.ID wholesale.
func (s *Store) Put(rec *schema.DriverRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Config.ID] = rec
}

// Get returns the current record for a device, or nil if unknown.
func (s *Store) Get(deviceID string) *schema.DriverRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[deviceID]
}

// All returns a shallow copy of every current record, keyed by device id.
// Safe to range over without holding any lock.
func (s *Store) All() map[string]*schema.DriverRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*schema.DriverRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// Tag looks up a single tag's current sample across every device, returning
// ok=false if the tag id is unknown.
func (s *Store) Tag(tagID string) (*schema.TagSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if t, ok := rec.Tags[tagID]; ok {
			return t, true
		}
	}
	return nil, false
}

// Delete removes a single device's record. Restart does not use it; it
// discards every record with Reset.
func (s *Store) Delete(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, deviceID)
}

// Reset discards every record, used before rebuilding the snapshot from a
// fresh configuration on restart.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*schema.DriverRecord)
}

// StaleSince reports every device whose last update predates cutoff, i.e.
// a worker that has stopped publishing without an explicit status change.
// The ingestion fan-out does not call it.
func (s *Store) StaleSince(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []string
	for id, rec := range s.records {
		if rec.Timestamp.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}
