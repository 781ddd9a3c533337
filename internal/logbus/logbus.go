// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logbus is the system-wide structured log sink (spec.md §4.8):
// every component logs through a *logrus.Logger built here, whose hooks
// fan each entry out to a fixed-capacity in-memory ring buffer (queryable
// through "/api/logs") and to a pipe-delimited log file. Grounded on
// original_source/modulos/logger.py's `log()`/`get_recent_logs()`/
// `get_logs_since()` contract: ring buffer capacity 5000, file named
// logs/inlogic_<YYYYMMDD_HHMMSS>.log, one line per entry.
package logbus

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// RingCapacity is the maximum number of retained log records (§4.8).
const RingCapacity = 5000

// Bus owns the ring buffer and file handle backing every component's
// *logrus.Logger.
type Bus struct {
	logger *logrus.Logger
	file   *os.File

	mu   sync.RWMutex
	ring []schema.LogRecord
	head int
	size int
}

// Open creates the logs directory (if needed), opens this run's log file,
// and wires a ring-buffer hook and colored console formatter onto a fresh
// *logrus.Logger. dir defaults to "logs" when empty.
func Open(dir string) (*Bus, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("criar diretório de logs: %w", err)
	}

	name := fmt.Sprintf("inlogic_%s.log", time.Now().Format("20060102_150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("abrir arquivo de log: %w", err)
	}

	b := &Bus{
		file: f,
		ring: make([]schema.LogRecord, RingCapacity),
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		ForceColors:     true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.AddHook(ringHook{bus: b})
	logger.AddHook(fileHook{file: f})
	b.logger = logger

	return b, nil
}

// Logger returns the shared *logrus.Logger every component should derive
// its per-source entry from via Logger().WithField("source", name).
func (b *Bus) Logger() *logrus.Logger { return b.logger }

// Close flushes and closes the backing log file.
func (b *Bus) Close() error {
	if b.file == nil {
		return nil
	}
	return b.file.Close()
}

// append adds a record to the ring buffer, overwriting the oldest entry
// once RingCapacity is reached.
func (b *Bus) append(rec schema.LogRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring[b.head] = rec
	b.head = (b.head + 1) % RingCapacity
	if b.size < RingCapacity {
		b.size++
	}
}

// Recent returns the last n log records, newest last. n<=0 returns every
// retained record.
func (b *Bus) Recent(n int) []schema.LogRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ordered := b.orderedLocked()
	if n <= 0 || n >= len(ordered) {
		return ordered
	}
	return ordered[len(ordered)-n:]
}

// Since returns every retained record with a timestamp after ts.
func (b *Bus) Since(ts time.Time) []schema.LogRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []schema.LogRecord
	for _, rec := range b.orderedLocked() {
		if rec.Timestamp.After(ts) {
			out = append(out, rec)
		}
	}
	return out
}

func (b *Bus) orderedLocked() []schema.LogRecord {
	if b.size < RingCapacity {
		out := make([]schema.LogRecord, b.size)
		copy(out, b.ring[:b.size])
		return out
	}
	out := make([]schema.LogRecord, RingCapacity)
	copy(out, b.ring[b.head:])
	copy(out[RingCapacity-b.head:], b.ring[:b.head])
	return out
}
