// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package driverworker runs the per-device state machine (spec.md §4.2):
// connect with bounded retries, scan on an interval while connected, drain
// pending writes each tick, and fall back to a long backoff once the retry
// budget is exhausted. One Worker exists per configured device and owns
// that device's adapter session exclusively -- it is the single writer of
// its entry in the shared snapshot (internal/snapshot).
//
// Grounded on original_source/driver/modbus_driver_process.py's run/
// _communication_loop shape, generalized over the adapter.Adapter
// interface so the same state machine drives every protocol family.
package driverworker

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EngRafael35/Inlogic-ia/internal/adapter"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// connectRetryDelay is the short pause between individual connection
// attempts within one retry budget (§4.2).
const connectRetryDelay = 2 * time.Second

// longBackoff is the pause after the retry budget is exhausted, before the
// whole connect cycle restarts (§4.2).
const longBackoff = 10 * time.Second

// errorLogInterval rate-limits repeated "still disconnected" log lines.
const errorLogInterval = 30 * time.Second

// Recorder publishes a worker's current driver record to the shared
// snapshot (C3). Put replaces the record wholesale -- the worker never
// mutates a record another component holds a reference to.
type Recorder interface {
	Put(rec *schema.DriverRecord)
}

// WriteJob is one pending write, enqueued by the routing fabric (C4) onto
// this device's channel. Batch writes (Values non-nil) are SQL-only; other
// protocols only ever receive single-tag jobs.
type WriteJob struct {
	TagID  string
	Value  any
	Values map[string]any
	RowID  string
}

// Worker drives one device's adapter session through its lifetime.
type Worker struct {
	device  schema.DeviceConfig
	tags    []schema.TagConfig
	ad      adapter.Adapter
	rec     Recorder
	writes  <-chan WriteJob
	log     *logrus.Entry
	scanInt time.Duration
	timeout time.Duration
	retries int

	tagsMu   sync.RWMutex
	tagsLast map[string]*schema.TagSample
}

// New builds a Worker for one device. writes is the channel the routing
// fabric enqueues this device's pending writes onto.
func New(device schema.DeviceConfig, tags []schema.TagConfig, ad adapter.Adapter, rec Recorder, writes <-chan WriteJob, log *logrus.Entry) *Worker {
	retries := device.RetryCount
	if retries <= 0 {
		retries = schema.DefaultRetryCount
	}
	// ScanIntervalMS is fully resolved by config.Load/ApplyDefaults before a
	// Worker is built: an explicit 0 here means "as fast as possible" (§8),
	// not "unset".
	scanInt := time.Duration(device.ScanIntervalMS) * time.Millisecond
	timeout := time.Duration(device.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = schema.DefaultTimeoutMS * time.Millisecond
	}

	return &Worker{
		device:  device,
		tags:    tags,
		ad:      ad,
		rec:     rec,
		writes:  writes,
		log:     log.WithField("driver", device.ID),
		scanInt: scanInt,
		timeout: timeout,
		retries: retries,
	}
}

// Run blocks until ctx is cancelled, publishing StatusStopped before
// returning. A non-SQL device with no host configured is published as
// stopped at once, every tag bad with the configuration error, and Run
// returns without waiting for ctx. wg.Done is called on return so the
// caller can wait for a clean shutdown of every worker (the context.WithCancel + sync.WaitGroup
// idiom this repo uses throughout for goroutine lifetime management).
func (w *Worker) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	w.publish(schema.StatusStarting, "iniciando")
	if w.device.LogEnabled {
		w.log.Infof("[%s] processo iniciado", w.device.Protocol)
	}

	if w.device.Options.Host == "" && w.device.Protocol != schema.ProtocolSQL {
		w.markAllBad("configuração inválida: endereço não fornecido")
		w.publish(schema.StatusStopped, "configuração inválida: endereço não fornecido")
		return
	}

	var lastStatus schema.Status
	var lastErrorLog time.Time

	for {
		select {
		case <-ctx.Done():
			w.publish(schema.StatusStopped, "parado")
			return
		default:
		}

		sess, connected := w.connectWithRetry(ctx, &lastStatus, &lastErrorLog)
		if !connected {
			if ctx.Err() != nil {
				w.publish(schema.StatusStopped, "parado")
				return
			}
			if w.device.LogEnabled {
				w.log.Warnf("máximo de %d tentativas de conexão atingido, aguardando %s", w.retries, longBackoff)
			}
			if !sleepCtx(ctx, longBackoff) {
				w.publish(schema.StatusStopped, "parado")
				return
			}
			continue
		}

		w.scanLoop(ctx, sess)
		_ = sess.Close()
	}
}

// connectWithRetry attempts to open a session up to w.retries times,
// returning the open session on success. Returns false if ctx was
// cancelled or the retry budget was exhausted.
func (w *Worker) connectWithRetry(ctx context.Context, lastStatus *schema.Status, lastErrorLog *time.Time) (adapter.Session, bool) {
	for attempt := 1; attempt <= w.retries; attempt++ {
		if ctx.Err() != nil {
			return nil, false
		}

		sess, err := w.ad.Open(ctx, w.device.Options, w.tags, w.timeout)
		if err == nil {
			if *lastStatus != schema.StatusConnected {
				if w.device.LogEnabled {
					w.log.Info("conexão estabelecida com sucesso")
				}
				*lastStatus = schema.StatusConnected
			}
			w.publish(schema.StatusConnected, "monitorando...")
			return sess, true
		}

		now := time.Now()
		if *lastStatus != schema.StatusDisconnected || now.Sub(*lastErrorLog) > errorLogInterval {
			if w.device.LogEnabled {
				w.log.Errorf("falha ao conectar (tentativa %d/%d): %s", attempt, w.retries, err)
			}
			*lastErrorLog = now
		}

		w.publish(schema.StatusDisconnected, err.Error())
		if *lastStatus != schema.StatusDisconnected {
			w.markAllBad("desconectado")
			*lastStatus = schema.StatusDisconnected
		}

		if attempt < w.retries {
			if !sleepCtx(ctx, connectRetryDelay) {
				return nil, false
			}
		}
	}
	return nil, false
}

// scanLoop reads every scan-enabled tag and drains pending writes once per
// tick, until the session dies or ctx is cancelled -- mirroring
// _communication_loop. A configured interval of 0 means "as fast as
// possible" (§8): no ticker is used, but an idle tick (nothing to read)
// yields the scheduler instead of spinning.
func (w *Worker) scanLoop(ctx context.Context, sess adapter.Session) {
	addrs := make([]adapter.AddressRead, 0, len(w.tags))
	for _, t := range w.tags {
		if !t.ScanEnabled || t.Address == "" {
			continue
		}
		addrs = append(addrs, adapter.AddressRead{TagID: t.ID, Address: t.Address, DataKind: t.DataKind})
	}

	var tickC <-chan time.Time
	if w.scanInt > 0 {
		ticker := time.NewTicker(w.scanInt)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		if !sess.Alive() {
			return
		}

		start := time.Now()
		w.scanOnce(ctx, sess, addrs)
		w.drainWrites(ctx, sess)
		latency := time.Since(start)

		w.rec.Put(&schema.DriverRecord{
			Config:      w.device,
			Status:      schema.StatusConnected,
			Detail:      "monitorando...",
			Timestamp:   time.Now(),
			Tags:        w.currentTags(),
			ScanLatency: latency,
		})

		if tickC != nil {
			select {
			case <-ctx.Done():
				return
			case <-tickC:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
		if len(addrs) == 0 {
			runtime.Gosched()
		}
	}
}

func (w *Worker) scanOnce(ctx context.Context, sess adapter.Session, addrs []adapter.AddressRead) {
	if asess, ok := sess.(adapter.AsyncSession); ok {
		w.drainAsync(asess)
		return
	}
	if len(addrs) == 0 {
		return
	}

	results := w.ad.Read(ctx, sess, addrs)
	now := time.Now()
	tags := make(map[string]*schema.TagSample, len(addrs))
	for i, ar := range addrs {
		r := results[i]
		sample := &schema.TagSample{
			TagID:     ar.TagID,
			DriverID:  w.device.ID,
			Address:   ar.Address,
			DataKind:  ar.DataKind,
			Timestamp: now,
		}
		if r.Err != nil {
			sample.Quality = schema.QualityBad
			sample.Detail = r.Err.Error()
		} else {
			sample.Value = r.Value
			sample.Quality = schema.QualityGood
			sample.Detail = "OK"
		}
		tags[ar.TagID] = sample
	}
	w.mergeTags(tags)
}

func (w *Worker) drainAsync(asess adapter.AsyncSession) {
	tags := map[string]*schema.TagSample{}
	for {
		select {
		case sample, ok := <-asess.Samples():
			if !ok {
				w.mergeTags(tags)
				return
			}
			ts := &schema.TagSample{
				TagID:     sample.TagID,
				DriverID:  w.device.ID,
				DataKind:  sample.DataKind,
				Timestamp: time.Now(),
			}
			if sample.Err != nil {
				ts.Quality = schema.QualityBad
				ts.Detail = sample.Err.Error()
			} else {
				ts.Value = sample.Value
				ts.Quality = schema.QualityGood
				ts.Detail = "OK"
			}
			tags[sample.TagID] = ts
		default:
			w.mergeTags(tags)
			return
		}
	}
}

// drainWrites processes every write job queued for this device, matching
// _process_write_queue: validate writability, coerce, issue the write, log
// the confirm-read outcome.
func (w *Worker) drainWrites(ctx context.Context, sess adapter.Session) {
	for {
		var job WriteJob
		select {
		case j, ok := <-w.writes:
			if !ok {
				return
			}
			job = j
		default:
			return
		}

		if job.Values != nil {
			w.writeBatch(ctx, sess, job)
			continue
		}
		w.writeSingle(ctx, sess, job)
	}
}

func (w *Worker) writeSingle(ctx context.Context, sess adapter.Session, job WriteJob) {
	tag := w.tagByID(job.TagID)
	if tag == nil || !tag.Writable {
		if w.device.LogEnabled {
			w.log.Warnf("escrita ignorada para tag %q (não encontrada ou sem permissão)", job.TagID)
		}
		return
	}

	result := w.ad.Write(ctx, sess, tag.Address, job.Value, tag.DataKind)
	if w.device.LogEnabled {
		if result.Err != nil {
			w.log.Errorf("erro na escrita da tag %q (endereço %q): %s", job.TagID, tag.Address, result.Err)
		} else {
			w.log.Infof("escrita na tag %q (endereço %q): valor=%v, confirmado=%v", job.TagID, tag.Address, job.Value, result.Confirmed)
		}
	}
}

func (w *Worker) writeBatch(ctx context.Context, sess adapter.Session, job WriteJob) {
	bw, ok := w.ad.(adapter.BatchWriter)
	if !ok {
		if w.device.LogEnabled {
			w.log.Warnf("escrita em lote ignorada: protocolo %q não suporta lote", w.device.Protocol)
		}
		return
	}

	columns := map[string]any{}
	for tagID, value := range job.Values {
		tag := w.tagByID(tagID)
		if tag == nil || !tag.Writable {
			continue
		}
		columns[tag.Address] = value
	}
	if len(columns) == 0 {
		return
	}

	result := bw.WriteBatch(ctx, sess, columns, job.RowID)
	if w.device.LogEnabled {
		if result.Err != nil {
			w.log.Errorf("erro na escrita em lote: %s", result.Err)
		} else {
			w.log.Infof("escrita em lote concluída: %v", columns)
		}
	}
}

func (w *Worker) tagByID(id string) *schema.TagConfig {
	for i := range w.tags {
		if w.tags[i].ID == id {
			return &w.tags[i]
		}
	}
	return nil
}

func (w *Worker) currentTags() map[string]*schema.TagSample {
	w.tagsMu.RLock()
	defer w.tagsMu.RUnlock()
	out := make(map[string]*schema.TagSample, len(w.tagsLast))
	for k, v := range w.tagsLast {
		out[k] = v
	}
	return out
}

func (w *Worker) mergeTags(tags map[string]*schema.TagSample) {
	w.tagsMu.Lock()
	defer w.tagsMu.Unlock()
	if w.tagsLast == nil {
		w.tagsLast = map[string]*schema.TagSample{}
	}
	for k, v := range tags {
		w.tagsLast[k] = v
	}
}

func (w *Worker) markAllBad(detail string) {
	tags := make(map[string]*schema.TagSample, len(w.tags))
	now := time.Now()
	for _, t := range w.tags {
		tags[t.ID] = &schema.TagSample{
			TagID:     t.ID,
			DriverID:  w.device.ID,
			Name:      t.Name,
			Address:   t.Address,
			DataKind:  t.DataKind,
			Quality:   schema.QualityBad,
			Timestamp: now,
			Detail:    detail,
		}
	}
	w.mergeTags(tags)
	w.rec.Put(&schema.DriverRecord{
		Config:    w.device,
		Status:    schema.StatusDisconnected,
		Detail:    detail,
		Timestamp: now,
		Tags:      w.currentTags(),
	})
}

func (w *Worker) publish(status schema.Status, detail string) {
	w.rec.Put(&schema.DriverRecord{
		Config:    w.device,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now(),
		Tags:      w.currentTags(),
	})
}

// sleepCtx sleeps for d or returns early (false) if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
