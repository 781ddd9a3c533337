// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest is the ingestion fan-out (spec.md §4.5): on a fixed
// interval it diffs the current snapshot against the last observed state
// and emits tag/driver/process events to the cognitive collaborator (C6).
// Grounded on internal/taskmanager/metricPullWorker.go's
// gocron-scheduled periodic pull job, here pulling from the shared
// snapshot instead of an upstream metrics backend.
package ingest

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/EngRafael35/Inlogic-ia/internal/logbus"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
	"github.com/EngRafael35/Inlogic-ia/internal/snapshot"
)

// DefaultRecentLogCount is how many of the most recent log records ride
// along on each process event (spec.md §4.5).
const DefaultRecentLogCount = 20

// DefaultInterval is the fan-out period when no override is configured
// (spec.md §4.5).
const DefaultInterval = 2 * time.Second

// EventKind classifies one emitted event.
type EventKind string

const (
	EventTag     EventKind = "tag"
	EventDriver  EventKind = "driver"
	EventProcess EventKind = "process"
)

// Event is one diffed change handed to the cognitive collaborator.
type Event struct {
	Kind      EventKind
	DriverID  string
	Tag       *schema.TagSample
	Driver    *schema.DriverRecord
	ProcessID string
	CPUPct    float64
	RSSBytes  uint64
	// WorkerCount and RecentLogs are only populated on EventProcess (§4.5):
	// the active per-device worker count and the most recent
	// DefaultRecentLogCount log records.
	WorkerCount int
	RecentLogs  []schema.LogRecord
	At          time.Time
}

// tagState is the subset of a TagSample change detection compares against
// the last-emitted value -- Timestamp is excluded, it changes every scan
// regardless of whether the sample itself did (spec.md §4.5).
type tagState struct {
	value   any
	quality schema.Quality
	detail  string
}

// driverState is the subset of a DriverRecord spec.md §4.5 names as the
// driver's "performance envelope".
type driverState struct {
	status  schema.Status
	detail  string
	latency time.Duration
}

// Collaborator is the cognitive node set's ingestion contract (C6,
// spec.md §4.6 "Ingest"). The fan-out calls Ingest synchronously from its
// tick, so a slow collaborator delays that tick; an error returned by
// Ingest is logged and the next tick proceeds as usual.
type Collaborator interface {
	Ingest(events []Event) error
}

// FanOut owns the gocron scheduler driving the periodic diff/emit cycle.
type FanOut struct {
	store    *snapshot.Store
	collab   Collaborator
	log      *logrus.Entry
	interval time.Duration
	sched    gocron.Scheduler

	// Logs and WorkerCount feed the per-tick process event (§4.5). Both are
	// optional -- a nil Logs or WorkerCount simply leaves that part of the
	// event at its zero value, so existing construction sites and tests
	// that only care about tag/driver diffing are unaffected.
	Logs        *logbus.Bus
	WorkerCount func() int

	lastTags    map[string]tagState
	lastDrivers map[string]driverState
	pid         int32
}

// New builds a FanOut that reads store on every tick and forwards diffed
// events to collab. interval<=0 uses DefaultInterval.
func New(store *snapshot.Store, collab Collaborator, log *logrus.Entry, interval time.Duration) *FanOut {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &FanOut{
		store:       store,
		collab:      collab,
		log:         log,
		interval:    interval,
		lastTags:    map[string]tagState{},
		lastDrivers: map[string]driverState{},
	}
}

// Start schedules the periodic tick and begins running it immediately.
func (f *FanOut) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(f.interval),
		gocron.NewTask(func() { f.tick() }),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	f.sched = sched
	sched.Start()

	go func() {
		<-ctx.Done()
		_ = f.sched.Shutdown()
	}()
	return nil
}

// Stop shuts the scheduler down, blocking until its last tick finishes.
func (f *FanOut) Stop() error {
	if f.sched == nil {
		return nil
	}
	return f.sched.Shutdown()
}

func (f *FanOut) tick() {
	events := f.diffTags()
	events = append(events, f.diffDrivers()...)
	if ev, ok := f.processEvent(); ok {
		events = append(events, ev)
	}
	if len(events) == 0 || f.collab == nil {
		return
	}

	if err := f.collab.Ingest(events); err != nil {
		f.log.Warnf("ingestão recusada pelo coletor cognitivo: %s", err)
	}
}

func (f *FanOut) diffTags() []Event {
	now := time.Now()
	var events []Event
	for _, rec := range f.store.All() {
		for id, tag := range rec.Tags {
			cur := tagState{value: tag.Value, quality: tag.Quality, detail: tag.Detail}
			if prev, ok := f.lastTags[id]; !ok || prev != cur {
				f.lastTags[id] = cur
				events = append(events, Event{Kind: EventTag, DriverID: rec.Config.ID, Tag: tag, At: now})
			}
		}
	}
	return events
}

func (f *FanOut) diffDrivers() []Event {
	now := time.Now()
	var events []Event
	for id, rec := range f.store.All() {
		cur := driverState{status: rec.Status, detail: rec.Detail, latency: rec.ScanLatency}
		if prev, ok := f.lastDrivers[id]; !ok || prev != cur {
			f.lastDrivers[id] = cur
			events = append(events, Event{Kind: EventDriver, DriverID: id, Driver: rec, At: now})
		}
	}
	return events
}

// processEvent reports this process's own CPU/RSS usage (spec.md §4.5,
// grounded on the original's psutil-based self-monitoring).
func (f *FanOut) processEvent() (Event, bool) {
	if f.pid == 0 {
		f.pid = int32(currentPID())
	}

	p, err := process.NewProcess(f.pid)
	if err != nil {
		return Event{}, false
	}
	cpuPct, err := p.CPUPercent()
	if err != nil {
		return Event{}, false
	}
	mem, err := p.MemoryInfo()
	if err != nil || mem == nil {
		return Event{}, false
	}

	var workers int
	if f.WorkerCount != nil {
		workers = f.WorkerCount()
	}
	var recent []schema.LogRecord
	if f.Logs != nil {
		recent = f.Logs.Recent(DefaultRecentLogCount)
	}

	return Event{
		Kind:        EventProcess,
		ProcessID:   pidString(f.pid),
		CPUPct:      cpuPct,
		RSSBytes:    mem.RSS,
		WorkerCount: workers,
		RecentLogs:  recent,
		At:          time.Now(),
	}, true
}
