// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingest

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EngRafael35/Inlogic-ia/internal/logbus"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
	"github.com/EngRafael35/Inlogic-ia/internal/snapshot"
)

type collectingCollaborator struct {
	mu   sync.Mutex
	seen []Event
}

func (c *collectingCollaborator) Ingest(events []Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, events...)
	return nil
}

func (c *collectingCollaborator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestDiffTagsEmitsOnQualityChange(t *testing.T) {
	store := snapshot.New()
	store.Put(&schema.DriverRecord{
		Config: schema.DeviceConfig{ID: "d1"},
		Status: schema.StatusConnected,
		Tags: map[string]*schema.TagSample{
			"t1": {TagID: "t1", Quality: schema.QualityGood},
		},
	})

	collab := &collectingCollaborator{}
	f := New(store, collab, discardLogger(), 10*time.Millisecond)

	events := f.diffTags()
	require.Len(t, events, 1)
	assert.Equal(t, EventTag, events[0].Kind)

	// Second diff with no change should emit nothing more.
	assert.Empty(t, f.diffTags())
}

func TestDiffTagsEmitsOnValueChangeAloneEvenIfQualityStable(t *testing.T) {
	store := snapshot.New()
	put := func(value any) {
		store.Put(&schema.DriverRecord{
			Config: schema.DeviceConfig{ID: "d1"},
			Status: schema.StatusConnected,
			Tags: map[string]*schema.TagSample{
				"t1": {TagID: "t1", Quality: schema.QualityGood, Value: value},
			},
		})
	}

	f := New(store, &collectingCollaborator{}, discardLogger(), 10*time.Millisecond)

	put(1)
	require.Len(t, f.diffTags(), 1)

	// Quality stays good but the value itself changes: still an event.
	put(2)
	require.Len(t, f.diffTags(), 1, "a value change must emit even when quality is unchanged")

	// No change at all: nothing further.
	put(2)
	assert.Empty(t, f.diffTags())
}

func TestDiffDriversEmitsOnScanLatencyChangeAloneEvenIfStatusStable(t *testing.T) {
	store := snapshot.New()
	put := func(latency time.Duration) {
		store.Put(&schema.DriverRecord{
			Config:      schema.DeviceConfig{ID: "d1"},
			Status:      schema.StatusConnected,
			ScanLatency: latency,
		})
	}

	f := New(store, &collectingCollaborator{}, discardLogger(), 10*time.Millisecond)

	put(5 * time.Millisecond)
	require.Len(t, f.diffDrivers(), 1)

	// Status stays connected but scan latency changes: still an event.
	put(50 * time.Millisecond)
	require.Len(t, f.diffDrivers(), 1, "a scan latency change must emit even when status is unchanged")
}

func TestDiffDriversEmitsOnStatusChange(t *testing.T) {
	store := snapshot.New()
	store.Put(&schema.DriverRecord{Config: schema.DeviceConfig{ID: "d1"}, Status: schema.StatusConnected})

	f := New(store, &collectingCollaborator{}, discardLogger(), 10*time.Millisecond)
	events := f.diffDrivers()
	require.Len(t, events, 1)
	assert.Equal(t, EventDriver, events[0].Kind)

	store.Put(&schema.DriverRecord{Config: schema.DeviceConfig{ID: "d1"}, Status: schema.StatusDisconnected})
	events = f.diffDrivers()
	require.Len(t, events, 1)
}

func TestProcessEventCarriesWorkerCountAndRecentLogs(t *testing.T) {
	store := snapshot.New()
	f := New(store, &collectingCollaborator{}, discardLogger(), 10*time.Millisecond)

	bus, err := logbus.Open(t.TempDir())
	require.NoError(t, err)
	defer bus.Close()
	bus.Logger().Info("first")
	bus.Logger().Info("second")

	f.Logs = bus
	f.WorkerCount = func() int { return 3 }

	ev, ok := f.processEvent()
	require.True(t, ok)
	assert.Equal(t, 3, ev.WorkerCount)
	assert.Len(t, ev.RecentLogs, 2)
}

func TestFanOutStartStop(t *testing.T) {
	store := snapshot.New()
	store.Put(&schema.DriverRecord{
		Config: schema.DeviceConfig{ID: "d1"},
		Status: schema.StatusConnected,
		Tags:   map[string]*schema.TagSample{"t1": {TagID: "t1", Quality: schema.QualityGood}},
	})

	collab := &collectingCollaborator{}
	f := New(store, collab, discardLogger(), 10*time.Millisecond)

	require.NoError(t, f.Start(t.Context()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.Stop())

	assert.GreaterOrEqual(t, collab.count(), 1)
}
