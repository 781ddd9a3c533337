// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package driverworker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EngRafael35/Inlogic-ia/internal/adapter"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

type fakeSession struct{ alive bool }

func (s *fakeSession) Alive() bool { return s.alive }
func (s *fakeSession) Close() error {
	s.alive = false
	return nil
}

type fakeAdapter struct {
	mu        sync.Mutex
	openErr   error
	openCalls int
	readCalls int
	reads     map[string]any
	writes    []adapter.WriteResult
}

func (a *fakeAdapter) Open(ctx context.Context, opts schema.DeviceOptions, tags []schema.TagConfig, timeout time.Duration) (adapter.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.openCalls++
	if a.openErr != nil {
		return nil, a.openErr
	}
	return &fakeSession{alive: true}, nil
}

func (a *fakeAdapter) Read(ctx context.Context, sess adapter.Session, addrs []adapter.AddressRead) []adapter.ReadResult {
	a.mu.Lock()
	a.readCalls++
	a.mu.Unlock()
	out := make([]adapter.ReadResult, len(addrs))
	for i, ar := range addrs {
		out[i] = adapter.ReadResult{Value: a.reads[ar.Address], DataKind: ar.DataKind}
	}
	return out
}

func (a *fakeAdapter) Write(ctx context.Context, sess adapter.Session, address string, value any, dataKind schema.DataKind) adapter.WriteResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := adapter.WriteResult{Confirmed: true, ConfirmValue: value}
	a.writes = append(a.writes, r)
	return r
}

type fakeRecorder struct {
	mu   sync.Mutex
	last *schema.DriverRecord
}

func (r *fakeRecorder) Put(rec *schema.DriverRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = rec
}

func (r *fakeRecorder) snapshot() *schema.DriverRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestWorkerScanPublishesTags(t *testing.T) {
	device := schema.DeviceConfig{
		ID:             "d1",
		Protocol:       schema.ProtocolModbusTCP,
		ScanIntervalMS: 10,
		TimeoutMS:      50,
		RetryCount:     3,
		LogEnabled:     false,
		Options:        schema.DeviceOptions{Host: "10.0.0.1"},
	}
	tags := []schema.TagConfig{
		{ID: "t1", DriverID: "d1", Address: "100", DataKind: schema.KindInt, ScanEnabled: true},
	}
	ad := &fakeAdapter{reads: map[string]any{"100": 42}}
	rec := &fakeRecorder{}
	writes := make(chan WriteJob)

	w := New(device, tags, ad, rec, writes, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go w.Run(ctx, &wg)
	wg.Wait()

	snap := rec.snapshot()
	require.NotNil(t, snap)
	tag, ok := snap.Tags["t1"]
	require.True(t, ok)
	assert.Equal(t, schema.QualityGood, tag.Quality)
	assert.Equal(t, 42, tag.Value)
}

func TestWorkerMarksTagsBadOnConnectFailure(t *testing.T) {
	device := schema.DeviceConfig{
		ID:         "d2",
		Protocol:   schema.ProtocolModbusTCP,
		RetryCount: 2,
		TimeoutMS:  10,
		Options:    schema.DeviceOptions{Host: "10.0.0.2"},
	}
	tags := []schema.TagConfig{{ID: "t2", DriverID: "d2", Address: "1", DataKind: schema.KindBool, ScanEnabled: true}}
	ad := &fakeAdapter{openErr: assertErr{"refused"}}
	rec := &fakeRecorder{}
	writes := make(chan WriteJob)

	w := New(device, tags, ad, rec, writes, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go w.Run(ctx, &wg)
	wg.Wait()

	snap := rec.snapshot()
	require.NotNil(t, snap)
	assert.GreaterOrEqual(t, ad.openCalls, 1)
	tag, ok := snap.Tags["t2"]
	require.True(t, ok)
	assert.Equal(t, schema.QualityBad, tag.Quality)
}

func TestWorkerDrainsWriteJob(t *testing.T) {
	device := schema.DeviceConfig{
		ID:             "d3",
		Protocol:       schema.ProtocolModbusTCP,
		ScanIntervalMS: 10,
		TimeoutMS:      50,
		RetryCount:     3,
		Options:        schema.DeviceOptions{Host: "10.0.0.3"},
	}
	tags := []schema.TagConfig{
		{ID: "t3", DriverID: "d3", Address: "200", DataKind: schema.KindInt, ScanEnabled: true, Writable: true},
	}
	ad := &fakeAdapter{reads: map[string]any{"200": 1}}
	rec := &fakeRecorder{}
	writes := make(chan WriteJob, 1)
	writes <- WriteJob{TagID: "t3", Value: 99}

	w := New(device, tags, ad, rec, writes, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go w.Run(ctx, &wg)
	wg.Wait()

	ad.mu.Lock()
	defer ad.mu.Unlock()
	require.Len(t, ad.writes, 1)
	assert.Equal(t, 99, ad.writes[0].ConfirmValue)
}

// TestWorkerZeroScanIntervalScansRepeatedly exercises the ScanIntervalMS: 0
// boundary (§8): the scan loop must not panic (time.NewTicker(0) would) and
// must keep scanning without waiting on a ticker.
func TestWorkerZeroScanIntervalScansRepeatedly(t *testing.T) {
	device := schema.DeviceConfig{
		ID:             "d4",
		Protocol:       schema.ProtocolModbusTCP,
		ScanIntervalMS: 0,
		TimeoutMS:      50,
		RetryCount:     3,
		Options:        schema.DeviceOptions{Host: "10.0.0.4"},
	}
	tags := []schema.TagConfig{
		{ID: "t4", DriverID: "d4", Address: "300", DataKind: schema.KindInt, ScanEnabled: true},
	}
	ad := &fakeAdapter{reads: map[string]any{"300": 7}}
	rec := &fakeRecorder{}
	writes := make(chan WriteJob)

	w := New(device, tags, ad, rec, writes, discardLogger())
	assert.Equal(t, time.Duration(0), w.scanInt)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go w.Run(ctx, &wg)
	wg.Wait()

	ad.mu.Lock()
	defer ad.mu.Unlock()
	assert.Greater(t, ad.readCalls, 1, "zero interval should scan repeatedly, not once")
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
