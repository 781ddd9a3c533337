// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

func devicesAndTags() ([]schema.DeviceConfig, []schema.TagConfig) {
	devices := []schema.DeviceConfig{{ID: "d1"}}
	tags := []schema.TagConfig{
		{ID: "t1", DriverID: "d1", Address: "100", Writable: true},
		{ID: "t2", DriverID: "d1", Address: "200", Writable: false},
	}
	return devices, tags
}

func TestEnqueueWriteRoutesToOwningDevice(t *testing.T) {
	r := New(nil)
	devices, tags := devicesAndTags()
	recvs := r.Rebuild(devices, tags)

	require.NoError(t, r.EnqueueWrite("t1", 5))

	select {
	case job := <-recvs["d1"]:
		assert.Equal(t, "t1", job.TagID)
		assert.Equal(t, 5, job.Value)
	default:
		t.Fatal("expected job enqueued on d1")
	}
}

func TestEnqueueWriteRejectsUnknownOrReadOnlyTag(t *testing.T) {
	r := New(nil)
	devices, tags := devicesAndTags()
	r.Rebuild(devices, tags)

	assert.ErrorIs(t, r.EnqueueWrite("unknown", 1), ErrUnknownTag)
	assert.ErrorIs(t, r.EnqueueWrite("t2", 1), ErrWriteNotAllowed)
}

type denyGate struct{}

func (denyGate) ValidateWrite(tagID string, value any) error {
	return fmt.Errorf("denied")
}

func TestPolicyGateCanRejectWrite(t *testing.T) {
	r := New(denyGate{})
	devices, tags := devicesAndTags()
	r.Rebuild(devices, tags)

	err := r.EnqueueWrite("t1", 1)
	assert.Error(t, err)
}

func TestQueueFullIsRejected(t *testing.T) {
	r := New(nil)
	devices, tags := devicesAndTags()
	recvs := r.Rebuild(devices, tags)
	_ = recvs

	for i := 0; i < DefaultQueueCapacity; i++ {
		require.NoError(t, r.EnqueueWrite("t1", i))
	}
	assert.ErrorIs(t, r.EnqueueWrite("t1", 999), ErrQueueFull)
}

func TestBatchWriteRoutesByDriverID(t *testing.T) {
	r := New(nil)
	devices, tags := devicesAndTags()
	recvs := r.Rebuild(devices, tags)

	require.NoError(t, r.EnqueueBatchWrite("d1", map[string]any{"t1": 1}, "42"))

	select {
	case job := <-recvs["d1"]:
		assert.Equal(t, "42", job.RowID)
		assert.Equal(t, 1, job.Values["t1"])
	default:
		t.Fatal("expected batch job enqueued on d1")
	}
}

func TestEnqueueUnknownDriver(t *testing.T) {
	r := New(nil)
	r.Rebuild(nil, nil)
	assert.ErrorIs(t, r.EnqueueBatchWrite("ghost", map[string]any{"a": 1}, ""), ErrUnknownDriver)
}

func TestDrainAllReportsDiscardedJobsPerDevice(t *testing.T) {
	r := New(nil)
	devices, tags := devicesAndTags()
	r.Rebuild(devices, tags)

	require.NoError(t, r.EnqueueWrite("t1", 1))
	require.NoError(t, r.EnqueueWrite("t1", 2))

	dropped := r.DrainAll()
	assert.Equal(t, 2, dropped["d1"])

	select {
	case <-r.queues["d1"]:
		t.Fatal("expected queue to be empty after DrainAll")
	default:
	}
}

func TestDrainAllOmitsEmptyQueues(t *testing.T) {
	r := New(nil)
	devices, tags := devicesAndTags()
	r.Rebuild(devices, tags)

	dropped := r.DrainAll()
	_, ok := dropped["d1"]
	assert.False(t, ok)
}
