// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package snapshot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

func TestPutGet(t *testing.T) {
	s := New()
	rec := &schema.DriverRecord{
		Config: schema.DeviceConfig{ID: "d1"},
		Status: schema.StatusConnected,
		Tags: map[string]*schema.TagSample{
			"t1": {TagID: "t1", Value: 7},
		},
	}
	s.Put(rec)

	got := s.Get("d1")
	require.NotNil(t, got)
	assert.Equal(t, schema.StatusConnected, got.Status)

	tag, ok := s.Tag("t1")
	require.True(t, ok)
	assert.Equal(t, 7, tag.Value)

	_, ok = s.Tag("unknown")
	assert.False(t, ok)
}

func TestAllIsIndependentCopy(t *testing.T) {
	s := New()
	s.Put(&schema.DriverRecord{Config: schema.DeviceConfig{ID: "d1"}})

	all := s.All()
	all["d2"] = &schema.DriverRecord{Config: schema.DeviceConfig{ID: "d2"}}

	assert.Nil(t, s.Get("d2"))
}

func TestConcurrentPutGet(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Put(&schema.DriverRecord{Config: schema.DeviceConfig{ID: "d"}, Timestamp: time.Now()})
			_ = s.Get("d")
		}(i)
	}
	wg.Wait()
	assert.NotNil(t, s.Get("d"))
}

func TestStaleSince(t *testing.T) {
	s := New()
	s.Put(&schema.DriverRecord{Config: schema.DeviceConfig{ID: "old"}, Timestamp: time.Now().Add(-time.Hour)})
	s.Put(&schema.DriverRecord{Config: schema.DeviceConfig{ID: "fresh"}, Timestamp: time.Now()})

	stale := s.StaleSince(time.Now().Add(-time.Minute))
	assert.Contains(t, stale, "old")
	assert.NotContains(t, stale, "fresh")
}

func TestResetAndDelete(t *testing.T) {
	s := New()
	s.Put(&schema.DriverRecord{Config: schema.DeviceConfig{ID: "d1"}})
	s.Delete("d1")
	assert.Nil(t, s.Get("d1"))

	s.Put(&schema.DriverRecord{Config: schema.DeviceConfig{ID: "d2"}})
	s.Reset()
	assert.Empty(t, s.All())
}
