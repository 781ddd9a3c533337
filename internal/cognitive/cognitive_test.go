// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cognitive

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EngRafael35/Inlogic-ia/internal/ingest"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func tagEvent(tagID string, value any, quality schema.Quality) ingest.Event {
	return ingest.Event{
		Kind:     ingest.EventTag,
		DriverID: "d1",
		Tag:      &schema.TagSample{TagID: tagID, Value: value, Quality: quality},
		At:       time.Now(),
	}
}

func TestIngestTagRegistersNodeAndStats(t *testing.T) {
	c := New(discardLogger())
	require.NoError(t, c.Ingest([]ingest.Event{tagEvent("t1", 10.0, schema.QualityGood)}))

	states := c.Knowledge().States("tag:t1")
	require.Contains(t, states, "tag:t1")
	assert.Equal(t, "normal", states["tag:t1"].Health)
}

func TestIngestTagFlagsAnomaly(t *testing.T) {
	c := New(discardLogger())

	var events []ingest.Event
	for i := 0; i < 15; i++ {
		events = append(events, tagEvent("t1", 10.0+float64(i%2), schema.QualityGood))
	}
	require.NoError(t, c.Ingest(events))

	// A wild outlier after 15 samples alternating between 10 and 11 should
	// flag as anomalous (a perfectly constant history has zero stddev and
	// never flags, see runningStats.zscore).
	require.NoError(t, c.Ingest([]ingest.Event{tagEvent("t1", 9000.0, schema.QualityGood)}))

	states := c.Knowledge().States("tag:t1")
	assert.Equal(t, "anomalia", states["tag:t1"].Health)
	assert.NotEmpty(t, c.Knowledge().Recent("anomalias", 0))
}

func TestIngestTagBadQualityMarksUnhealthy(t *testing.T) {
	c := New(discardLogger())
	require.NoError(t, c.Ingest([]ingest.Event{tagEvent("t1", 1.0, schema.QualityBad)}))

	states := c.Knowledge().States("tag:t1")
	assert.Equal(t, "ruim", states["tag:t1"].Health)
}

func TestIngestDriverDisconnectSharesInsight(t *testing.T) {
	c := New(discardLogger())
	up := ingest.Event{Kind: ingest.EventDriver, DriverID: "d1", Driver: &schema.DriverRecord{Status: schema.StatusConnected}}
	down := ingest.Event{Kind: ingest.EventDriver, DriverID: "d1", Driver: &schema.DriverRecord{Status: schema.StatusDisconnected}}

	require.NoError(t, c.Ingest([]ingest.Event{up}))
	require.NoError(t, c.Ingest([]ingest.Event{down}))

	states := c.Knowledge().States("driver:d1")
	assert.Equal(t, "desconectado", states["driver:d1"].Health)
	assert.NotEmpty(t, c.Knowledge().Recent("anomalias", 0))
}

func TestValidateWriteRateLimits(t *testing.T) {
	c := New(discardLogger())

	var rejected bool
	for i := 0; i < DefaultWriteRateBurst+5; i++ {
		if err := c.ValidateWrite("t1", 1.0); err != nil {
			rejected = true
			break
		}
	}
	assert.True(t, rejected, "expected rate limiter to reject a write past the burst allowance")
}

func TestStatusAndMetrics(t *testing.T) {
	c := New(discardLogger())
	require.NoError(t, c.Ingest([]ingest.Event{tagEvent("t1", 1.0, schema.QualityGood)}))

	status := c.Status()
	assert.Equal(t, 1, status["nos_registrados"])

	metrics := c.Metrics()
	assert.Contains(t, metrics, "tag:t1")
}
