// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cognitive is the cognitive node set (spec.md §4.6): a per-tag
// running-stats/anomaly node, a per-driver health node, a process node,
// and the knowledge graph they all publish into. It implements the
// ingestion fan-out's Collaborator contract (Ingest) and the write-routing
// fabric's policy gate (ValidateWrite). Grounded on
// original_source/ia/core/percepcao.py (per-tag numeric processing) and
// original_source/ia/celebro_coletivo/grafo_conhecimento.py (the shared
// knowledge graph every node publishes into).
package cognitive

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/EngRafael35/Inlogic-ia/internal/ingest"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// DefaultWriteRateLimit caps how often a single tag may be written,
// rejecting bursts past it (spec.md §4.6 "validate_write").
const (
	DefaultWriteRateLimit = 5  // writes per second
	DefaultWriteRateBurst = 10
)

// Collective is the full cognitive node set for one running gateway.
type Collective struct {
	graph *KnowledgeGraph
	log   *logrus.Entry

	mu         sync.Mutex
	tagStats   map[string]*runningStats
	limiters   map[string]*rate.Limiter
	driverSeen map[string]schema.Status
}

func New(log *logrus.Entry) *Collective {
	return &Collective{
		graph:      NewKnowledgeGraph(),
		log:        log,
		tagStats:   map[string]*runningStats{},
		limiters:   map[string]*rate.Limiter{},
		driverSeen: map[string]schema.Status{},
	}
}

// Knowledge exposes the underlying graph for the HTTP control plane's
// /api/ia/conhecimento endpoint.
func (c *Collective) Knowledge() *KnowledgeGraph { return c.graph }

// Ingest implements ingest.Collaborator: folds each event into the
// relevant node's state and shares an anomaly insight when a tag reading
// crosses the z-score threshold.
func (c *Collective) Ingest(events []ingest.Event) error {
	for _, e := range events {
		switch e.Kind {
		case ingest.EventTag:
			c.ingestTag(e)
		case ingest.EventDriver:
			c.ingestDriver(e)
		case ingest.EventProcess:
			c.ingestProcess(e)
		}
	}
	return nil
}

func (c *Collective) ingestTag(e ingest.Event) {
	if e.Tag == nil {
		return
	}
	nodeID := "tag:" + e.Tag.TagID
	c.graph.Register(nodeID, "tag")

	f, ok := toFloat(e.Tag.Value)
	if !ok {
		c.graph.UpdateNode(nodeID, "sem_dados_numericos", nil)
		return
	}

	c.mu.Lock()
	stats, ok := c.tagStats[e.Tag.TagID]
	if !ok {
		stats = &runningStats{}
		c.tagStats[e.Tag.TagID] = stats
	}
	anomalous := stats.isAnomaly(f)
	stats.update(f)
	mean, sd := stats.mean, stats.stddev()
	c.mu.Unlock()

	health := "normal"
	if e.Tag.Quality == schema.QualityBad {
		health = "ruim"
	} else if anomalous {
		health = "anomalia"
	}
	c.graph.UpdateNode(nodeID, health, map[string]any{
		"media":        mean,
		"desvio":       sd,
		"ultimo_valor": f,
	})

	if anomalous {
		c.graph.Share(nodeID, "anomalias", map[string]any{
			"tag_id": e.Tag.TagID,
			"valor":  f,
			"media":  mean,
			"desvio": sd,
		})
		if c.log != nil {
			c.log.Warnf("anomalia detectada na tag %q: valor=%v media=%.3f desvio=%.3f", e.Tag.TagID, f, mean, sd)
		}
	}
}

func (c *Collective) ingestDriver(e ingest.Event) {
	if e.Driver == nil {
		return
	}
	nodeID := "driver:" + e.DriverID
	c.graph.Register(nodeID, "driver")

	health := "conectado"
	if e.Driver.Status != schema.StatusConnected {
		health = "desconectado"
	}

	c.mu.Lock()
	prev, seen := c.driverSeen[e.DriverID]
	c.driverSeen[e.DriverID] = e.Driver.Status
	c.mu.Unlock()

	c.graph.UpdateNode(nodeID, health, map[string]any{
		"status":       e.Driver.Status,
		"detalhe":      e.Driver.Detail,
		"scan_latency": e.Driver.ScanLatency.String(),
	})

	if seen && prev == schema.StatusConnected && e.Driver.Status != schema.StatusConnected {
		c.graph.Share(nodeID, "anomalias", map[string]any{
			"driver_id": e.DriverID,
			"detalhe":   e.Driver.Detail,
		})
	}
}

func (c *Collective) ingestProcess(e ingest.Event) {
	nodeID := "process:" + e.ProcessID
	c.graph.Register(nodeID, "process")
	c.graph.UpdateNode(nodeID, "normal", map[string]any{
		"cpu_pct":          e.CPUPct,
		"rss_bytes":        e.RSSBytes,
		"worker_count":     e.WorkerCount,
		"recent_log_count": len(e.RecentLogs),
	})
}

// ValidateWrite implements routing.PolicyGate: rejects writes past the
// per-tag rate limit (spec.md §4.6).
func (c *Collective) ValidateWrite(tagID string, value any) error {
	c.mu.Lock()
	limiter, ok := c.limiters[tagID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(DefaultWriteRateLimit), DefaultWriteRateBurst)
		c.limiters[tagID] = limiter
	}
	c.mu.Unlock()

	if !limiter.Allow() {
		return fmt.Errorf("limite de taxa de escrita excedido para a tag %q", tagID)
	}
	return nil
}

// Status summarizes the collective's current health for
// "/api/ia/status".
func (c *Collective) Status() map[string]any {
	states := c.graph.States()
	counts := map[string]int{}
	for _, s := range states {
		counts[s.Health]++
	}
	return map[string]any{
		"nos_registrados": len(states),
		"saude":           counts,
		"versao":          c.graph.Version(),
		"atualizado_em":   time.Now(),
	}
}

// Metrics returns every node's current metric set for "/api/ia/metricas".
func (c *Collective) Metrics() map[string]NodeState {
	return c.graph.States()
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
