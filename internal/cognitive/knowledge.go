// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cognitive

import (
	"sync"
	"time"
)

// NodeState is one cognitive node's published status, grounded on
// original_source/ia/celebro_coletivo/grafo_conhecimento.py's
// estados_dos_nos map (tipo/saude/metricas/ultima_atualizacao).
type NodeState struct {
	Type      string
	Health    string
	Metrics   map[string]any
	UpdatedAt time.Time
}

// Insight is one shared discovery published onto the knowledge graph's
// "quadro de avisos" (insights_compartilhados).
type Insight struct {
	Origin    string
	Data      map[string]any
	Timestamp time.Time
}

// KnowledgeGraph is the collective memory every cognitive node registers
// into and publishes insights onto -- the Go analogue of
// GrafoDeConhecimento, backed by a plain mutex-guarded map instead of a
// multiprocessing.Manager dict since everything here lives in one process.
type KnowledgeGraph struct {
	mu       sync.RWMutex
	nodes    map[string]*NodeState
	insights map[string][]Insight
	version  int64
}

func NewKnowledgeGraph() *KnowledgeGraph {
	return &KnowledgeGraph{
		nodes: map[string]*NodeState{},
		insights: map[string][]Insight{
			"anomalias":   nil,
			"correlacoes": nil,
			"otimizacoes": nil,
		},
	}
}

// Register adds a node to the map if not already present, mirroring
// registrar_no's idempotence.
func (g *KnowledgeGraph) Register(id, kind string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &NodeState{Type: kind, Health: "iniciando", Metrics: map[string]any{}, UpdatedAt: time.Now()}
}

// UpdateNode merges metrics/health into an already-registered node.
func (g *KnowledgeGraph) UpdateNode(id, health string, metrics map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	if health != "" {
		n.Health = health
	}
	for k, v := range metrics {
		n.Metrics[k] = v
	}
	n.UpdatedAt = time.Now()
}

// Share publishes a discovery under kind (one of "anomalias",
// "correlacoes", "otimizacoes"), mirroring compartilhar_conhecimento.
func (g *KnowledgeGraph) Share(origin, kind string, data map[string]any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.insights[kind]; !ok {
		return false
	}
	g.insights[kind] = append(g.insights[kind], Insight{Origin: origin, Data: data, Timestamp: time.Now()})
	g.version++
	return true
}

// Recent returns the last limit insights of kind, newest last.
func (g *KnowledgeGraph) Recent(kind string, limit int) []Insight {
	g.mu.RLock()
	defer g.mu.RUnlock()
	all := g.insights[kind]
	if limit <= 0 || limit >= len(all) {
		out := make([]Insight, len(all))
		copy(out, all)
		return out
	}
	out := make([]Insight, limit)
	copy(out, all[len(all)-limit:])
	return out
}

// States returns every node's current state, or only the requested ids
// when non-empty (consultar_estados_dos_nos).
func (g *KnowledgeGraph) States(ids ...string) map[string]NodeState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := map[string]NodeState{}
	if len(ids) == 0 {
		for id, n := range g.nodes {
			out[id] = *n
		}
		return out
	}
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			out[id] = *n
		}
	}
	return out
}

// Version returns the monotonically increasing knowledge version,
// incremented on every Share call.
func (g *KnowledgeGraph) Version() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}
