// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package supervisor is the single top-level orchestrator (SPEC_FULL.md
// §2): it loads configuration, builds the routing table and one
// driverworker.Worker per device, starts the ingestion fan-out (the log
// bus is opened by the caller and passed to New), and implements the stop/reload/rebuild/resume sequence behind
// "/api/system/restart". Grounded on the lifecycle shape of
// internal/memorystore/memorystore.go's Init (context.WithCancel +
// sync.WaitGroup for a whole generation of goroutines) generalized from
// one memory store to a fleet of per-device workers restarted together.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EngRafael35/Inlogic-ia/internal/adapter"
	"github.com/EngRafael35/Inlogic-ia/internal/adapter/controllogix"
	"github.com/EngRafael35/Inlogic-ia/internal/adapter/modbus"
	"github.com/EngRafael35/Inlogic-ia/internal/adapter/mqtt"
	sqladapter "github.com/EngRafael35/Inlogic-ia/internal/adapter/sql"
	"github.com/EngRafael35/Inlogic-ia/internal/config"
	"github.com/EngRafael35/Inlogic-ia/internal/driverworker"
	"github.com/EngRafael35/Inlogic-ia/internal/ingest"
	"github.com/EngRafael35/Inlogic-ia/internal/logbus"
	"github.com/EngRafael35/Inlogic-ia/internal/routing"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
	"github.com/EngRafael35/Inlogic-ia/internal/snapshot"
)

// newAdapter resolves the concrete adapter.Adapter for a device's
// protocol, recovering the original drivers' per-process-kind dispatch
// (modbus_driver_process.py, controllogix_driver_process.py, ...) as a
// single factory switch.
func newAdapter(protocol schema.Protocol) (adapter.Adapter, error) {
	switch protocol {
	case schema.ProtocolControlLogix:
		return controllogix.New(), nil
	case schema.ProtocolModbusTCP:
		return modbus.New(), nil
	case schema.ProtocolMQTT:
		return mqtt.New(), nil
	case schema.ProtocolSQL:
		return sqladapter.New(), nil
	default:
		return nil, fmt.Errorf("protocolo desconhecido: %q", protocol)
	}
}

// Supervisor owns every long-lived component and the current worker
// generation. Restart (triggered by "/api/system/restart") cancels the
// running generation, waits for it to exit, reloads configuration, and
// starts a fresh one -- the snapshot and routing table are the only state
// carried across a restart and both are rebuilt wholesale.
type Supervisor struct {
	configPath string
	log        *logrus.Entry

	Snapshot *snapshot.Store
	Router   *routing.Router
	FanOut   *ingest.FanOut

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	fanOutMu    sync.Mutex
	deviceCount atomic.Int32
}

// New builds a Supervisor. gate may be nil (allow every write);
// collaborator may be nil (no C6 ingestion); logs may be nil (process
// events then carry no RecentLogs, §4.5).
func New(configPath string, log *logrus.Entry, gate routing.PolicyGate, collaborator ingest.Collaborator, fanOutInterval time.Duration, logs *logbus.Bus) *Supervisor {
	store := snapshot.New()
	s := &Supervisor{
		configPath: configPath,
		log:        log,
		Snapshot:   store,
		Router:     routing.New(gate),
		FanOut:     ingest.New(store, collaborator, log, fanOutInterval),
	}
	s.FanOut.Logs = logs
	s.FanOut.WorkerCount = func() int { return int(s.deviceCount.Load()) }
	return s
}

// Start loads configuration and launches the first worker generation plus
// the ingestion fan-out.
func (s *Supervisor) Start(ctx context.Context) error {
	return s.rebuild(ctx)
}

// Restart implements "/api/system/restart" (§4.7): stop fan-out and
// workers, reset the snapshot, reload configuration from disk, rebuild
// the routing table, and start a fresh worker generation.
func (s *Supervisor) Restart() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	s.fanOutMu.Lock()
	_ = s.FanOut.Stop()
	s.fanOutMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.Snapshot.Reset()

	for driverID, n := range s.Router.DrainAll() {
		s.log.Warnf("restart: %d escrita(s) pendente(s) descartada(s) para o driver %q", n, driverID)
	}

	return s.rebuild(context.Background())
}

func (s *Supervisor) rebuild(parent context.Context) error {
	doc, err := config.Load(s.configPath)
	if err != nil {
		return fmt.Errorf("carregar configuração: %w", err)
	}

	devices, tags, err := doc.Flatten()
	if err != nil {
		return fmt.Errorf("configuração inconsistente: %w", err)
	}
	tagsByDriver := schema.TagsByDriver(tags)

	recvs := s.Router.Rebuild(devices, tags)

	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	var started int32
	for _, device := range devices {
		ad, err := newAdapter(device.Protocol)
		if err != nil {
			s.log.Errorf("driver %q não iniciado: %s", device.ID, err)
			continue
		}

		worker := driverworker.New(device, tagsByDriver[device.ID], ad, s.Snapshot, recvs[device.ID], s.log)
		s.wg.Add(1)
		started++
		go worker.Run(ctx, &s.wg)
	}
	s.deviceCount.Store(started)

	s.fanOutMu.Lock()
	err = s.FanOut.Start(ctx)
	s.fanOutMu.Unlock()
	if err != nil {
		return fmt.Errorf("iniciar ingestão: %w", err)
	}

	s.log.Infof("sistema iniciado com %d driver(s)", len(devices))
	return nil
}

// Stop cancels the current worker generation and fan-out, and blocks
// until every worker has exited.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	s.fanOutMu.Lock()
	_ = s.FanOut.Stop()
	s.fanOutMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
