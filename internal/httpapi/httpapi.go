// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi is the HTTP control plane (spec.md §4.7): read the
// shared snapshot, route writes, surface logs, and pass through the
// cognitive collaborator's status/metrics/knowledge. Grounded on
// internal/api/rest.go's RestApi struct + MountRoutes(*mux.Router) shape
// and handleError-style JSON error envelope; route paths and JSON field
// names (sucesso, mensagem, tag_id, valor, driver_id, valores) are taken
// verbatim from original_source/servidor/servidor.py.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/EngRafael35/Inlogic-ia/internal/logbus"
	"github.com/EngRafael35/Inlogic-ia/internal/routing"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
	"github.com/EngRafael35/Inlogic-ia/internal/snapshot"
)

// Cognitive is the read-only passthrough surface onto C6 for the three
// "/api/ia/*" endpoints. A nil Cognitive makes those routes answer 404,
// matching the original's "IA não está ativo" guard.
type Cognitive interface {
	Status() map[string]any
	Metrics() any
	Knowledge() any
}

// Restarter triggers the supervisor's stop/reload/rebuild/resume sequence
// (§4.7 "/api/system/restart"). Restart runs asynchronously; the handler
// responds 200 before it completes, matching the original's
// threading.Thread(target=reinicializar_sistema).start() fire-and-forget.
type Restarter interface {
	Restart() error
}

// RestApi mirrors the teacher's RestApi struct: a thin HTTP surface over
// already-built components, with no business logic of its own.
type RestApi struct {
	Snapshot  *snapshot.Store
	Router    *routing.Router
	Logs      *logbus.Bus
	Cognitive Cognitive
	Restart   Restarter
	StartTime time.Time
	Log       *logrus.Entry
}

func (api *RestApi) MountRoutes(r *mux.Router) {
	sub := r.PathPrefix("/api").Subrouter()

	sub.HandleFunc("/dados", api.getDados).Methods(http.MethodGet)
	sub.HandleFunc("/escrever", api.postEscrever).Methods(http.MethodPost)
	sub.HandleFunc("/escrever_lote", api.postEscreverLote).Methods(http.MethodPost)
	sub.HandleFunc("/logs", api.getLogs).Methods(http.MethodGet)
	sub.HandleFunc("/system/restart", api.postRestart).Methods(http.MethodPost)
	sub.HandleFunc("/health", api.getHealth).Methods(http.MethodGet)
	sub.HandleFunc("/ia/status", api.getIAStatus).Methods(http.MethodGet)
	sub.HandleFunc("/ia/metricas", api.getIAMetricas).Methods(http.MethodGet)
	sub.HandleFunc("/ia/conhecimento", api.getIAConhecimento).Methods(http.MethodGet)
}

// writeJSON writes v as the body with statusCode, matching Flask's
// jsonify(...) / ", <code>" pattern.
func writeJSON(rw http.ResponseWriter, statusCode int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	_ = json.NewEncoder(rw).Encode(v)
}

// writeEscreverResult mirrors post_escrever_lote/post_escrever's
// {"sucesso", "mensagem"/"erro"} envelope.
func writeEscreverResult(rw http.ResponseWriter, statusCode int, sucesso bool, msg string) {
	body := map[string]any{"sucesso": sucesso}
	if sucesso {
		body["mensagem"] = msg
	} else {
		body["erro"] = msg
	}
	writeJSON(rw, statusCode, body)
}

// writeErrorEnvelope mirrors every other handler's {"status":"error",
// "message", "details"?} envelope.
func writeErrorEnvelope(rw http.ResponseWriter, statusCode int, msg string, details map[string]any) {
	body := map[string]any{"status": "error", "message": msg}
	if details != nil {
		body["details"] = details
	}
	writeJSON(rw, statusCode, body)
}

// getDados answers "GET /api/dados" with the full snapshot (§4.7).
func (api *RestApi) getDados(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, api.Snapshot.All())
}

type escreverRequest struct {
	TagID string `json:"tag_id"`
	Valor any    `json:"valor"`
}

// postEscrever answers "POST /api/escrever": single-tag write (§4.7).
func (api *RestApi) postEscrever(rw http.ResponseWriter, r *http.Request) {
	var req escreverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TagID == "" || req.Valor == nil {
		writeEscreverResult(rw, http.StatusBadRequest, false, "Requisição inválida. 'tag_id' e 'valor' são obrigatórios.")
		return
	}

	err := api.Router.EnqueueWrite(req.TagID, req.Valor)
	switch {
	case err == nil:
		writeEscreverResult(rw, http.StatusOK, true,
			"Comando de escrita para a tag '"+req.TagID+"' foi enfileirado.")
	case errors.Is(err, routing.ErrUnknownTag):
		writeEscreverResult(rw, http.StatusNotFound, false, err.Error())
	case errors.Is(err, routing.ErrWriteNotAllowed):
		writeEscreverResult(rw, http.StatusForbidden, false, err.Error())
	case errors.Is(err, routing.ErrQueueFull):
		writeEscreverResult(rw, http.StatusServiceUnavailable, false, err.Error())
	default:
		// Policy-gate rejection (C6 ValidateWrite) also lands here.
		writeEscreverResult(rw, http.StatusForbidden, false, err.Error())
	}
}

type escreverLoteRequest struct {
	DriverID string         `json:"driver_id"`
	Valores  map[string]any `json:"valores"`
	RowID    string         `json:"row_id,omitempty"`
}

// postEscreverLote answers "POST /api/escrever_lote": SQL-only batch
// write (§4.7).
func (api *RestApi) postEscreverLote(rw http.ResponseWriter, r *http.Request) {
	var req escreverLoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID == "" || len(req.Valores) == 0 {
		writeEscreverResult(rw, http.StatusBadRequest, false, "Requisição inválida. 'driver_id' e 'valores' são obrigatórios.")
		return
	}

	err := api.Router.EnqueueBatchWrite(req.DriverID, req.Valores, req.RowID)
	switch {
	case err == nil:
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"sucesso":  true,
			"mensagem": "Comando de escrita em lote para o driver '" + req.DriverID + "' foi enfileirado.",
			"detalhes": map[string]any{"driver_id": req.DriverID, "valores": req.Valores},
		})
	case errors.Is(err, routing.ErrUnknownDriver):
		writeEscreverResult(rw, http.StatusNotFound, false, "Driver não encontrado ou erro ao enfileirar.")
	case errors.Is(err, routing.ErrQueueFull):
		writeEscreverResult(rw, http.StatusServiceUnavailable, false, err.Error())
	default:
		writeEscreverResult(rw, http.StatusForbidden, false, err.Error())
	}
}

// getLogs answers "GET /api/logs?limit=&since=&level=" from C8.
func (api *RestApi) getLogs(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var records []schema.LogRecord
	if since := q.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeErrorEnvelope(rw, http.StatusBadRequest, "parâmetro 'since' inválido: "+err.Error(), nil)
			return
		}
		records = api.Logs.Since(ts)
	} else {
		limit := 0
		if l := q.Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil {
				writeErrorEnvelope(rw, http.StatusBadRequest, "parâmetro 'limit' inválido: "+err.Error(), nil)
				return
			}
			limit = n
		}
		records = api.Logs.Recent(limit)
	}

	if level := q.Get("level"); level != "" {
		level = strings.ToLower(level)
		filtered := records[:0]
		for _, rec := range records {
			if string(rec.Level) == level {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"status": "success",
		"logs":   records,
		"total":  len(records),
	})
}

// postRestart answers "POST /api/system/restart": asynchronous restart
// (§4.7). Responds 200 before the restart completes.
func (api *RestApi) postRestart(rw http.ResponseWriter, r *http.Request) {
	go func() {
		if err := api.Restart.Restart(); err != nil && api.Log != nil {
			api.Log.Errorf("falha ao reiniciar sistema: %s", err)
		}
	}()

	writeJSON(rw, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Sistema reiniciando...",
		"details": map[string]any{
			"action":         "full_restart",
			"estimated_time": "5-10 segundos",
			"steps": []string{
				"Parando drivers atuais",
				"Recarregando configurações",
				"Reiniciando drivers",
				"Atualizando mapa de tags",
			},
		},
	})
}

// getHealth answers "GET /api/health" (§4.7): uptime, process RSS,
// process/system CPU, driver and tag counts.
func (api *RestApi) getHealth(rw http.ResponseWriter, r *http.Request) {
	uptime := time.Since(api.StartTime)

	var rssMB, processCPU float64
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			rssMB = float64(mi.RSS) / 1024 / 1024
		}
		if pct, err := p.CPUPercent(); err == nil {
			processCPU = pct
		}
	}
	var systemCPU float64
	if pct, _ := cpu.Percent(100*time.Millisecond, false); len(pct) > 0 {
		systemCPU = pct[0]
	}
	vm, _ := mem.VirtualMemory()

	active, disconnected, totalTags, goodTags := 0, 0, 0, 0
	for _, rec := range api.Snapshot.All() {
		if rec.Status == schema.StatusConnected {
			active++
		} else {
			disconnected++
		}
		for _, tag := range rec.Tags {
			totalTags++
			if tag.Quality == schema.QualityGood {
				goodTags++
			}
		}
	}

	status := "warning"
	if active > 0 {
		status = "healthy"
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"status": status,
		"uptime": uptime.String(),
		"memory_usage": map[string]any{
			"process_rss_mb": rssMB,
		},
		"cpu": map[string]any{
			"process_percent": processCPU,
			"system_percent":  systemCPU,
		},
		"system_memory_percent": usedMemPercent(vm),
		"drivers": map[string]any{
			"total":        active + disconnected,
			"active":       active,
			"disconnected": disconnected,
		},
		"tags": map[string]any{
			"total": totalTags,
			"good":  goodTags,
		},
	})
}

func usedMemPercent(vm *mem.VirtualMemoryStat) float64 {
	if vm == nil {
		return 0
	}
	return vm.UsedPercent
}

// getIAStatus/getIAMetricas/getIAConhecimento answer the three
// "/api/ia/*" passthrough reads (§4.7). Undefined/absent C6 is a 404,
// matching "Sistema de IA não está ativo".
func (api *RestApi) getIAStatus(rw http.ResponseWriter, r *http.Request) {
	if api.Cognitive == nil {
		writeErrorEnvelope(rw, http.StatusNotFound, "Sistema de IA não está ativo", nil)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"status": "success", "ia_status": api.Cognitive.Status()})
}

func (api *RestApi) getIAMetricas(rw http.ResponseWriter, r *http.Request) {
	if api.Cognitive == nil {
		writeErrorEnvelope(rw, http.StatusNotFound, "Sistema de IA não está ativo", nil)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"status": "success", "metricas": api.Cognitive.Metrics()})
}

func (api *RestApi) getIAConhecimento(rw http.ResponseWriter, r *http.Request) {
	if api.Cognitive == nil {
		writeErrorEnvelope(rw, http.StatusNotFound, "Coordenador de IA não está disponível", nil)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"status": "success", "conhecimento": api.Cognitive.Knowledge()})
}
