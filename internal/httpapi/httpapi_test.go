// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EngRafael35/Inlogic-ia/internal/routing"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
	"github.com/EngRafael35/Inlogic-ia/internal/snapshot"
)

type fakeRestarter struct{ called bool }

func (f *fakeRestarter) Restart() error {
	f.called = true
	return nil
}

type fakeCognitive struct{}

func (fakeCognitive) Status() map[string]any { return map[string]any{"nos_registrados": 1} }
func (fakeCognitive) Metrics() any           { return map[string]any{"tag:t1": "ok"} }
func (fakeCognitive) Knowledge() any         { return map[string]any{"dados": "vazio"} }

func newTestAPI(t *testing.T) (*RestApi, *mux.Router) {
	t.Helper()
	store := snapshot.New()
	store.Put(&schema.DriverRecord{
		Config: schema.DeviceConfig{ID: "d1"},
		Status: schema.StatusConnected,
		Tags: map[string]*schema.TagSample{
			"t1": {TagID: "t1", Value: 10.0, Quality: schema.QualityGood},
		},
	})

	router := routing.New(nil)
	// drain to keep the queue from filling across tests.
	recvs := router.Rebuild(
		[]schema.DeviceConfig{{ID: "d1"}},
		[]schema.TagConfig{{ID: "t1", DriverID: "d1", Writable: true}},
	)
	go func() {
		for range recvs["d1"] {
		}
	}()

	api := &RestApi{
		Snapshot:  store,
		Router:    router,
		Restart:   &fakeRestarter{},
		StartTime: time.Now(),
	}

	r := mux.NewRouter()
	api.MountRoutes(r)
	return api, r
}

func TestGetDados(t *testing.T) {
	_, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/dados", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	assert.Contains(t, body, "d1")
}

func TestPostEscreverSuccess(t *testing.T) {
	_, r := newTestAPI(t)

	payload, _ := json.Marshal(map[string]any{"tag_id": "t1", "valor": 17.5})
	req := httptest.NewRequest(http.MethodPost, "/api/escrever", bytes.NewReader(payload))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	assert.Equal(t, true, body["sucesso"])
}

func TestPostEscreverUnknownTag(t *testing.T) {
	_, r := newTestAPI(t)

	payload, _ := json.Marshal(map[string]any{"tag_id": "unknown", "valor": 1})
	req := httptest.NewRequest(http.MethodPost, "/api/escrever", bytes.NewReader(payload))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	assert.Equal(t, http.StatusNotFound, rw.Code)
}

func TestPostEscreverMissingFields(t *testing.T) {
	_, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/escrever", bytes.NewReader([]byte(`{}`)))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestPostRestartRespondsBeforeCompletion(t *testing.T) {
	api, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/system/restart", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])

	assert.Eventually(t, func() bool { return api.Restart.(*fakeRestarter).called }, time.Second, 5*time.Millisecond)
}

func TestGetHealth(t *testing.T) {
	_, r := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIAEndpointsWithoutCognitiveAre404(t *testing.T) {
	_, r := newTestAPI(t)

	for _, path := range []string{"/api/ia/status", "/api/ia/metricas", "/api/ia/conhecimento"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rw := httptest.NewRecorder()
		r.ServeHTTP(rw, req)
		assert.Equal(t, http.StatusNotFound, rw.Code, path)
	}
}

func TestIAEndpointsWithCognitive(t *testing.T) {
	api, r := newTestAPI(t)
	api.Cognitive = fakeCognitive{}

	req := httptest.NewRequest(http.MethodGet, "/api/ia/status", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
}
