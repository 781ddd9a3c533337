// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command inlogic-gateway is the industrial data-acquisition and control
// gateway's entry point (SPEC_FULL.md §6). It wires the log bus, loads
// configuration, starts the Supervisor and the HTTP control plane, and
// blocks until a termination signal arrives. Grounded on the overall
// wiring order and signal-handling shape of cmd/cc-backend/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/EngRafael35/Inlogic-ia/internal/cognitive"
	"github.com/EngRafael35/Inlogic-ia/internal/httpapi"
	"github.com/EngRafael35/Inlogic-ia/internal/ingest"
	"github.com/EngRafael35/Inlogic-ia/internal/logbus"
	"github.com/EngRafael35/Inlogic-ia/internal/runtimeEnv"
	"github.com/EngRafael35/Inlogic-ia/internal/supervisor"
)

func main() {
	var flagConfigFile, flagAddr, flagLogLevel, flagLogDir string
	var flagService bool

	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to the gateway configuration document")
	flag.StringVar(&flagAddr, "addr", "0.0.0.0:8080", "HTTP control plane listen address")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Minimum log level (debug, info, warn, error)")
	flag.StringVar(&flagLogDir, "logdir", "logs", "Directory for the per-run log file")
	flag.BoolVar(&flagService, "service", false, "Run under a host OS service manager (enables systemd readiness notification)")
	flag.Parse()

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "carregar './.env' falhou: %s\n", err)
		os.Exit(1)
	}

	bus, err := logbus.Open(flagLogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "abrir log bus falhou: %s\n", err)
		os.Exit(1)
	}
	defer bus.Close()

	if lvl, err := logrus.ParseLevel(flagLogLevel); err == nil {
		bus.Logger().SetLevel(lvl)
	}
	log := bus.Logger().WithField("source", "supervisor")

	collective := cognitive.New(log.WithField("source", "cognitive"))
	fanOutLog := log.WithField("source", "ingest")

	sup := supervisor.New(flagConfigFile, fanOutLog, collective, collective, ingest.DefaultInterval, bus)
	if err := sup.Start(context.Background()); err != nil {
		log.Errorf("falha ao iniciar: %s", err)
		os.Exit(1)
	}

	api := &httpapi.RestApi{
		Snapshot:  sup.Snapshot,
		Router:    sup.Router,
		Logs:      bus,
		Cognitive: cognitiveAdapter{collective},
		Restart:   sup,
		StartTime: time.Now(),
		Log:       log.WithField("source", "httpapi"),
	}

	router := mux.NewRouter()
	api.MountRoutes(router)
	router.Use(handlers.CompressHandler)
	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))

	handler := handlers.CustomLoggingHandler(os.Stdout, router, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	server := &http.Server{
		Addr:         flagAddr,
		Handler:      handler,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	listener, err := net.Listen("tcp", flagAddr)
	if err != nil {
		log.Errorf("abrir listener falhou: %s", err)
		sup.Stop()
		os.Exit(1)
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorf("servidor http encerrou com erro: %s", err)
		}
	}()

	if flagService {
		runtimeEnv.SystemdNotifiy(true, "running")
	}
	log.Infof("gateway escutando em %s", flagAddr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	if flagService {
		runtimeEnv.SystemdNotifiy(false, "stopping")
	}
	log.Info("encerrando gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	sup.Stop()
	log.Info("gateway encerrado")
}

// cognitiveAdapter narrows *cognitive.Collective's concrete Metrics/
// Knowledge return types to httpapi.Cognitive's `any`-typed passthrough
// methods, keeping cognitive's own API strongly typed for its tests.
type cognitiveAdapter struct{ c *cognitive.Collective }

func (a cognitiveAdapter) Status() map[string]any { return a.c.Status() }
func (a cognitiveAdapter) Metrics() any           { return a.c.Metrics() }
func (a cognitiveAdapter) Knowledge() any         { return a.c.Knowledge() }
