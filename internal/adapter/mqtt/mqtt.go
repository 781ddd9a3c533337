// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mqtt implements the MQTT protocol adapter (spec.md §4.1),
// grounded on original_source/driver/mqtt_driver_process.py. Unlike the
// other protocol families, reads are not polled: Open subscribes every
// scan-enabled tag's topic and samples are delivered asynchronously
// through the session's Samples() channel (see adapter.AsyncSession).
package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/EngRafael35/Inlogic-ia/internal/adapter"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// Adapter implements adapter.Adapter for MQTT.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

type session struct {
	client  paho.Client
	samples chan adapter.AsyncSample

	// topicToTagID maps subscribed topic -> tag id (the canonical
	// snapshot key is the tag id, topic is only used for subscription
	// and display; SPEC_FULL.md §4.1 resolves the Open Question in
	// spec.md §9).
	topicToTagID map[string]string
	dataKinds    map[string]schema.DataKind
}

func (s *session) Alive() bool {
	return s.client != nil && s.client.IsConnectionOpen()
}

func (s *session) Close() error {
	if s.client != nil {
		s.client.Disconnect(250)
	}
	return nil
}

func (s *session) Samples() <-chan adapter.AsyncSample { return s.samples }

func (a *Adapter) Open(ctx context.Context, opts schema.DeviceOptions, tags []schema.TagConfig, timeout time.Duration) (adapter.Session, error) {
	if opts.Host == "" {
		return nil, adapter.NewError(adapter.KindConnect, "open", fmt.Errorf("missing broker host"))
	}

	port := opts.Port
	if port == 0 {
		port = 1883
	}

	sess := &session{
		samples:      make(chan adapter.AsyncSample, 256),
		topicToTagID: map[string]string{},
		dataKinds:    map[string]schema.DataKind{},
	}
	for _, t := range tags {
		if !t.ScanEnabled || t.Address == "" {
			continue
		}
		sess.topicToTagID[t.Address] = t.ID
		sess.dataKinds[t.ID] = t.DataKind
	}

	popts := paho.NewClientOptions()
	popts.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Host, port))
	if opts.ClientID != "" {
		popts.SetClientID(opts.ClientID)
	}
	if opts.Username != "" {
		popts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		popts.SetPassword(opts.Password)
	}
	popts.SetConnectTimeout(timeout)
	popts.SetAutoReconnect(false) // the driver worker owns reconnection (§4.2)
	popts.SetDefaultPublishHandler(func(c paho.Client, m paho.Message) {
		sess.handleMessage(m.Topic(), m.Payload())
	})

	client := paho.NewClient(popts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, adapter.NewError(adapter.KindConnect, "open", fmt.Errorf("connect timed out"))
	}
	if err := token.Error(); err != nil {
		return nil, adapter.NewError(adapter.KindConnect, "open", err)
	}

	sess.client = client

	for topic := range sess.topicToTagID {
		subTok := client.Subscribe(topic, 0, func(c paho.Client, m paho.Message) {
			sess.handleMessage(m.Topic(), m.Payload())
		})
		if !subTok.WaitTimeout(timeout) || subTok.Error() != nil {
			client.Disconnect(250)
			return nil, adapter.NewError(adapter.KindConnect, "subscribe", fmt.Errorf("subscribe %q failed", topic))
		}
	}

	return sess, nil
}

func (s *session) handleMessage(topic string, payload []byte) {
	tagID, ok := s.topicToTagID[topic]
	if !ok {
		return
	}
	kind := s.dataKinds[tagID]
	value, err := coercePayload(string(payload), kind)

	sample := adapter.AsyncSample{TagID: tagID, Value: value, DataKind: kind}
	if err != nil {
		sample.Err = adapter.NewError(adapter.KindCoercion, "message", err)
	}

	select {
	case s.samples <- sample:
	default:
		// Drop oldest in favor of the fresher reading rather than block
		// the MQTT client's own dispatch goroutine.
		select {
		case <-s.samples:
		default:
		}
		s.samples <- sample
	}
}

// coercePayload applies the trim-and-parse rule of spec.md §4.1: empty
// payload is null/bad, otherwise attempt int/float/string by data kind.
func coercePayload(payload string, kind schema.DataKind) (any, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("empty payload")
	}

	switch kind {
	case schema.KindInt:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case schema.KindFloat:
		f, err := strconv.ParseFloat(strings.ReplaceAll(payload, ",", "."), 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case schema.KindBool:
		return payload == "1" || strings.EqualFold(payload, "true"), nil
	default:
		return payload, nil
	}
}

// Read is a no-op for MQTT: samples arrive asynchronously through the
// session's Samples() channel, drained by the driver worker instead.
func (a *Adapter) Read(ctx context.Context, sess adapter.Session, addrs []adapter.AddressRead) []adapter.ReadResult {
	return make([]adapter.ReadResult, len(addrs))
}

func (a *Adapter) Write(ctx context.Context, sess adapter.Session, address string, value any, dataKind schema.DataKind) adapter.WriteResult {
	s := sess.(*session)
	payload := fmt.Sprintf("%v", value)
	token := s.client.Publish(address, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "publish", fmt.Errorf("publish timed out"))}
	}
	if err := token.Error(); err != nil {
		return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "publish", err)}
	}
	return adapter.WriteResult{}
}
