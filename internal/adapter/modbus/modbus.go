// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package modbus implements the Modbus/TCP protocol adapter (spec.md
// §4.1), grounded on original_source/driver/modbus_driver_process.py.
// Addresses are integer register offsets; bool reads/writes a single coil,
// int16/uint16 a single holding register, float/real two consecutive
// holding registers interpreted big-endian IEEE-754.
package modbus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/EngRafael35/Inlogic-ia/internal/adapter"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
	mb "github.com/goburrow/modbus"
)

// Adapter implements adapter.Adapter for Modbus/TCP.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

type session struct {
	handler *mb.TCPClientHandler
	client  mb.Client
}

func (s *session) Alive() bool {
	return s.handler != nil
}

func (s *session) Close() error {
	if s.handler == nil {
		return nil
	}
	return s.handler.Close()
}

func (a *Adapter) Open(ctx context.Context, opts schema.DeviceOptions, tags []schema.TagConfig, timeout time.Duration) (adapter.Session, error) {
	if opts.Host == "" {
		return nil, adapter.NewError(adapter.KindConnect, "open", fmt.Errorf("missing ip address"))
	}

	port := opts.Port
	if port == 0 {
		port = 502
	}
	slave := opts.SlaveID
	if slave == 0 {
		slave = 1
	}

	handler := mb.NewTCPClientHandler(fmt.Sprintf("%s:%d", opts.Host, port))
	handler.Timeout = timeout
	handler.SlaveId = byte(slave)

	if err := handler.Connect(); err != nil {
		return nil, adapter.NewError(adapter.KindConnect, "open", err)
	}

	return &session{handler: handler, client: mb.NewClient(handler)}, nil
}

func (a *Adapter) Read(ctx context.Context, sess adapter.Session, addrs []adapter.AddressRead) []adapter.ReadResult {
	s := sess.(*session)
	out := make([]adapter.ReadResult, len(addrs))

	for i, ar := range addrs {
		addr, err := strconv.Atoi(ar.Address)
		if err != nil || addr < 0 {
			out[i] = adapter.ReadResult{Err: adapter.NewError(adapter.KindProtocol, "read", fmt.Errorf("invalid address %q", ar.Address))}
			continue
		}

		switch ar.DataKind {
		case schema.KindBool:
			raw, err := s.client.ReadCoils(uint16(addr), 1)
			if err != nil {
				out[i] = adapter.ReadResult{Err: adapter.NewError(adapter.KindTransport, "read_coil", err)}
				continue
			}
			out[i] = adapter.ReadResult{Value: raw[0]&0x01 != 0, DataKind: schema.KindBool}

		case schema.KindInt:
			raw, err := s.client.ReadHoldingRegisters(uint16(addr), 1)
			if err != nil {
				out[i] = adapter.ReadResult{Err: adapter.NewError(adapter.KindTransport, "read_register", err)}
				continue
			}
			val := int16(uint16(raw[0])<<8 | uint16(raw[1]))
			out[i] = adapter.ReadResult{Value: int(val), DataKind: schema.KindInt}

		case schema.KindFloat:
			raw, err := s.client.ReadHoldingRegisters(uint16(addr), 2)
			if err != nil {
				out[i] = adapter.ReadResult{Err: adapter.NewError(adapter.KindTransport, "read_register", err)}
				continue
			}
			out[i] = adapter.ReadResult{Value: decodeFloat32BE(raw), DataKind: schema.KindFloat}

		default:
			out[i] = adapter.ReadResult{Err: adapter.NewError(adapter.KindProtocol, "read", fmt.Errorf("unsupported data kind %q for modbus", ar.DataKind))}
		}
	}

	return out
}

func (a *Adapter) Write(ctx context.Context, sess adapter.Session, address string, value any, dataKind schema.DataKind) adapter.WriteResult {
	s := sess.(*session)
	addr, err := strconv.Atoi(address)
	if err != nil || addr < 0 {
		return adapter.WriteResult{Err: adapter.NewError(adapter.KindProtocol, "write", fmt.Errorf("invalid address %q", address))}
	}

	switch dataKind {
	case schema.KindBool:
		b, err := coerceBool(value)
		if err != nil {
			return adapter.WriteResult{Err: adapter.NewError(adapter.KindCoercion, "write", err)}
		}
		coilVal := uint16(0x0000)
		if b {
			coilVal = 0xFF00
		}
		if _, err := s.client.WriteSingleCoil(uint16(addr), coilVal); err != nil {
			return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "write_coil", err)}
		}
		return adapter.WriteResult{}

	case schema.KindInt:
		n, err := coerceInt(value)
		if err != nil {
			return adapter.WriteResult{Err: adapter.NewError(adapter.KindCoercion, "write", err)}
		}
		if _, err := s.client.WriteSingleRegister(uint16(addr), uint16(int16(n))); err != nil {
			return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "write_register", err)}
		}
		return adapter.WriteResult{}

	case schema.KindFloat:
		f, err := coerceFloat(value)
		if err != nil {
			return adapter.WriteResult{Err: adapter.NewError(adapter.KindCoercion, "write", err)}
		}
		regs := encodeFloat32BE(f)
		if _, err := s.client.WriteMultipleRegisters(uint16(addr), 2, regs); err != nil {
			return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "write_register", err)}
		}
		return adapter.WriteResult{}

	default:
		return adapter.WriteResult{Err: adapter.NewError(adapter.KindProtocol, "write", fmt.Errorf("unsupported data kind %q for modbus", dataKind))}
	}
}
