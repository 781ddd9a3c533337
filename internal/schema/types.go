// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema defines the data model shared by every component of the
// gateway: device and tag configuration, the mutable driver runtime record,
// tag samples, write commands, and log records.
package schema

import (
	"bytes"
	"encoding/json"
	"time"
)

// scanIntervalUnset marks a DeviceConfig decoded from JSON that omitted
// "scan_interval", so ApplyDefaults can tell it apart from an explicit 0
// ("as fast as possible", spec.md §8).
const scanIntervalUnset = -1

// Protocol identifies the field protocol family a device speaks.
type Protocol string

const (
	ProtocolControlLogix Protocol = "controllogix"
	ProtocolModbusTCP    Protocol = "modbus_tcp"
	ProtocolMQTT         Protocol = "mqtt"
	ProtocolSQL          Protocol = "sql"
)

// DataKind is the declared type of a tag's value.
type DataKind string

const (
	KindBool   DataKind = "bool"
	KindInt    DataKind = "int"
	KindFloat  DataKind = "float"
	KindString DataKind = "string"
)

// Quality describes how fresh/trustworthy a sample is.
type Quality string

const (
	QualityGood      Quality = "good"
	QualityBad       Quality = "bad"
	QualityUncertain Quality = "uncertain"
)

// Status is the connection state of a driver worker, as published on the
// snapshot (distinct from the internal state-machine state of §4.2, which
// also has CONNECTING/BACKOFF substates not visible to readers).
type Status string

const (
	StatusStarting     Status = "starting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusStopped      Status = "stopped"
)

// DeviceConfig is immutable after load.
type DeviceConfig struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"projeto_id,omitempty"`
	Name           string          `json:"nome"`
	Protocol       Protocol        `json:"tipo"`
	ScanIntervalMS int             `json:"scan_interval"`
	TimeoutMS      int             `json:"timeout"`
	RetryCount     int             `json:"retry_count"`
	LogEnabled     bool            `json:"log_enabled"`
	Options        DeviceOptions   `json:"config"`
}

// UnmarshalJSON decodes a DeviceConfig, tagging a fully-omitted
// "scan_interval" with scanIntervalUnset so ApplyDefaults can distinguish
// it from an explicit 0.
func (d *DeviceConfig) UnmarshalJSON(data []byte) error {
	type alias DeviceConfig
	shadow := struct {
		ScanIntervalMS *int `json:"scan_interval"`
		*alias
	}{alias: (*alias)(d)}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&shadow); err != nil {
		return err
	}

	if shadow.ScanIntervalMS != nil {
		d.ScanIntervalMS = *shadow.ScanIntervalMS
	} else {
		d.ScanIntervalMS = scanIntervalUnset
	}
	return nil
}

// DeviceOptions bundles every protocol-specific option field. Only the
// fields relevant to DeviceConfig.Protocol are populated; the rest are
// left at their zero value.
type DeviceOptions struct {
	// ControlLogix / Modbus / generic TCP
	Host string `json:"ip,omitempty"`
	Port int    `json:"porta,omitempty"`

	// Modbus
	SlaveID int `json:"slave_id,omitempty"`

	// MQTT
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"login,omitempty"`
	Password string `json:"senha,omitempty"`

	// SQL
	DBKind     string `json:"db_type,omitempty"`
	Database   string `json:"database,omitempty"`
	DBUser     string `json:"user,omitempty"`
	DBPassword string `json:"password,omitempty"`
	TableName  string `json:"table_name,omitempty"`

	LogEnabled *bool `json:"log_enabled,omitempty"`
}

// TagConfig is immutable after load.
type TagConfig struct {
	ID           string   `json:"id"`
	DriverID     string   `json:"id_driver"`
	Name         string   `json:"nome"`
	Address      string   `json:"endereco"`
	DataKind     DataKind `json:"tipo_dado"`
	ScanEnabled  bool     `json:"scan_enabled"`
	Writable     bool     `json:"escrita_permitida"`
	DisplayField string   `json:"campo_exibir,omitempty"`
}

// UnmarshalJSON decodes a TagConfig, defaulting an omitted "scan_enabled"
// to true (spec.md §6) -- the zero value of a plain bool would otherwise
// be indistinguishable from an explicit false.
func (t *TagConfig) UnmarshalJSON(data []byte) error {
	type alias TagConfig
	shadow := struct {
		ScanEnabled *bool `json:"scan_enabled"`
		*alias
	}{alias: (*alias)(t)}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&shadow); err != nil {
		return err
	}

	if shadow.ScanEnabled != nil {
		t.ScanEnabled = *shadow.ScanEnabled
	} else {
		t.ScanEnabled = DefaultScanEnabled
	}
	return nil
}

// TagSample is one observed value for a tag.
type TagSample struct {
	TagID     string    `json:"id"`
	DriverID  string    `json:"id_driver"`
	Name      string    `json:"nome"`
	Address   string    `json:"endereco"`
	DataKind  DataKind  `json:"tipo_dado"`
	Value     any       `json:"valor"`
	Quality   Quality   `json:"qualidade"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"log,omitempty"`
}

// DriverRecord is the mutable, exactly-one-per-device runtime record. It is
// replaced wholesale by its owning worker (see internal/snapshot) -- never
// mutated field-by-field from outside the owner.
type DriverRecord struct {
	Config    DeviceConfig          `json:"config"`
	Status    Status                `json:"status"`
	Detail    string                `json:"detalhe"`
	Timestamp time.Time             `json:"timestamp"`
	Tags      map[string]*TagSample `json:"tags"`
	// ScanLatency is the duration of the most recent scan's read batch;
	// consumed by the ingestion fan-out's driver-health delta.
	ScanLatency time.Duration `json:"-"`
}

// WriteCommand is a single-tag write request.
type WriteCommand struct {
	TagID string `json:"tag_id"`
	Value any    `json:"valor"`
}

// BatchWriteCommand is the SQL-only multi-column write variant.
type BatchWriteCommand struct {
	DriverID string         `json:"driver_id"`
	Values   map[string]any `json:"valores"`
}

// LogLevel mirrors the level set spec.md §3 names for a log record.
type LogLevel string

const (
	LevelDebug   LogLevel = "debug"
	LevelInfo    LogLevel = "info"
	LevelWarn    LogLevel = "warn"
	LevelError   LogLevel = "error"
	LevelFatal   LogLevel = "fatal"
	LevelSuccess LogLevel = "success"
)

// LogRecord is one structured log entry as exposed through /api/logs.
type LogRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}
