// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import "fmt"

// Defaults for optional configuration fields, per spec.md §6.
const (
	DefaultScanIntervalMS = 1000
	DefaultTimeoutMS      = 5000
	DefaultRetryCount     = 3
	DefaultWritable       = false
	DefaultScanEnabled    = true
)

// ConfigDocument is the top-level shape of the already-decoded configuration
// document handed to the runtime (spec.md §1: the encrypted file format and
// its key material are an external collaborator's concern).
type ConfigDocument struct {
	Projetos []ProjectConfig `json:"projetos"`
}

// ProjectConfig groups a set of devices and tags under a display id; device
// and tag ids are expected globally unique across all projects.
type ProjectConfig struct {
	ID      string         `json:"id"`
	Name    string         `json:"nome"`
	Drivers []DeviceConfig `json:"drivers"`
	Tags    []TagConfig    `json:"tags"`
}

// ApplyDefaults fills in every optional field left at its zero value with
// the default from spec.md §6, and stamps each device/tag with its owning
// project id.
func (c *ConfigDocument) ApplyDefaults() {
	for pi := range c.Projetos {
		p := &c.Projetos[pi]
		for di := range p.Drivers {
			d := &p.Drivers[di]
			d.ProjectID = p.ID
			if d.ScanIntervalMS == scanIntervalUnset {
				d.ScanIntervalMS = DefaultScanIntervalMS
			}
			if d.TimeoutMS == 0 {
				d.TimeoutMS = DefaultTimeoutMS
			}
			if d.RetryCount == 0 {
				d.RetryCount = DefaultRetryCount
			}
		}
		for ti := range p.Tags {
			t := &p.Tags[ti]
			if !t.Writable {
				t.Writable = DefaultWritable
			}
		}
	}
}

// Flatten returns every device and every tag across all projects, and
// validates that device/tag ids are globally unique (the routing table and
// snapshot both assume a flat global namespace, per SPEC_FULL.md §3).
func (c *ConfigDocument) Flatten() ([]DeviceConfig, []TagConfig, error) {
	var devices []DeviceConfig
	var tags []TagConfig
	seenDevices := map[string]bool{}
	seenTags := map[string]bool{}

	for _, p := range c.Projetos {
		for _, d := range p.Drivers {
			if d.ID == "" {
				return nil, nil, fmt.Errorf("project %q: device with empty id", p.ID)
			}
			if seenDevices[d.ID] {
				return nil, nil, fmt.Errorf("duplicate device id %q", d.ID)
			}
			seenDevices[d.ID] = true
			devices = append(devices, d)
		}
		for _, t := range p.Tags {
			if t.ID == "" {
				return nil, nil, fmt.Errorf("project %q: tag with empty id", p.ID)
			}
			if seenTags[t.ID] {
				return nil, nil, fmt.Errorf("duplicate tag id %q", t.ID)
			}
			seenTags[t.ID] = true
			tags = append(tags, t)
		}
	}

	return devices, tags, nil
}

// TagsByDriver groups tags by their owning device id.
func TagsByDriver(tags []TagConfig) map[string][]TagConfig {
	out := map[string][]TagConfig{}
	for _, t := range tags {
		out[t.DriverID] = append(out[t.DriverID], t)
	}
	return out
}
