// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `{
  "projetos": [
    {
      "id": "planta_a",
      "nome": "Planta A",
      "drivers": [
        {"id": "d1", "tipo": "modbus_tcp", "config": {"ip": "127.0.0.1", "porta": 502}}
      ],
      "tags": [
        {"id": "t1", "id_driver": "d1", "endereco": "40001", "tipo_dado": "int"}
      ]
    }
  ]
}`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, validConfig)

	doc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Projetos, 1)

	d := doc.Projetos[0].Drivers[0]
	assert.Equal(t, "planta_a", d.ProjectID)
	assert.Equal(t, 1000, d.ScanIntervalMS)
	assert.Equal(t, 5000, d.TimeoutMS)
	assert.Equal(t, 3, d.RetryCount)

	tag := doc.Projetos[0].Tags[0]
	assert.True(t, tag.ScanEnabled, "a tag omitting scan_enabled must default to true")
}

func TestLoadHonorsExplicitZeroScanInterval(t *testing.T) {
	path := writeTempConfig(t, `{
	  "projetos": [
	    {
	      "id": "planta_b",
	      "drivers": [
	        {"id": "d1", "tipo": "modbus_tcp", "scan_interval": 0, "config": {"ip": "127.0.0.1", "porta": 502}}
	      ],
	      "tags": [
	        {"id": "t1", "id_driver": "d1", "endereco": "40001", "tipo_dado": "int", "scan_enabled": false}
	      ]
	    }
	  ]
	}`)

	doc, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0, doc.Projetos[0].Drivers[0].ScanIntervalMS)
	assert.False(t, doc.Projetos[0].Tags[0].ScanEnabled)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	path := writeTempConfig(t, `{"projetos":[{"id":"p1","drivers":[{"id":"d1","tipo":"nao_existe"}],"tags":[]}]}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsEmptyProjects(t *testing.T) {
	path := writeTempConfig(t, `{"projetos":[]}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	assert.NoError(t, Validate([]byte(validConfig)))
}
