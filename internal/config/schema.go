// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// configSchema is the embedded JSON Schema the configuration document is
// validated against before decoding, grounded on
// internal/config/validate.go's jsonschema.CompileString(schema.json, ...)
// pattern (there loaded from an embedded schema string too).
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "inlogic-gateway configuration",
  "type": "object",
  "required": ["projetos"],
  "properties": {
    "projetos": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "drivers", "tags"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "nome": {"type": "string"},
          "drivers": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "tipo"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "nome": {"type": "string"},
                "tipo": {"enum": ["controllogix", "modbus_tcp", "mqtt", "sql"]},
                "scan_interval": {"type": "integer", "minimum": 0},
                "timeout": {"type": "integer", "minimum": 0},
                "retry_count": {"type": "integer", "minimum": 0},
                "log_enabled": {"type": "boolean"},
                "config": {"type": "object"}
              }
            }
          },
          "tags": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "id_driver", "endereco", "tipo_dado"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "id_driver": {"type": "string", "minLength": 1},
                "nome": {"type": "string"},
                "endereco": {"type": "string"},
                "tipo_dado": {"enum": ["bool", "int", "float", "string"]},
                "scan_enabled": {"type": "boolean"},
                "escrita_permitida": {"type": "boolean"},
                "campo_exibir": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`
