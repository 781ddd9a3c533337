// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the gateway's configuration document
// (spec.md §1/§6). Grounded on internal/config/config.go's Init (read file,
// validate against an embedded JSON Schema, decode, sanity-check) and
// internal/config/validate.go's jsonschema.CompileString usage.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// Load reads path, validates it against the embedded configuration schema,
// decodes it, applies every spec.md §6 default, and returns the document.
func Load(path string) (*schema.ConfigDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ler arquivo de configuração: %w", err)
	}

	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("configuração inválida: %w", err)
	}

	var doc schema.ConfigDocument
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decodificar configuração: %w", err)
	}

	if len(doc.Projetos) == 0 {
		return nil, fmt.Errorf("configuração deve conter ao menos um projeto")
	}

	doc.ApplyDefaults()
	return &doc, nil
}

// Validate checks raw against the embedded JSON Schema without decoding it
// into schema.ConfigDocument.
func Validate(raw []byte) error {
	sch, err := jsonschema.CompileString("inlogic-config.schema.json", configSchema)
	if err != nil {
		return fmt.Errorf("compilar schema de configuração: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("configuração não é um JSON válido: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return err
	}
	return nil
}
