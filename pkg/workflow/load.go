// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a workflow definition from a YAML or JSON file.
func LoadFile(path string) (*Definition, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("workflow path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			return ParseJSON(data)
		}
		return ParseYAML(data)
	}
}

// ParseJSON decodes and validates a JSON workflow definition.
func ParseJSON(data []byte) (*Definition, error) {
	var raw definitionFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse json workflow: %w", err)
	}
	return raw.build()
}

// ParseYAML decodes and validates a YAML workflow definition.
func ParseYAML(data []byte) (*Definition, error) {
	var raw definitionFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml workflow: %w", err)
	}
	return raw.build()
}

func (s definitionFile) build() (*Definition, error) {
	if strings.TrimSpace(s.Name) == "" {
		return nil, invalid("workflow name is required")
	}
	steps, err := buildSteps(s.Steps)
	if err != nil {
		return nil, err
	}
	return &Definition{Name: s.Name, Steps: steps}, nil
}
