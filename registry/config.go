// Copyright 2026 SchemaGate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFile is the root structure of the registries configuration file
type ConfigFile struct {
	Version    string               `yaml:"version"`
	Registries map[string]RefConfig `yaml:"registries"`
}

// RefConfig is one registry entry in the configuration file
type RefConfig struct {
	BaseURL     string            `yaml:"base_url"`
	Credentials map[string]string `yaml:"credentials,omitempty"`
	IsDefault   bool              `yaml:"is_default,omitempty"`
	ReadOnly    bool              `yaml:"read_only,omitempty"`
}

// LoadConfigFile reads a registries YAML file, expands ${VAR} references and
// validates the result.
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registries file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var config ConfigFile
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse registries file: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Refs converts the parsed file into immutable registry references
func (c *ConfigFile) Refs() []*Ref {
	refs := make([]*Ref, 0, len(c.Registries))
	for name, rc := range c.Registries {
		refs = append(refs, &Ref{
			Name:        name,
			BaseURL:     strings.TrimSuffix(rc.BaseURL, "/"),
			Credentials: rc.Credentials,
			IsDefault:   rc.IsDefault,
			ReadOnly:    rc.ReadOnly,
		})
	}
	return refs
}

func validateConfig(config *ConfigFile) error {
	if len(config.Registries) == 0 {
		return fmt.Errorf("registries file defines no registries")
	}

	defaultCount := 0
	for name, rc := range config.Registries {
		if rc.BaseURL == "" {
			return fmt.Errorf("registry '%s' must specify a base_url", name)
		}
		if !strings.HasPrefix(rc.BaseURL, "http://") && !strings.HasPrefix(rc.BaseURL, "https://") {
			return fmt.Errorf("registry '%s' base_url must use http or https", name)
		}
		if rc.IsDefault {
			defaultCount++
		}
	}

	if defaultCount > 1 {
		return fmt.Errorf("at most one registry may set is_default, found %d", defaultCount)
	}

	return nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string.
// Supports ${VAR_NAME}, $VAR_NAME and ${VAR_NAME:-default} syntax.
// Undefined variables expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultVal
	})
}
