// Copyright 2026 Parsec DB, Inc.
//
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

package config

import (
	"strings"

	"github.com/pkg/errors"
)

// ConfigHierarchy is an ordered set of named configs. Lookups of unqualified
// parameter names walk the configs in the order they were added; names of
// the form "namespace::param" address one config directly.
type ConfigHierarchy struct {
	configs      []WritableConfig
	nameToConfig map[string]WritableConfig
	names        []string
}

var _ WritableConfig = &ConfigHierarchy{}

// NewConfigHierarchy creates an empty hierarchy.
func NewConfigHierarchy() *ConfigHierarchy {
	return &ConfigHierarchy{nameToConfig: make(map[string]WritableConfig)}
}

// AddConfig registers cs under name at the lowest priority so far.
func (ch *ConfigHierarchy) AddConfig(name string, cs WritableConfig) {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := ch.nameToConfig[name]; ok {
		panic("config " + name + " registered twice")
	}

	ch.configs = append(ch.configs, cs)
	ch.names = append(ch.names, name)
	ch.nameToConfig[name] = cs
}

// GetConfig retrieves a named config from the hierarchy.
func (ch *ConfigHierarchy) GetConfig(name string) (WritableConfig, bool) {
	cs, ok := ch.nameToConfig[strings.ToLower(strings.TrimSpace(name))]
	return cs, ok
}

func (ch *ConfigHierarchy) GetString(name string) (string, error) {
	ns, paramName := splitParamName(name)

	if ns != "" {
		cs, ok := ch.nameToConfig[ns]
		if !ok {
			return "", errors.Errorf("unknown config namespace %q", ns)
		}
		return cs.GetString(paramName)
	}

	for _, cs := range ch.configs {
		val, err := cs.GetString(paramName)
		if err == nil {
			return val, nil
		} else if err != ErrConfigParamNotFound {
			return "", err
		}
	}
	return "", ErrConfigParamNotFound
}

func (ch *ConfigHierarchy) GetStringOrDefault(name, defStr string) string {
	if val, err := ch.GetString(name); err == nil {
		return val
	}
	return defStr
}

// SetStrings sets parameter values. Every name must be qualified with a
// namespace as in "namespace::param".
func (ch *ConfigHierarchy) SetStrings(updates map[string]string) error {
	byNS := make(map[string]map[string]string)
	for k, v := range updates {
		ns, paramName := splitParamName(k)
		if ns == "" {
			return errors.Errorf("parameter %q is not qualified with a config namespace", k)
		}
		if _, ok := ch.nameToConfig[ns]; !ok {
			return errors.Errorf("unknown config namespace %q", ns)
		}

		if byNS[ns] == nil {
			byNS[ns] = make(map[string]string)
		}
		byNS[ns][paramName] = v
	}

	for ns, nsUpdates := range byNS {
		if err := ch.nameToConfig[ns].SetStrings(nsUpdates); err != nil {
			return err
		}
	}
	return nil
}

// Unset removes parameters. As with SetStrings, names must be qualified.
func (ch *ConfigHierarchy) Unset(params []string) error {
	byNS := make(map[string][]string)
	for _, param := range params {
		ns, paramName := splitParamName(param)
		if ns == "" {
			return errors.Errorf("parameter %q is not qualified with a config namespace", param)
		}
		if _, ok := ch.nameToConfig[ns]; !ok {
			return errors.Errorf("unknown config namespace %q", ns)
		}
		byNS[ns] = append(byNS[ns], paramName)
	}

	for ns, nsParams := range byNS {
		if err := ch.nameToConfig[ns].Unset(nsParams); err != nil {
			return err
		}
	}
	return nil
}

// Iter iterates over all configs in the hierarchy yielding qualified
// parameter names.
func (ch *ConfigHierarchy) Iter(cb func(string, string) (stop bool)) {
	for i, cs := range ch.configs {
		stopped := false
		cs.Iter(func(name, value string) (stop bool) {
			stopped = cb(ch.names[i]+"::"+name, value)
			return stopped
		})
		if stopped {
			return
		}
	}
}

func (ch *ConfigHierarchy) Size() int {
	size := 0
	for _, cs := range ch.configs {
		size += cs.Size()
	}
	return size
}

// splitParamName splits "ns::param" into a lowercased, space-trimmed
// namespace and the remaining parameter name. A name with no "::" separator
// yields an empty namespace.
func splitParamName(paramName string) (string, string) {
	parts := strings.Split(paramName, "::")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) == 1 {
		return "", parts[0]
	}
	return strings.ToLower(parts[0]), strings.Join(parts[1:], "::")
}
