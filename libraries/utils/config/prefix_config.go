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

import "strings"

// PrefixConfig exposes the subset of a WritableConfig whose parameter names
// share a dotted prefix, with the prefix stripped.
type PrefixConfig struct {
	c      WritableConfig
	prefix string
}

var _ WritableConfig = PrefixConfig{}

// NewPrefixConfig wraps cfg, scoping all accesses under prefix.
func NewPrefixConfig(cfg WritableConfig, prefix string) PrefixConfig {
	return PrefixConfig{c: cfg, prefix: prefix}
}

func (pc PrefixConfig) qualify(name string) string {
	return pc.prefix + "." + name
}

func (pc PrefixConfig) GetString(name string) (string, error) {
	return pc.c.GetString(pc.qualify(name))
}

func (pc PrefixConfig) GetStringOrDefault(name, defStr string) string {
	return pc.c.GetStringOrDefault(pc.qualify(name), defStr)
}

func (pc PrefixConfig) SetStrings(updates map[string]string) error {
	qualified := make(map[string]string, len(updates))
	for k, v := range updates {
		qualified[pc.qualify(k)] = v
	}
	return pc.c.SetStrings(qualified)
}

func (pc PrefixConfig) Unset(params []string) error {
	qualified := make([]string, len(params))
	for i, param := range params {
		qualified[i] = pc.qualify(param)
	}
	return pc.c.Unset(qualified)
}

func (pc PrefixConfig) Iter(cb func(string, string) (stop bool)) {
	pc.c.Iter(func(name, value string) (stop bool) {
		if strings.HasPrefix(name, pc.prefix+".") {
			return cb(strings.TrimPrefix(name, pc.prefix+"."), value)
		}
		return false
	})
}

func (pc PrefixConfig) Size() int {
	size := 0
	pc.Iter(func(string, string) bool {
		size++
		return false
	})
	return size
}
