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

// MapConfig is an in-memory WritableConfig backed by a map. It is not safe
// for concurrent use.
type MapConfig struct {
	properties map[string]string
}

var _ WritableConfig = &MapConfig{}

// NewMapConfig creates a MapConfig taking ownership of properties.
func NewMapConfig(properties map[string]string) *MapConfig {
	if properties == nil {
		properties = make(map[string]string)
	}
	return &MapConfig{properties}
}

func (mc *MapConfig) GetString(name string) (string, error) {
	if val, ok := mc.properties[name]; ok {
		return val, nil
	}
	return "", ErrConfigParamNotFound
}

func (mc *MapConfig) GetStringOrDefault(name, defStr string) string {
	if val, err := mc.GetString(name); err == nil {
		return val
	}
	return defStr
}

func (mc *MapConfig) SetStrings(updates map[string]string) error {
	for k, v := range updates {
		mc.properties[k] = v
	}
	return nil
}

func (mc *MapConfig) Unset(params []string) error {
	for _, param := range params {
		delete(mc.properties, param)
	}
	return nil
}

func (mc *MapConfig) Iter(cb func(string, string) (stop bool)) {
	for k, v := range mc.properties {
		if cb(k, v) {
			break
		}
	}
}

func (mc *MapConfig) Size() int {
	return len(mc.properties)
}
