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
	"strconv"

	"github.com/pkg/errors"
)

// ErrConfigParamNotFound is returned when a parameter is not present in a
// config.
var ErrConfigParamNotFound = errors.New("param not found")

// ReadableConfig is a set of string parameters that can be read and iterated.
type ReadableConfig interface {
	// GetString retrieves a value for a given parameter name, or
	// ErrConfigParamNotFound if absent.
	GetString(name string) (string, error)

	// GetStringOrDefault retrieves a value, returning defStr if absent.
	GetStringOrDefault(name, defStr string) string

	// Iter iterates over every parameter until the callback returns true.
	Iter(func(name, value string) (stop bool))

	// Size returns the number of parameters.
	Size() int
}

// WritableConfig is a ReadableConfig whose parameters can be set and unset.
type WritableConfig interface {
	ReadableConfig

	// SetStrings updates the values of the given parameters, adding any
	// that are absent.
	SetStrings(updates map[string]string) error

	// Unset removes the given parameters. Removing an absent parameter is
	// not an error.
	Unset(params []string) error
}

// GetString reads a string parameter from cfg.
func GetString(cfg ReadableConfig, name string) (string, error) {
	return cfg.GetString(name)
}

// GetInt reads a parameter and parses it as a base 10 int64.
func GetInt(cfg ReadableConfig, name string) (int64, error) {
	str, err := cfg.GetString(name)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(str, 10, 64)
}

// GetUint reads a parameter and parses it as a base 10 uint64.
func GetUint(cfg ReadableConfig, name string) (uint64, error) {
	str, err := cfg.GetString(name)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(str, 10, 64)
}

// GetFloat reads a parameter and parses it as a float64.
func GetFloat(cfg ReadableConfig, name string) (float64, error) {
	str, err := cfg.GetString(name)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(str, 64)
}

// SetStrings writes the given parameter values to cfg.
func SetStrings(cfg WritableConfig, updates map[string]string) error {
	return cfg.SetStrings(updates)
}

// SetInt writes an int64 parameter value to cfg.
func SetInt(cfg WritableConfig, name string, val int64) error {
	return cfg.SetStrings(map[string]string{name: strconv.FormatInt(val, 10)})
}

// SetUint writes a uint64 parameter value to cfg.
func SetUint(cfg WritableConfig, name string, val uint64) error {
	return cfg.SetStrings(map[string]string{name: strconv.FormatUint(val, 10)})
}

// SetFloat writes a float64 parameter value to cfg.
func SetFloat(cfg WritableConfig, name string, val float64) error {
	return cfg.SetStrings(map[string]string{name: strconv.FormatFloat(val, 'f', -1, 64)})
}
