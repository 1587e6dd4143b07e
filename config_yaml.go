// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package gdk

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// fileFarm is Farm's on-disk shape: Roles is spelled out as a list of
// names rather than a bitmask so a config file doesn't need to know
// the numeric value any Role constant happens to have.
type fileFarm struct {
	Dir   string   `json:"dir"`
	Roles []string `json:"roles"`
}

// fileConfig is Config's on-disk shape. Durations are strings parsed
// with time.ParseDuration rather than raw nanosecond counts, and Logf
// has no on-disk representation (a func value can't survive
// serialization) — LoadConfigYAML callers set it after loading, the
// same way they would set any other callback-shaped field.
type fileConfig struct {
	Farms []fileFarm `json:"farms"`

	MMapMinSizePersistent int64 `json:"mmapMinSizePersistent"`
	MMapMinSizeTransient  int64 `json:"mmapMinSizeTransient"`
	MemMaxSize            int64 `json:"memMaxSize"`

	TrimMinimumAge string `json:"trimMinimumAge"`
	TrimInterval   string `json:"trimInterval"`
	TrimLikelihood int    `json:"trimLikelihood"`

	DebugAssertions        bool `json:"debugAssertions"`
	DebugRecheckProperties bool `json:"debugRecheckProperties"`
	DebugNoSync            bool `json:"debugNoSync"`
}

var roleNames = map[string]Role{
	"transient":  RoleTransient,
	"persistent": RolePersistent,
	"hash":       RoleHash,
	"orderindex": RoleOrderIndex,
	"varheap":    RoleVarHeap,
}

// LoadConfigYAML parses a YAML-encoded Config, applying DefaultConfig's
// sizing defaults to any field the file leaves at its zero value.
// sigs.k8s.io/yaml converts the document to JSON and decodes it with
// encoding/json, so the same field names this module already uses for
// its own JSON-tagged wire types (see pool.Record) carry over here.
func LoadConfigYAML(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("gdk: parsing config: %w", err)
	}
	if len(fc.Farms) == 0 {
		return Config{}, fmt.Errorf("gdk: config: no farms configured")
	}

	cfg := DefaultConfig(fc.Farms[0].Dir)
	cfg.Farms = cfg.Farms[:0]
	for _, ff := range fc.Farms {
		var roles Role
		for _, name := range ff.Roles {
			r, ok := roleNames[name]
			if !ok {
				return Config{}, fmt.Errorf("gdk: config: unknown farm role %q", name)
			}
			roles |= r
		}
		cfg.Farms = append(cfg.Farms, Farm{Dir: ff.Dir, Roles: roles})
	}

	if fc.MMapMinSizePersistent != 0 {
		cfg.MMapMinSizePersistent = fc.MMapMinSizePersistent
	}
	if fc.MMapMinSizeTransient != 0 {
		cfg.MMapMinSizeTransient = fc.MMapMinSizeTransient
	}
	if fc.MemMaxSize != 0 {
		cfg.MemMaxSize = fc.MemMaxSize
	}
	if fc.TrimMinimumAge != "" {
		d, err := time.ParseDuration(fc.TrimMinimumAge)
		if err != nil {
			return Config{}, fmt.Errorf("gdk: config: trimMinimumAge: %w", err)
		}
		cfg.TrimMinimumAge = d
	}
	if fc.TrimInterval != "" {
		d, err := time.ParseDuration(fc.TrimInterval)
		if err != nil {
			return Config{}, fmt.Errorf("gdk: config: trimInterval: %w", err)
		}
		cfg.TrimInterval = d
	}
	cfg.TrimLikelihood = fc.TrimLikelihood

	if fc.DebugAssertions {
		cfg.Debug |= DebugAssertions
	}
	if fc.DebugRecheckProperties {
		cfg.Debug |= DebugRecheckProperties
	}
	if fc.DebugNoSync {
		cfg.Debug |= DebugNoSync
	}

	return cfg, nil
}

// LoadConfigFile reads and parses a YAML config file from path.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("gdk: reading config %s: %w", path, err)
	}
	return LoadConfigYAML(data)
}
