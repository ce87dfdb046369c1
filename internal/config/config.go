// Copyright 2024 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config implements the service settings of Findit.
//
// Settings are stored as versioned entities in datastore, so every change is
// kept as history. They can be imported from a YAML file.
package config

import (
	"context"
	"encoding/json"
	"os"
	"reflect"
	"time"

	"gopkg.in/yaml.v2"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/config/validation"
	"go.chromium.org/luci/gae/service/datastore"
	"go.chromium.org/luci/server/caching"

	"go.chromium.org/findit/internal/versioned"
)

// cacheExpiry is how long Get may return settings that were replaced.
const cacheExpiry = time.Minute

var settingsCacheSlot = caching.RegisterCacheSlot()

// Config is the service-wide configuration.
type Config struct {
	TryJob TryJobSettings `json:"try_job_settings" yaml:"try_job_settings"`
	// Masters whose build failures are analyzed.
	SupportedMasters []string `json:"supported_masters" yaml:"supported_masters"`
	// Waterfall master name to builder name to the trybot running try-jobs
	// for it.
	BuildersToTrybots map[string]map[string]*Trybot `json:"builders_to_trybots" yaml:"builders_to_trybots"`
	Gitiles           GitilesSettings               `json:"gitiles" yaml:"gitiles"`
	Analyzer          AnalyzerSettings              `json:"analyzer" yaml:"analyzer"`
}

// TryJobSettings controls how try-jobs are monitored.
type TryJobSettings struct {
	ServerQueryIntervalSeconds int64 `json:"server_query_interval_seconds" yaml:"server_query_interval_seconds"`
	JobTimeoutHours            int64 `json:"job_timeout_hours" yaml:"job_timeout_hours"`
	AllowedResponseErrorTimes  int64 `json:"allowed_response_error_times" yaml:"allowed_response_error_times"`
}

// PollInterval is the time between two polls of a job.
func (s TryJobSettings) PollInterval() time.Duration {
	return time.Duration(s.ServerQueryIntervalSeconds) * time.Second
}

// Timeout is the time budget for monitoring a job.
func (s TryJobSettings) Timeout() time.Duration {
	return time.Duration(s.JobTimeoutHours) * time.Hour
}

// Trybot is the try-server builder used for a waterfall builder.
type Trybot struct {
	Mastername  string `json:"mastername" yaml:"mastername"`
	Buildername string `json:"buildername" yaml:"buildername"`
	// StrictRegex makes object files the compile targets when a signal
	// names the source file.
	StrictRegex bool `json:"strict_regex,omitempty" yaml:"strict_regex,omitempty"`
}

// GitilesSettings locates the repository the blame lists refer to.
type GitilesSettings struct {
	Host    string `json:"host" yaml:"host"`
	Project string `json:"project" yaml:"project"`
}

// AnalyzerSettings locates the heuristic failure analyzer.
type AnalyzerSettings struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Default returns the settings used until any are saved.
func Default() *Config {
	return &Config{
		TryJob: TryJobSettings{
			ServerQueryIntervalSeconds: 60,
			JobTimeoutHours:            2,
			AllowedResponseErrorTimes:  5,
		},
		Gitiles: GitilesSettings{
			Host:    "chromium.googlesource.com",
			Project: "chromium/src",
		},
	}
}

// Trybot returns the trybot for the builder, or nil.
func (c *Config) Trybot(master, builder string) *Trybot {
	return c.BuildersToTrybots[master][builder]
}

// IsMasterSupported returns true if builds of the master are analyzed.
func (c *Config) IsMasterSupported(master string) bool {
	for _, m := range c.SupportedMasters {
		if m == master {
			return true
		}
	}
	return false
}

// Settings is a stored version of Config.
type Settings struct {
	_kind   string         `gae:"$kind,Settings"`
	ID      int64          `gae:"$id"`
	Root    *datastore.Key `gae:"$parent"`
	Config  []byte         `gae:"config,noindex"`
	Updated time.Time      `gae:"updated"`
	// Who or what saved this version.
	UpdatedBy string `gae:"updated_by,noindex"`
}

// VersionedKind implements versioned.Entity.
func (s *Settings) VersionedKind() string { return "Settings" }

// SetVersion implements versioned.Entity.
func (s *Settings) SetVersion(root *datastore.Key, version int64) {
	s.Root = root
	s.ID = version
}

// Version implements versioned.Entity.
func (s *Settings) Version() int64 { return s.ID }

// Get returns the latest settings, or the defaults if none were saved.
//
// Settings are cached in process memory and may be stale by up to a minute.
// The returned Config must not be modified.
func Get(ctx context.Context) (*Config, error) {
	val, err := settingsCacheSlot.Fetch(ctx, func(any) (any, time.Duration, error) {
		cfg, err := fetch(ctx)
		if err != nil {
			return nil, 0, err
		}
		return cfg, cacheExpiry, nil
	})
	switch {
	case errors.Is(err, caching.ErrNoProcessCache):
		// Unit tests may not have the process cache installed.
		return fetch(ctx)
	case err != nil:
		return nil, err
	}
	return val.(*Config), nil
}

func fetch(ctx context.Context) (*Config, error) {
	ctx = datastore.WithoutTransaction(ctx)
	s := &Settings{}
	switch err := versioned.GetLatest(ctx, s); {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return Default(), nil
	case err != nil:
		return nil, errors.Annotate(err, "get settings").Err()
	}
	cfg := Default()
	if err := json.Unmarshal(s.Config, cfg); err != nil {
		return nil, errors.Annotate(err, "settings version %d are broken", s.ID).Err()
	}
	return cfg, nil
}

// Update validates cfg and saves it as a new version.
//
// Returns the new version, or the current one if cfg is unchanged.
func Update(ctx context.Context, cfg *Config, updatedBy string) (int64, error) {
	vctx := &validation.Context{Context: ctx}
	Validate(vctx, cfg)
	if err := vctx.Finalize(); err != nil {
		return 0, errors.Annotate(err, "invalid settings").Err()
	}

	cur, err := fetch(ctx)
	if err != nil {
		return 0, err
	}
	if reflect.DeepEqual(cur, cfg) {
		v, err := versioned.LatestVersion(ctx, "Settings")
		if err != nil {
			return 0, err
		}
		if v > 0 {
			return v, nil
		}
	}

	blob, err := json.Marshal(cfg)
	if err != nil {
		return 0, errors.Annotate(err, "marshal settings").Err()
	}
	v, err := versioned.Save(ctx, &Settings{
		Config:    blob,
		Updated:   clock.Now(ctx).UTC(),
		UpdatedBy: updatedBy,
	})
	if err != nil {
		return 0, errors.Annotate(err, "save settings").Err()
	}
	logging.Infof(ctx, "Saved settings version %d by %s", v, updatedBy)
	return v, nil
}

// ParseYAML reads settings from YAML. Unset fields keep their defaults.
func ParseYAML(blob []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(blob, cfg); err != nil {
		return nil, errors.Annotate(err, "parse settings YAML").Err()
	}
	return cfg, nil
}

// ImportFile saves the settings in a YAML file as a new version.
func ImportFile(ctx context.Context, path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return errors.Annotate(err, "read %s", path).Err()
	}
	cfg, err := ParseYAML(blob)
	if err != nil {
		return err
	}
	_, err = Update(ctx, cfg, "file:"+path)
	return err
}
