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

package config

import (
	"net/url"
	"sort"

	"go.chromium.org/luci/config/validation"
)

// Validate validates the service settings.
func Validate(ctx *validation.Context, cfg *Config) {
	validateTryJobSettings(ctx, &cfg.TryJob)
	validateTrybots(ctx, cfg.BuildersToTrybots)
	validateGitiles(ctx, &cfg.Gitiles)
	if cfg.Analyzer.URL != "" {
		ctx.Enter("analyzer")
		if _, err := url.ParseRequestURI(cfg.Analyzer.URL); err != nil {
			ctx.Errorf("invalid url: %s", err)
		}
		ctx.Exit()
	}
}

func validateTryJobSettings(ctx *validation.Context, s *TryJobSettings) {
	ctx.Enter("try_job_settings")
	defer ctx.Exit()

	if s.ServerQueryIntervalSeconds <= 0 {
		ctx.Errorf("server_query_interval_seconds must be positive")
	}
	if s.JobTimeoutHours <= 0 {
		ctx.Errorf("job_timeout_hours must be positive")
	}
	if s.AllowedResponseErrorTimes < 0 {
		ctx.Errorf("allowed_response_error_times must not be negative")
	}
	if s.ServerQueryIntervalSeconds > 0 && s.JobTimeoutHours > 0 &&
		s.PollInterval() > s.Timeout() {
		ctx.Errorf("server_query_interval_seconds exceeds the job timeout")
	}
}

func validateTrybots(ctx *validation.Context, m map[string]map[string]*Trybot) {
	ctx.Enter("builders_to_trybots")
	defer ctx.Exit()

	// Sorted for stable error messages.
	masters := make([]string, 0, len(m))
	for master := range m {
		masters = append(masters, master)
	}
	sort.Strings(masters)
	for _, master := range masters {
		builders := make([]string, 0, len(m[master]))
		for builder := range m[master] {
			builders = append(builders, builder)
		}
		sort.Strings(builders)
		for _, builder := range builders {
			ctx.Enter("%s/%s", master, builder)
			switch tb := m[master][builder]; {
			case tb == nil:
				ctx.Errorf("missing trybot")
			case tb.Mastername == "":
				ctx.Errorf("missing mastername")
			case tb.Buildername == "":
				ctx.Errorf("missing buildername")
			}
			ctx.Exit()
		}
	}
}

func validateGitiles(ctx *validation.Context, g *GitilesSettings) {
	ctx.Enter("gitiles")
	defer ctx.Exit()

	if g.Host == "" {
		ctx.Errorf("missing host")
	}
	if g.Project == "" {
		ctx.Errorf("missing project")
	}
}
