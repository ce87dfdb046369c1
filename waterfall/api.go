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

package waterfall

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/server/router"

	"go.chromium.org/findit/internal/config"
	"go.chromium.org/findit/model"
)

// BuildFailurePath is where the build failure API is served.
const BuildFailurePath = "/_ah/api/findit-api/v1/buildfailure"

var masterURLRe = regexp.MustCompile(
	`^https?://(?:(?:build|ci)\.chromium\.org/p|uberchromegw\.corp\.google\.com/i|chrome-build\.corp\.google\.com/i)/([^/]+)(?:/.*)?$`)

// MasterNameFromURL returns the master name in a buildbot master URL, or ""
// if the URL isn't one.
func MasterNameFromURL(url string) string {
	if m := masterURLRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

// BuildFailure is a failed build reported by a client.
type BuildFailure struct {
	MasterURL   string   `json:"master_url"`
	BuilderName string   `json:"builder_name"`
	BuildNumber int64    `json:"build_number"`
	FailedSteps []string `json:"failed_steps,omitempty"`
}

// SuspectedCL is a change suspected of causing a failure.
type SuspectedCL struct {
	RepoName       string `json:"repo_name"`
	Revision       string `json:"revision"`
	CommitPosition int64  `json:"commit_position,omitempty"`
}

// FailureAnalysisResult is the result of the analysis of one failed step or
// test.
type FailureAnalysisResult struct {
	MasterURL                   string         `json:"master_url"`
	BuilderName                 string         `json:"builder_name"`
	BuildNumber                 int64          `json:"build_number"`
	StepName                    string         `json:"step_name"`
	IsSubTest                   bool           `json:"is_sub_test"`
	TestName                    string         `json:"test_name,omitempty"`
	FirstKnownFailedBuildNumber int64          `json:"first_known_failed_build_number,omitempty"`
	SuspectedCLs                []*SuspectedCL `json:"suspected_cls,omitempty"`
}

// The parts of the analyzer result reported to clients.
type analysisResult struct {
	Failures []*failureSuspects `json:"failures"`
}

type failureSuspects struct {
	StepName     string            `json:"step_name"`
	FirstFailure int64             `json:"first_failure"`
	SuspectedCLs []*SuspectedCL    `json:"suspected_cls"`
	Tests        []*failureSuspect `json:"tests,omitempty"`
}

type failureSuspect struct {
	TestName     string         `json:"test_name"`
	FirstFailure int64          `json:"first_failure"`
	SuspectedCLs []*SuspectedCL `json:"suspected_cls"`
}

// AnalyzeBuildFailures returns the known results of the given failed builds
// and triggers new analyses of them where needed.
//
// Builds of unsupported masters are ignored. Failures to trigger analyses
// are logged and not returned: the next request triggers them again.
func (t *Trigger) AnalyzeBuildFailures(ctx context.Context, builds []*BuildFailure) ([]*FailureAnalysisResult, error) {
	cfg, err := config.Get(ctx)
	if err != nil {
		return nil, err
	}
	var results []*FailureAnalysisResult
	var toCheck []*BuildToCheck
	for _, bf := range builds {
		master := MasterNameFromURL(bf.MasterURL)
		if master == "" || !cfg.IsMasterSupported(master) {
			continue
		}
		b := model.BuildID{Master: master, Builder: bf.BuilderName, Number: bf.BuildNumber}
		toCheck = append(toCheck, &BuildToCheck{Build: b, FailedSteps: bf.FailedSteps})

		a, err := model.GetAnalysis(ctx, b)
		if err != nil {
			return nil, err
		}
		if a == nil || a.Failed() || len(a.Result) == 0 {
			continue
		}
		res := &analysisResult{}
		if err := json.Unmarshal(a.Result, res); err != nil {
			logging.Errorf(ctx, "Bad analysis result of %s: %s", b, err)
			continue
		}
		results = append(results, resultsOf(bf, res)...)
	}

	logging.Infof(ctx, "%d build failure(s), while %d are supported", len(builds), len(toCheck))
	if err := t.addTriggerTask(ctx, toCheck); err != nil {
		logging.Errorf(ctx, "Failed to trigger new analyses on demand: %s", err)
	}
	return results, nil
}

func resultsOf(bf *BuildFailure, res *analysisResult) []*FailureAnalysisResult {
	var results []*FailureAnalysisResult
	add := func(step, test string, firstFailure int64, cls []*SuspectedCL) {
		results = append(results, &FailureAnalysisResult{
			MasterURL:                   bf.MasterURL,
			BuilderName:                 bf.BuilderName,
			BuildNumber:                 bf.BuildNumber,
			StepName:                    step,
			IsSubTest:                   test != "",
			TestName:                    test,
			FirstKnownFailedBuildNumber: firstFailure,
			SuspectedCLs:                cls,
		})
	}
	for _, f := range res.Failures {
		if len(f.Tests) == 0 {
			if len(f.SuspectedCLs) > 0 {
				add(f.StepName, "", f.FirstFailure, f.SuspectedCLs)
			}
			continue
		}
		for _, test := range f.Tests {
			if len(test.SuspectedCLs) > 0 {
				add(f.StepName, test.TestName, test.FirstFailure, test.SuspectedCLs)
			}
		}
	}
	return results
}

type buildFailureRequest struct {
	Builds []*BuildFailure `json:"builds"`
}

type buildFailureResponse struct {
	Results []*FailureAnalysisResult `json:"results"`
}

// HandleBuildFailures serves the build failure API.
func (t *Trigger) HandleBuildFailures(ctx *router.Context) {
	req := &buildFailureRequest{}
	if err := json.NewDecoder(ctx.Request.Body).Decode(req); err != nil {
		err = errors.Annotate(err, "could not decode request").Err()
		logging.Warningf(ctx.Request.Context(), "%s", err)
		http.Error(ctx.Writer, err.Error(), http.StatusBadRequest)
		return
	}
	results, err := t.AnalyzeBuildFailures(ctx.Request.Context(), req.Builds)
	if err != nil {
		logging.Errorf(ctx.Request.Context(), "Error analyzing build failures: %s", err)
		http.Error(ctx.Writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []*FailureAnalysisResult{}
	}
	ctx.Writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(ctx.Writer).Encode(&buildFailureResponse{Results: results}); err != nil {
		logging.Errorf(ctx.Request.Context(), "Failed to write the response: %s", err)
	}
}
