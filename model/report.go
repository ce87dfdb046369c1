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

package model

import (
	"bytes"
	"encoding/json"
	"sort"

	"go.chromium.org/luci/common/errors"
)

// Report is the `properties.report` output of a completed try-job recipe.
//
// For compile jobs Result maps revision to "passed"/"failed". For test jobs
// Result maps revision to step name to a StepResult.
type Report struct {
	Result   json.RawMessage `json:"result,omitempty"`
	Metadata *ReportMetadata `json:"metadata,omitempty"`
}

// ReportMetadata is the `metadata` section of a report.
type ReportMetadata struct {
	RegressionRangeSize int64 `json:"regression_range_size,omitempty"`
}

// StepResult is the outcome of one step at one revision in a test report.
type StepResult struct {
	Status string `json:"status"`
	// Valid is false when the step could not be trusted, e.g. it didn't run.
	Valid    bool     `json:"valid"`
	Failures []string `json:"failures,omitempty"`
}

// CompileResult decodes Result of a compile report.
func (r *Report) CompileResult() (map[string]string, error) {
	res := map[string]string{}
	if r == nil || len(r.Result) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return nil, errors.Annotate(err, "decode compile report").Err()
	}
	return res, nil
}

// TestResult decodes Result of a test report.
func (r *Report) TestResult() (map[string]map[string]*StepResult, error) {
	res := map[string]map[string]*StepResult{}
	if r == nil || len(r.Result) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return nil, errors.Annotate(err, "decode test report").Err()
	}
	return res, nil
}

// TestedRevisions returns the number of revisions in Result.
func (r *Report) TestedRevisions() int {
	if r == nil || len(r.Result) == 0 {
		return 0
	}
	var res map[string]json.RawMessage
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return 0
	}
	return len(res)
}

// CulpritInfo describes a culprit commit.
//
// CommitPosition and ReviewURL are empty when the changelog lookup failed.
type CulpritInfo struct {
	Revision       string `json:"revision"`
	CommitPosition int64  `json:"commit_position,omitempty"`
	ReviewURL      string `json:"review_url,omitempty"`
}

// StepCulprit is the culprit of a failed step and of its failed tests.
type StepCulprit struct {
	// Step-level culprit, when the step reported no test details.
	*CulpritInfo
	Tests map[string]*CulpritInfo `json:"tests,omitempty"`
}

// Culprit is the culprit annotation for a completed try-job.
type Culprit struct {
	Compile *CulpritInfo            `json:"compile,omitempty"`
	Tests   map[string]*StepCulprit `json:"tests,omitempty"`
}

// Revisions returns the distinct culprit revisions, sorted.
func (c *Culprit) Revisions() []string {
	if c == nil {
		return nil
	}
	seen := map[string]struct{}{}
	add := func(info *CulpritInfo) {
		if info != nil && info.Revision != "" {
			seen[info.Revision] = struct{}{}
		}
	}
	add(c.Compile)
	for _, step := range c.Tests {
		add(step.CulpritInfo)
		for _, test := range step.Tests {
			add(test)
		}
	}
	revs := make([]string, 0, len(seen))
	for rev := range seen {
		revs = append(revs, rev)
	}
	sort.Strings(revs)
	return revs
}

// FailureResult is where a failure is first attributed to.
//
// Steps without test details carry BuildKey; steps with tests carry a map
// test name to build key.
type FailureResult struct {
	BuildKey string
	Tests    map[string]string
}

// MarshalJSON encodes the result as either a string or an object.
func (f *FailureResult) MarshalJSON() ([]byte, error) {
	if f.Tests != nil {
		return json.Marshal(f.Tests)
	}
	return json.Marshal(f.BuildKey)
}

// UnmarshalJSON is the reverse of MarshalJSON.
func (f *FailureResult) UnmarshalJSON(b []byte) error {
	if b = bytes.TrimSpace(b); len(b) > 0 && b[0] == '{' {
		f.BuildKey = ""
		return json.Unmarshal(b, &f.Tests)
	}
	f.Tests = nil
	return json.Unmarshal(b, &f.BuildKey)
}

// FailureResultMap maps failed step names to where they were first
// attributed to.
type FailureResultMap map[string]*FailureResult
