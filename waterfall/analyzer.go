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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry/transient"

	"go.chromium.org/findit/internal/config"
	"go.chromium.org/findit/model"
	"go.chromium.org/findit/tryjob"
)

const analyzerTimeout = 60 * time.Second

// ErrUnknownBuild is returned by an Analyzer that knows nothing of a build.
var ErrUnknownBuild = errors.New("unknown build")

// AnalyzerResult is the output of the failure analyzer for one build.
type AnalyzerResult struct {
	FailureInfo *tryjob.FailureInfo           `json:"failure_info"`
	Signals     map[string]*tryjob.StepSignal `json:"signals,omitempty"`
	// ClassifiedTests are the rerun outcomes of failed swarming steps, by
	// step name.
	ClassifiedTests map[string]*tryjob.ClassifiedTests `json:"classified_tests,omitempty"`
	BuildCompleted  bool                               `json:"build_completed"`
	// Result is stored with the analysis as is. See analysisResult for the
	// parts that are read back.
	Result json.RawMessage `json:"result,omitempty"`
}

// NotPassedSteps returns the names of the failed steps, sorted.
func (r *AnalyzerResult) NotPassedSteps() []string {
	if r.FailureInfo == nil {
		return nil
	}
	return sortedKeys(r.FailureInfo.FailedSteps)
}

// Analyzer runs the heuristic failure analysis of builds.
type Analyzer interface {
	// BuildCompleted returns true if the build has finished.
	BuildCompleted(ctx context.Context, b model.BuildID) (bool, error)
	// Analyze finds the failures of a build and their suspects.
	Analyze(ctx context.Context, b model.BuildID) (*AnalyzerResult, error)
}

// HTTPAnalyzer talks to the failure analyzer over JSON HTTP.
type HTTPAnalyzer struct {
	Client *http.Client
	// URL is the analyzer base URL. If empty, the one in the settings is
	// used.
	URL string
}

type analyzerRequest struct {
	MasterName  string `json:"master_name"`
	BuilderName string `json:"builder_name"`
	BuildNumber int64  `json:"build_number"`
}

type buildStatus struct {
	Completed bool `json:"completed"`
}

// BuildCompleted implements Analyzer.
func (a *HTTPAnalyzer) BuildCompleted(ctx context.Context, b model.BuildID) (bool, error) {
	status := &buildStatus{}
	if err := a.call(ctx, "build_status", b, status); err != nil {
		return false, err
	}
	return status.Completed, nil
}

// Analyze implements Analyzer.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, b model.BuildID) (*AnalyzerResult, error) {
	res := &AnalyzerResult{}
	if err := a.call(ctx, "analyze", b, res); err != nil {
		return nil, err
	}
	if res.FailureInfo == nil {
		return nil, errors.Reason("analyzer returned no failure_info for %s", b).Err()
	}
	return res, nil
}

func (a *HTTPAnalyzer) call(ctx context.Context, method string, b model.BuildID, out any) error {
	base, err := a.baseURL(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(&analyzerRequest{
		MasterName:  b.Master,
		BuilderName: b.Builder,
		BuildNumber: b.Number,
	})
	if err != nil {
		return err
	}

	ctx, cancel := clock.WithTimeout(ctx, analyzerTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Client.Do(req)
	if err != nil {
		return errors.Annotate(err, "%s %s", method, b).Tag(transient.Tag).Err()
	}
	defer resp.Body.Close()
	if err := apiErr(googleapi.CheckResponse(resp)); err != nil {
		return errors.Annotate(err, "%s %s", method, b).Err()
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Annotate(err, "decode %s response of %s", method, b).Err()
	}
	return nil
}

func (a *HTTPAnalyzer) baseURL(ctx context.Context) (string, error) {
	if a.URL != "" {
		return strings.TrimSuffix(a.URL, "/"), nil
	}
	cfg, err := config.Get(ctx)
	if err != nil {
		return "", err
	}
	if cfg.Analyzer.URL == "" {
		return "", errors.Reason("no failure analyzer is configured").Err()
	}
	return strings.TrimSuffix(cfg.Analyzer.URL, "/"), nil
}

// apiErr converts googleapi.Error to an appropriate type.
func apiErr(e error) error {
	err, ok := e.(*googleapi.Error)
	switch {
	case !ok:
		return e
	case err.Code == http.StatusNotFound:
		return ErrUnknownBuild
	case err.Code >= 500:
		return transient.Tag.Apply(err)
	}
	return err
}
