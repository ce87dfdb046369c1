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
	"net/http/httptest"
	"testing"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
	"go.chromium.org/luci/gae/impl/memory"

	"go.chromium.org/findit/internal/config"
	"go.chromium.org/findit/model"
	"go.chromium.org/findit/tryjob"
)

func TestHTTPAnalyzer(t *testing.T) {
	t.Parallel()

	ftt.Run("HTTPAnalyzer", t, func(t *ftt.Test) {
		ctx := memory.Use(context.Background())
		b := model.BuildID{Master: "m", Builder: "b", Number: 123}

		var got []*analyzerRequest
		responses := map[string]string{
			"/analyze": `{
				"failure_info": {
					"master_name": "m",
					"builder_name": "b",
					"build_number": 123,
					"failed_steps": {"compile": {"current_failure": 123, "first_failure": 122, "last_pass": 121}},
					"builds": {"121": {"chromium_revision": "rev0"}, "123": {"chromium_revision": "rev2"}}
				},
				"signals": {"compile": {"failed_targets": [{"target": "a.exe"}]}},
				"classified_tests": {"browser_tests on Linux": {"step_name_no_platform": "browser_tests", "reliable_tests": ["t1"], "flaky_tests": ["t2"]}},
				"build_completed": true,
				"result": {"failures": []}
			}`,
			"/build_status": `{"completed": true}`,
		}
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := &analyzerRequest{}
			if err := json.NewDecoder(r.Body).Decode(req); err != nil || r.Method != http.MethodPost {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			got = append(got, req)
			w.WriteHeader(status)
			if status == http.StatusOK {
				w.Write([]byte(responses[r.URL.Path]))
			}
		}))
		defer srv.Close()
		a := &HTTPAnalyzer{Client: srv.Client(), URL: srv.URL + "/"}

		t.Run("Analyze", func(t *ftt.Test) {
			res, err := a.Analyze(ctx, b)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, got, should.Resemble([]*analyzerRequest{{MasterName: "m", BuilderName: "b", BuildNumber: 123}}))
			assert.Loosely(t, res.BuildCompleted, should.BeTrue)
			assert.Loosely(t, res.FailureInfo.BuildID(), should.Resemble(b))
			assert.Loosely(t, res.FailureInfo.FailedSteps["compile"].FirstFailure, should.Equal(int64(122)))
			assert.Loosely(t, *res.FailureInfo.FailedSteps["compile"].LastPass, should.Equal(int64(121)))
			assert.Loosely(t, res.FailureInfo.Builds[121].ChromiumRevision, should.Equal("rev0"))
			assert.Loosely(t, res.Signals["compile"].FailedTargets[0].Target, should.Equal("a.exe"))
			assert.Loosely(t, res.ClassifiedTests["browser_tests on Linux"], should.Resemble(&tryjob.ClassifiedTests{
				StepNameNoPlatform: "browser_tests",
				ReliableTests:      []string{"t1"},
				FlakyTests:         []string{"t2"},
			}))
			assert.Loosely(t, res.NotPassedSteps(), should.Resemble([]string{"compile"}))
			assert.Loosely(t, string(res.Result), should.Equal(`{"failures": []}`))
		})

		t.Run("BuildCompleted", func(t *ftt.Test) {
			completed, err := a.BuildCompleted(ctx, b)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, completed, should.BeTrue)
		})

		t.Run("unknown build", func(t *ftt.Test) {
			status = http.StatusNotFound
			_, err := a.BuildCompleted(ctx, b)
			assert.Loosely(t, errors.Is(err, ErrUnknownBuild), should.BeTrue)
		})

		t.Run("server errors are transient", func(t *ftt.Test) {
			status = http.StatusServiceUnavailable
			_, err := a.Analyze(ctx, b)
			assert.Loosely(t, err, should.NotBeNil)
			assert.Loosely(t, transient.Tag.In(err), should.BeTrue)
		})

		t.Run("client errors are not", func(t *ftt.Test) {
			status = http.StatusForbidden
			_, err := a.Analyze(ctx, b)
			assert.Loosely(t, err, should.NotBeNil)
			assert.Loosely(t, transient.Tag.In(err), should.BeFalse)
		})

		t.Run("URL from settings", func(t *ftt.Test) {
			a := &HTTPAnalyzer{Client: srv.Client()}
			_, err := a.BuildCompleted(ctx, b)
			assert.Loosely(t, err, should.ErrLike("no failure analyzer is configured"))

			cfg := config.Default()
			cfg.Analyzer.URL = srv.URL
			_, err = config.Update(ctx, cfg, "test")
			assert.Loosely(t, err, should.BeNil)
			completed, err := a.BuildCompleted(ctx, b)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, completed, should.BeTrue)
		})
	})
}
