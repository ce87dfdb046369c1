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
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.chromium.org/luci/common/clock/testclock"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
	"go.chromium.org/luci/gae/impl/memory"
	"go.chromium.org/luci/gae/service/datastore"
)

func TestBuildKey(t *testing.T) {
	t.Parallel()

	ftt.Run("Build keys", t, func(t *ftt.Test) {
		b := BuildID{Master: "chromium.linux", Builder: "Linux Tests", Number: 123}
		assert.Loosely(t, b.Key(), should.Equal("chromium.linux/Linux Tests/123"))

		parsed, err := ParseBuildKey(b.Key())
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, parsed, should.Resemble(b))

		t.Run("malformed", func(t *ftt.Test) {
			for _, key := range []string{"", "m", "m/b", "/b/1", "m//1", "m/b/x"} {
				_, err := ParseBuildKey(key)
				assert.Loosely(t, err, should.NotBeNil)
			}
		})
	})
}

func TestTryJob(t *testing.T) {
	t.Parallel()

	ftt.Run("TryJob", t, func(t *ftt.Test) {
		c := memory.Use(context.Background())
		now := testclock.TestRecentTimeUTC
		c, _ = testclock.UseTime(c, now)
		b := BuildID{Master: "m", Builder: "b", Number: 1}

		t.Run("UpsertResult", func(t *ftt.Test) {
			tj := NewTryJob(b, now)
			tj.UpsertResult(TryJobType_Test, &TryJobResult{TryJobID: "1"})
			tj.UpsertResult(TryJobType_Test, &TryJobResult{TryJobID: "1", URL: "url"})
			assert.Loosely(t, tj.TestResults, should.HaveLength(1))
			assert.Loosely(t, tj.TestResults[0].URL, should.Equal("url"))

			tj.UpsertResult(TryJobType_Test, &TryJobResult{TryJobID: "2"})
			assert.Loosely(t, tj.TestResults, should.HaveLength(2))
			assert.Loosely(t, tj.CompileResults, should.HaveLength(0))
			assert.Loosely(t, tj.FindResult(TryJobType_Test, "1").URL, should.Equal("url"))
			assert.Loosely(t, tj.FindResult(TryJobType_Compile, "1"), should.BeNil)
		})

		t.Run("round trip through datastore", func(t *ftt.Test) {
			tj := NewTryJob(b, now)
			tj.Status = AnalysisStatus_Completed
			tj.CompileResults = TryJobResults{{
				TryJobID: "1",
				URL:      "url",
				Report: &Report{
					Result:   json.RawMessage(`{"rev1":"passed","rev2":"failed"}`),
					Metadata: &ReportMetadata{RegressionRangeSize: 2},
				},
				Culprit: &Culprit{Compile: &CulpritInfo{Revision: "rev2", CommitPosition: 2}},
			}}
			tj.AddTryJobID("1")
			tj.AddTryJobID("1")
			assert.Loosely(t, datastore.Put(c, tj), should.BeNil)

			got, err := GetTryJob(c, b)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, got.Status, should.Equal(AnalysisStatus_Completed))
			assert.Loosely(t, got.TryJobIDs, should.Resemble([]string{"1"}))
			assert.Loosely(t, got.CompileResults, should.HaveLength(1))
			assert.Loosely(t, got.TestResults, should.HaveLength(0))
			res, err := got.CompileResults[0].Report.CompileResult()
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, res, should.Resemble(map[string]string{"rev1": "passed", "rev2": "failed"}))
			assert.Loosely(t, got.CompileResults[0].Culprit.Compile.Revision, should.Equal("rev2"))
		})

		t.Run("missing record", func(t *ftt.Test) {
			got, err := GetTryJob(c, b)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, got, should.BeNil)

			called := false
			got, err = UpdateTryJob(c, b, func(tj *TryJob) bool {
				called = true
				return true
			})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, got, should.BeNil)
			assert.Loosely(t, called, should.BeFalse)
		})

		t.Run("UpdateTryJob", func(t *ftt.Test) {
			assert.Loosely(t, datastore.Put(c, NewTryJob(b, now)), should.BeNil)
			var got *TryJob
			err := datastore.RunInTransaction(c, func(ctx context.Context) error {
				var err error
				got, err = UpdateTryJob(ctx, b, func(tj *TryJob) bool {
					tj.Status = AnalysisStatus_Running
					return true
				})
				return err
			}, nil)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, got.Status, should.Equal(AnalysisStatus_Running))

			stored, err := GetTryJob(c, b)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, stored.Status, should.Equal(AnalysisStatus_Running))

			t.Run("unchanged record is not saved", func(t *ftt.Test) {
				got, err := UpdateTryJob(c, b, func(tj *TryJob) bool {
					tj.Status = AnalysisStatus_Error
					return false
				})
				assert.Loosely(t, err, should.BeNil)
				assert.Loosely(t, got.Status, should.Equal(AnalysisStatus_Error))
				stored, err := GetTryJob(c, b)
				assert.Loosely(t, err, should.BeNil)
				assert.Loosely(t, stored.Status, should.Equal(AnalysisStatus_Running))
			})
		})
	})
}

func TestTryJobData(t *testing.T) {
	t.Parallel()

	ftt.Run("TryJobData times are monotonic", t, func(t *ftt.Test) {
		base := testclock.TestRecentTimeUTC
		d := &TryJobData{}
		d.SetRequestTime(base)
		d.SetStartTime(base.Add(-time.Minute))
		assert.Loosely(t, d.StartTime, should.Match(base))
		d.SetEndTime(base.Add(-time.Hour))
		assert.Loosely(t, d.EndTime, should.Match(base))

		d = &TryJobData{}
		d.SetEndTime(base)
		d.SetRequestTime(base.Add(time.Hour))
		assert.Loosely(t, d.RequestTime, should.Match(base))
	})
}

func TestFailureResultMap(t *testing.T) {
	t.Parallel()

	ftt.Run("FailureResultMap JSON", t, func(t *ftt.Test) {
		m := FailureResultMap{
			"compile": {BuildKey: "m/b/1"},
			"browser_tests": {Tests: map[string]string{
				"Test.One": "m/b/1",
			}},
		}
		blob, err := json.Marshal(m)
		assert.Loosely(t, err, should.BeNil)
		assert.Loosely(t, string(blob), should.Equal(`{"browser_tests":{"Test.One":"m/b/1"},"compile":"m/b/1"}`))

		var back FailureResultMap
		assert.Loosely(t, json.Unmarshal(blob, &back), should.BeNil)
		assert.Loosely(t, back, should.Resemble(m))
	})
}

func TestCulpritRevisions(t *testing.T) {
	t.Parallel()

	ftt.Run("Culprit revisions", t, func(t *ftt.Test) {
		c := &Culprit{Tests: map[string]*StepCulprit{
			"a": {Tests: map[string]*CulpritInfo{
				"a.t1": {Revision: "rev2"},
				"a.t2": {Revision: "rev1"},
			}},
			"b": {CulpritInfo: &CulpritInfo{Revision: "rev2"}},
		}}
		assert.Loosely(t, c.Revisions(), should.Resemble([]string{"rev1", "rev2"}))
		assert.Loosely(t, (*Culprit)(nil).Revisions(), should.BeNil)
	})
}

func TestAnalysisStatus(t *testing.T) {
	t.Parallel()

	ftt.Run("AnalysisStatus", t, func(t *ftt.Test) {
		assert.Loosely(t, AnalysisStatus_Skipped.String(), should.Equal("SKIPPED"))
		assert.Loosely(t, AnalysisStatus(5).String(), should.Equal("AnalysisStatus(5)"))
		assert.Loosely(t, AnalysisStatus_Skipped.IsTerminal(), should.BeTrue)
		assert.Loosely(t, AnalysisStatus_Error.IsTerminal(), should.BeTrue)
		assert.Loosely(t, AnalysisStatus_Running.IsTerminal(), should.BeFalse)
	})
}
