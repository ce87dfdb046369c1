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

package tryjob

import (
	"testing"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"go.chromium.org/findit/model"
)

func pass(n int64) *int64 {
	return &n
}

func TestNeedNewTryJob(t *testing.T) {
	t.Parallel()

	ftt.Run("NeedNewTryJob", t, func(t *ftt.Test) {
		b := model.BuildID{Master: "m", Builder: "b", Number: 223}

		t.Run("compile", func(t *ftt.Test) {
			steps := map[string]*FailedStep{
				"compile": {CurrentFailure: 223, FirstFailure: 223, LastPass: pass(220)},
			}
			d := NeedNewTryJob(b, steps, nil)
			assert.Loosely(t, d, should.Resemble(&Decision{
				Needed:   true,
				LastPass: 220,
				Kind:     model.TryJobType_Compile,
				FailureResultMap: model.FailureResultMap{
					"compile": {BuildKey: "m/b/223"},
				},
			}))

			t.Run("not new", func(t *ftt.Test) {
				steps["compile"].FirstFailure = 221
				d := NeedNewTryJob(b, steps, nil)
				assert.Loosely(t, d.Needed, should.BeFalse)
				assert.Loosely(t, d.FailureResultMap["compile"].BuildKey, should.Equal("m/b/221"))
			})

			t.Run("no last pass", func(t *ftt.Test) {
				steps["compile"].LastPass = nil
				d := NeedNewTryJob(b, steps, nil)
				assert.Loosely(t, d.Needed, should.BeFalse)
				assert.Loosely(t, d.FailureResultMap, should.BeEmpty)
			})
		})

		t.Run("test steps", func(t *ftt.Test) {
			steps := map[string]*FailedStep{
				"a": {CurrentFailure: 223, FirstFailure: 223, LastPass: pass(222)},
				"b": {CurrentFailure: 223, FirstFailure: 222, LastPass: pass(221)},
			}
			d := NeedNewTryJob(b, steps, nil)
			assert.Loosely(t, d, should.Resemble(&Decision{
				Needed:        true,
				LastPass:      222,
				Kind:          model.TryJobType_Test,
				TargetedTests: map[string][]string{"a": {}},
				FailureResultMap: model.FailureResultMap{
					"a": {BuildKey: "m/b/223"},
					"b": {BuildKey: "m/b/222"},
				},
			}))
		})

		t.Run("targeted tests", func(t *ftt.Test) {
			steps := map[string]*FailedStep{
				"a": {
					CurrentFailure: 223,
					FirstFailure:   223,
					LastPass:       pass(221),
					Tests: map[string]*FailedStep{
						"a.t1": {FirstFailure: 223, LastPass: pass(221)},
						"a.t2": {FirstFailure: 222, LastPass: pass(220)},
						"a.t3": {FirstFailure: 223, LastPass: pass(222)},
						"a.t4": {FirstFailure: 223},
					},
				},
			}
			d := NeedNewTryJob(b, steps, nil)
			assert.Loosely(t, d.Needed, should.BeTrue)
			assert.Loosely(t, d.LastPass, should.Equal(int64(221)))
			assert.Loosely(t, d.TargetedTests, should.Resemble(map[string][]string{"a": {"a.t1", "a.t3"}}))
			assert.Loosely(t, d.FailureResultMap, should.Resemble(model.FailureResultMap{
				"a": {Tests: map[string]string{
					"a.t1": "m/b/223",
					"a.t2": "m/b/222",
					"a.t3": "m/b/223",
				}},
			}))
		})

		t.Run("existing records", func(t *ftt.Test) {
			steps := map[string]*FailedStep{
				"compile": {CurrentFailure: 223, FirstFailure: 223, LastPass: pass(222)},
			}
			tj := model.NewTryJob(b, testTime)

			tj.Status = model.AnalysisStatus_Running
			assert.Loosely(t, NeedNewTryJob(b, steps, tj).Needed, should.BeFalse)
			tj.Status = model.AnalysisStatus_Completed
			assert.Loosely(t, NeedNewTryJob(b, steps, tj).Needed, should.BeFalse)
			tj.Status = model.AnalysisStatus_Skipped
			assert.Loosely(t, NeedNewTryJob(b, steps, tj).Needed, should.BeFalse)
			tj.Status = model.AnalysisStatus_Error
			assert.Loosely(t, NeedNewTryJob(b, steps, tj).Needed, should.BeTrue)
		})

		t.Run("pure", func(t *ftt.Test) {
			steps := map[string]*FailedStep{
				"a": {CurrentFailure: 223, FirstFailure: 223, LastPass: pass(222)},
				"b": {
					CurrentFailure: 223,
					FirstFailure:   223,
					LastPass:       pass(221),
					Tests: map[string]*FailedStep{
						"b.t1": {CurrentFailure: 223, FirstFailure: 223, LastPass: pass(221)},
					},
				},
			}
			first := NeedNewTryJob(b, steps, nil)
			for i := 0; i < 10; i++ {
				assert.Loosely(t, NeedNewTryJob(b, steps, nil), should.Resemble(first))
			}
			assert.Loosely(t, steps["a"].LastPass, should.Resemble(pass(222)))
		})
	})
}

func TestFailedTargets(t *testing.T) {
	t.Parallel()

	ftt.Run("FailedTargets", t, func(t *ftt.Test) {
		signals := map[string]*StepSignal{
			"compile": {FailedTargets: []*FailedTarget{
				{Target: "a.exe"},
				{Target: "obj/a.o", Source: "a.cc"},
			}},
		}

		assert.Loosely(t, FailedTargets(signals, false), should.Resemble([]string{"a.exe"}))
		assert.Loosely(t, FailedTargets(signals, true), should.Resemble([]string{"a.exe", "obj/a.o"}))
		assert.Loosely(t, FailedTargets(nil, true), should.BeNil)
		assert.Loosely(t, FailedTargets(map[string]*StepSignal{"a": {}}, true), should.BeNil)
	})
}

func TestReliableTargetedTests(t *testing.T) {
	t.Parallel()

	ftt.Run("ReliableTargetedTests", t, func(t *ftt.Test) {
		targeted := map[string][]string{
			"a_tests on Mac": {"t1", "t2", "t3"},
			"b_tests on Mac": {"t4"},
			"c_tests on Mac": {},
			"not_swarming":   {},
			"unclassified":   {"t5"},
		}
		classified := map[string]*ClassifiedTests{
			"a_tests on Mac": {StepNameNoPlatform: "a_tests", ReliableTests: []string{"t1", "t3", "t9"}, FlakyTests: []string{"t2"}},
			"b_tests on Mac": {StepNameNoPlatform: "b_tests", FlakyTests: []string{"t4"}},
			"c_tests on Mac": {StepNameNoPlatform: "c_tests", ReliableTests: []string{"t6"}},
		}
		assert.Loosely(t, ReliableTargetedTests(targeted, classified), should.Resemble(map[string][]string{
			"a_tests":      {"t1", "t3"},
			"not_swarming": {},
			"unclassified": {"t5"},
		}))

		t.Run("step name is kept without a platform-free one", func(t *ftt.Test) {
			got := ReliableTargetedTests(
				map[string][]string{"a_tests": {"t1"}},
				map[string]*ClassifiedTests{"a_tests": {ReliableTests: []string{"t1"}}})
			assert.Loosely(t, got, should.Resemble(map[string][]string{"a_tests": {"t1"}}))
		})

		t.Run("all flaky", func(t *ftt.Test) {
			got := ReliableTargetedTests(
				map[string][]string{"a_tests on Mac": {"t1"}},
				map[string]*ClassifiedTests{"a_tests on Mac": {FlakyTests: []string{"t1"}}})
			assert.Loosely(t, got, should.BeEmpty)
		})
	})
}
