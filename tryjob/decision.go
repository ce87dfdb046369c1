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
	"sort"

	"go.chromium.org/findit/model"
)

// compileStep is the name of the step whose failure makes a compile try-job.
const compileStep = "compile"

// FailedStep is the failure history of a step or a test.
type FailedStep struct {
	CurrentFailure int64 `json:"current_failure"`
	FirstFailure   int64 `json:"first_failure"`
	// LastPass is nil when no passing build is known.
	LastPass *int64                 `json:"last_pass,omitempty"`
	Tests    map[string]*FailedStep `json:"tests,omitempty"`
}

// FailedTarget is a compile target named in a failure signal.
type FailedTarget struct {
	Target string `json:"target"`
	// Source is set for object files.
	Source string `json:"source,omitempty"`
}

// StepSignal is what the log extraction found in a failed step.
type StepSignal struct {
	FailedTargets []*FailedTarget `json:"failed_targets,omitempty"`
}

// ClassifiedTests is how the failed tests of a swarming step behaved when
// rerun.
type ClassifiedTests struct {
	// StepNameNoPlatform is the step name the trybot knows the step by.
	StepNameNoPlatform string   `json:"step_name_no_platform,omitempty"`
	ReliableTests      []string `json:"reliable_tests,omitempty"`
	FlakyTests         []string `json:"flaky_tests,omitempty"`
}

// Decision is the outcome of NeedNewTryJob.
type Decision struct {
	Needed bool
	// LastPass is the build number of the reference good build. Only set
	// when Needed.
	LastPass int64
	Kind     model.TryJobType
	// TargetedTests is nil for compile try-jobs.
	TargetedTests    map[string][]string
	FailureResultMap model.FailureResultMap
}

// NeedNewTryJob decides whether a try-job should run for the failures of
// build b.
//
// existing is the current try-job record of the build, or nil. Only a
// missing or failed record allows a new try-job.
func NeedNewTryJob(b model.BuildID, failedSteps map[string]*FailedStep, existing *model.TryJob) *Decision {
	d := &Decision{FailureResultMap: model.FailureResultMap{}}
	lastPass := b.Number
	note := func(f *FailedStep) (string, bool) {
		isNew, key := attribute(b, f)
		if isNew && *f.LastPass < lastPass {
			lastPass = *f.LastPass
		}
		return key, isNew
	}

	if f, ok := failedSteps[compileStep]; ok {
		d.Kind = model.TryJobType_Compile
		if f.LastPass != nil {
			key, isNew := note(f)
			d.FailureResultMap[compileStep] = &model.FailureResult{BuildKey: key}
			d.Needed = isNew
		}
	} else {
		d.Kind = model.TryJobType_Test
		d.TargetedTests = map[string][]string{}
		for _, step := range sortedKeys(failedSteps) {
			f := failedSteps[step]
			if f.Tests != nil {
				tests := map[string]string{}
				var newTests []string
				for _, test := range sortedKeys(f.Tests) {
					tf := f.Tests[test]
					if tf.LastPass == nil {
						continue
					}
					key, isNew := note(tf)
					tests[test] = key
					if isNew {
						newTests = append(newTests, test)
					}
				}
				d.FailureResultMap[step] = &model.FailureResult{Tests: tests}
				if len(newTests) > 0 {
					d.TargetedTests[step] = newTests
					d.Needed = true
				}
				continue
			}
			if f.LastPass == nil {
				continue
			}
			key, isNew := note(f)
			d.FailureResultMap[step] = &model.FailureResult{BuildKey: key}
			if isNew {
				d.TargetedTests[step] = []string{}
				d.Needed = true
			}
		}
	}

	if !d.Needed {
		d.TargetedTests = nil
		return d
	}
	d.LastPass = lastPass
	if existing != nil && existing.Status != model.AnalysisStatus_Error {
		d.Needed = false
	}
	return d
}

// attribute returns whether the failure is new in build b and the key of the
// build it's attributed to. f.LastPass must be set.
func attribute(b model.BuildID, f *FailedStep) (bool, string) {
	current := f.CurrentFailure
	if current == 0 {
		current = b.Number
	}
	if current == f.FirstFailure {
		return true, b.Key()
	}
	return false, b.WithNumber(f.FirstFailure).Key()
}

// ReliableTargetedTests drops flaky tests from targeted.
//
// Steps without classified tests are kept as they are. A classified step
// keeps its reliable tests under its name without platform, and is dropped
// if none are left.
func ReliableTargetedTests(targeted map[string][]string, classified map[string]*ClassifiedTests) map[string][]string {
	out := make(map[string][]string, len(targeted))
	for step, tests := range targeted {
		c := classified[step]
		if c == nil {
			out[step] = tests
			continue
		}
		reliable := make(map[string]bool, len(c.ReliableTests))
		for _, test := range c.ReliableTests {
			reliable[test] = true
		}
		var kept []string
		for _, test := range tests {
			if reliable[test] {
				kept = append(kept, test)
			}
		}
		if len(kept) == 0 {
			continue
		}
		name := c.StepNameNoPlatform
		if name == "" {
			name = step
		}
		out[name] = kept
	}
	return out
}

// FailedTargets returns the compile targets to rebuild.
//
// Link failures have no source and their targets are always rebuilt. Object
// files are only rebuilt in strict mode.
func FailedTargets(signals map[string]*StepSignal, strict bool) []string {
	sig := signals[compileStep]
	if sig == nil {
		return nil
	}
	var targets []string
	for _, t := range sig.FailedTargets {
		if t.Source == "" || strict {
			targets = append(targets, t.Target)
		}
	}
	return targets
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
