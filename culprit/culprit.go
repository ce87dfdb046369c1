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

// Package culprit finds the culprit revisions in the report of a completed
// try-job.
package culprit

import (
	"context"
	"sort"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"go.chromium.org/findit/internal/gitiles"
	"go.chromium.org/findit/model"
)

// ChangeLogLookup returns the changelog of a revision.
type ChangeLogLookup interface {
	GetChangeLog(ctx context.Context, revision string) (*gitiles.ChangeLog, error)
}

// IdentifyCulprit returns the culprits in the report, or nil if there are
// none. blameList is ordered oldest first.
//
// Culprits are annotated with their commit position and review URL. A failed
// lookup leaves those empty.
func IdentifyCulprit(ctx context.Context, kind model.TryJobType, report *model.Report, blameList []string, lookup ChangeLogLookup) (*model.Culprit, error) {
	if report == nil {
		return nil, nil
	}
	var culprit *model.Culprit
	switch kind {
	case model.TryJobType_Compile:
		result, err := report.CompileResult()
		if err != nil {
			return nil, err
		}
		if rev := compileCulprit(result, blameList); rev != "" {
			culprit = &model.Culprit{Compile: &model.CulpritInfo{Revision: rev}}
		}
	case model.TryJobType_Test:
		result, err := report.TestResult()
		if err != nil {
			return nil, err
		}
		culprit = testCulprits(result, blameList)
	default:
		return nil, errors.Reason("unknown try-job type %q", kind).Err()
	}
	if culprit == nil {
		return nil, nil
	}
	annotate(ctx, culprit, lookup)
	return culprit, nil
}

// compileCulprit returns the revision that broke compilation, or "".
func compileCulprit(result map[string]string, blameList []string) string {
	if len(result) == 2 {
		var failed []string
		for rev, status := range result {
			if status == model.ResultFailed {
				failed = append(failed, rev)
			}
		}
		if len(failed) == 1 {
			return failed[0]
		}
	}

	inBlameList := make(map[string]bool, len(blameList))
	for _, rev := range blameList {
		inBlameList[rev] = true
	}
	// The reference revision precedes the blame list and is known to pass,
	// unless the job says otherwise.
	prev := model.ResultPassed
	for rev, status := range result {
		if !inBlameList[rev] && status == model.ResultFailed {
			prev = model.ResultFailed
		}
	}
	for _, rev := range blameList {
		status, ok := result[rev]
		if !ok {
			continue
		}
		if status == model.ResultFailed && prev == model.ResultPassed {
			return rev
		}
		prev = status
	}
	return ""
}

// testCulprits returns the first revision each step or test failed at.
func testCulprits(result map[string]map[string]*model.StepResult, blameList []string) *model.Culprit {
	culprits := map[string]*model.StepCulprit{}
	for _, rev := range blameList {
		steps := result[rev]
		names := make([]string, 0, len(steps))
		for name := range steps {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			res := steps[name]
			if res == nil || !res.Valid || res.Status != model.ResultFailed {
				continue
			}
			sc := culprits[name]
			if sc == nil {
				sc = &model.StepCulprit{Tests: map[string]*model.CulpritInfo{}}
				culprits[name] = sc
			}
			// Without test details only the step is attributed.
			if len(res.Failures) == 0 && sc.CulpritInfo == nil {
				sc.CulpritInfo = &model.CulpritInfo{Revision: rev}
			}
			for _, test := range res.Failures {
				if _, ok := sc.Tests[test]; !ok {
					sc.Tests[test] = &model.CulpritInfo{Revision: rev}
				}
			}
		}
	}
	if len(culprits) == 0 {
		return nil
	}
	for _, sc := range culprits {
		if len(sc.Tests) == 0 {
			sc.Tests = nil
		}
	}
	return &model.Culprit{Tests: culprits}
}

func annotate(ctx context.Context, culprit *model.Culprit, lookup ChangeLogLookup) {
	changelogs := map[string]*gitiles.ChangeLog{}
	for _, rev := range culprit.Revisions() {
		cl, err := lookup.GetChangeLog(ctx, rev)
		if err != nil {
			logging.Warningf(ctx, "Failed to get changelog of culprit %s: %s", rev, err)
			continue
		}
		changelogs[rev] = cl
	}
	fill := func(info *model.CulpritInfo) {
		if info == nil {
			return
		}
		if cl := changelogs[info.Revision]; cl != nil {
			info.CommitPosition = cl.CommitPosition
			info.ReviewURL = cl.CodeReviewURL
		}
	}
	fill(culprit.Compile)
	for _, sc := range culprit.Tests {
		fill(sc.CulpritInfo)
		for _, info := range sc.Tests {
			fill(info)
		}
	}
}
