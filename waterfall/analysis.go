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
	"sort"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/gae/service/datastore"

	"go.chromium.org/findit/model"
)

// NeedNewAnalysis decides whether the build needs to be analyzed again.
//
// a is the stored analysis, or nil. The returned analysis is the one to
// save when a new run is needed: either a new PENDING one, or a reset of a
// that still holds the last result.
func NeedNewAnalysis(a *model.Analysis, b model.BuildID, failedSteps []string, buildCompleted, force bool, now time.Time) (*model.Analysis, bool) {
	if a == nil {
		return &model.Analysis{
			ID:          b.Key(),
			Status:      model.AnalysisStatus_Pending,
			RequestTime: now,
		}, true
	}
	completed := a.Status.IsTerminal()
	switch {
	case force:
		if !completed {
			return a, false
		}
	case completed && hasNewStep(a.NotPassedSteps, failedSteps):
	case completed && !a.BuildCompleted && buildCompleted:
		// The try-job may be scheduled now.
	default:
		return a, false
	}
	a.Reset(now)
	return a, true
}

func hasNewStep(analyzed, failed []string) bool {
	known := make(map[string]bool, len(analyzed))
	for _, s := range analyzed {
		known[s] = true
	}
	for _, s := range failed {
		if !known[s] {
			return true
		}
	}
	return false
}

// ScheduleAnalysisIfNeeded enqueues an analysis of the build if it needs one
// and returns whether it did.
func (t *Trigger) ScheduleAnalysisIfNeeded(ctx context.Context, b model.BuildID, failedSteps []string, buildCompleted, force bool) (bool, error) {
	var needed bool
	err := datastore.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := model.GetAnalysis(ctx, b)
		if err != nil {
			return err
		}
		var a *model.Analysis
		if a, needed = NeedNewAnalysis(existing, b, failedSteps, buildCompleted, force, clock.Now(ctx).UTC()); !needed {
			return nil
		}
		if err := datastore.Put(ctx, a); err != nil {
			return errors.Annotate(err, "save analysis").Tag(transient.Tag).Err()
		}
		return t.addAnalyzeTask(ctx, b, a.Version)
	}, nil)
	if err != nil {
		return false, errors.Annotate(err, "schedule analysis of %s", b).Err()
	}
	if needed {
		logging.Infof(ctx, "An analysis was scheduled for %s", b)
	}
	return needed, nil
}

// runAnalysis analyzes the build and hands the result to the try-job
// orchestrator.
func (t *Trigger) runAnalysis(ctx context.Context, b model.BuildID) error {
	a, err := t.startAnalysis(ctx, b)
	if err != nil || a == nil {
		return err
	}
	res, err := t.Analyzer.Analyze(ctx, b)
	if err != nil {
		return t.failAnalysis(ctx, b, errors.Annotate(err, "analyze").Err())
	}
	frm, err := t.Orchestrator.ScheduleIfNeeded(ctx, res.FailureInfo, res.Signals, res.ClassifiedTests, res.BuildCompleted)
	if err != nil {
		return t.failAnalysis(ctx, b, err)
	}

	err = updateAnalysis(ctx, b, func(a *model.Analysis) {
		a.Status = model.AnalysisStatus_Completed
		a.Result = res.Result
		a.FailureResultMap = frm
		a.NotPassedSteps = res.NotPassedSteps()
		a.BuildCompleted = res.BuildCompleted
		a.EndTime = clock.Now(ctx).UTC()
	})
	if err != nil {
		return err
	}
	analysisCounter.Add(ctx, 1, b.Master, model.AnalysisStatus_Completed.String())
	logging.Infof(ctx, "Analysis of %s completed", b)
	return nil
}

// startAnalysis marks the analysis RUNNING. It returns nil if the analysis
// was deleted.
func (t *Trigger) startAnalysis(ctx context.Context, b model.BuildID) (*model.Analysis, error) {
	var started *model.Analysis
	err := updateAnalysis(ctx, b, func(a *model.Analysis) {
		a.Status = model.AnalysisStatus_Running
		a.StartTime = clock.Now(ctx).UTC()
		a.EndTime = time.Time{}
		started = a
	})
	if err != nil {
		return nil, err
	}
	if started == nil {
		logging.Warningf(ctx, "Analysis of %s is gone", b)
	}
	return started, nil
}

// failAnalysis marks the analysis ERROR unless cause is transient, and
// returns cause.
func (t *Trigger) failAnalysis(ctx context.Context, b model.BuildID, cause error) error {
	if transient.Tag.In(cause) {
		return cause
	}
	logging.Errorf(ctx, "Analysis of %s failed: %s", b, cause)
	err := updateAnalysis(ctx, b, func(a *model.Analysis) {
		a.Status = model.AnalysisStatus_Error
		a.EndTime = clock.Now(ctx).UTC()
	})
	if err != nil {
		logging.Errorf(ctx, "Failed to mark analysis of %s as ERROR: %s", b, err)
	}
	analysisCounter.Add(ctx, 1, b.Master, model.AnalysisStatus_Error.String())
	return cause
}

// updateAnalysis applies f to the stored analysis of the build in a
// transaction. f isn't called if there is no analysis.
func updateAnalysis(ctx context.Context, b model.BuildID, f func(a *model.Analysis)) error {
	return datastore.RunInTransaction(ctx, func(ctx context.Context) error {
		a, err := model.GetAnalysis(ctx, b)
		if err != nil || a == nil {
			return err
		}
		f(a)
		if err := datastore.Put(ctx, a); err != nil {
			return errors.Annotate(err, "save analysis of %s", b).Tag(transient.Tag).Err()
		}
		return nil
	}, nil)
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
