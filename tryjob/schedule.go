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
	"context"

	"github.com/google/uuid"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/gae/service/datastore"

	"go.chromium.org/findit/internal/config"
	"go.chromium.org/findit/model"
)

// BuildInfo is what is known about one build of the failed builder.
type BuildInfo struct {
	ChromiumRevision string `json:"chromium_revision"`
	// BlameList is ordered oldest first.
	BlameList []string `json:"blame_list,omitempty"`
}

// FailureInfo describes the failures of a build, as found by the failure
// analyzer.
type FailureInfo struct {
	MasterName  string                 `json:"master_name"`
	BuilderName string                 `json:"builder_name"`
	BuildNumber int64                  `json:"build_number"`
	FailedSteps map[string]*FailedStep `json:"failed_steps,omitempty"`
	// Builds of the builder by number, back to the last passing one.
	Builds map[int64]*BuildInfo `json:"builds,omitempty"`
}

// BuildID returns the ID of the failed build.
func (f *FailureInfo) BuildID() model.BuildID {
	return model.BuildID{Master: f.MasterName, Builder: f.BuilderName, Number: f.BuildNumber}
}

// ScheduleIfNeeded starts a try-job pipeline for the failed build if one is
// needed, and returns where each failure is attributed to.
//
// Nothing is scheduled until the build completes, or if the builder has no
// trybot. Test try-jobs only run the tests that classified marks reliable;
// when no test is left the record is SKIPPED.
func (o *Orchestrator) ScheduleIfNeeded(ctx context.Context, info *FailureInfo, signals map[string]*StepSignal, classified map[string]*ClassifiedTests, buildCompleted bool) (model.FailureResultMap, error) {
	if !buildCompleted {
		return model.FailureResultMap{}, nil
	}
	b := info.BuildID()
	cfg, err := config.Get(ctx)
	if err != nil {
		return nil, err
	}
	trybot := cfg.Trybot(b.Master, b.Builder)
	if trybot == nil {
		logging.Infof(ctx, "%s, %s is not supported yet", b.Master, b.Builder)
		return model.FailureResultMap{}, nil
	}

	var d *Decision
	var st *model.PipelineState
	skipped := false
	err = datastore.RunInTransaction(ctx, func(ctx context.Context) error {
		st = nil
		skipped = false
		existing, err := model.GetTryJob(ctx, b)
		if err != nil {
			return err
		}
		d = NeedNewTryJob(b, info.FailedSteps, existing)
		if !d.Needed {
			return nil
		}

		now := clock.Now(ctx).UTC()
		tj := existing
		if tj == nil {
			tj = model.NewTryJob(b, now)
		}
		tj.Status = model.AnalysisStatus_Pending
		tj.UpdateTime = now

		if d.Kind == model.TryJobType_Test {
			d.TargetedTests = ReliableTargetedTests(d.TargetedTests, classified)
			if len(d.TargetedTests) == 0 {
				skipped = true
				tj.Status = model.AnalysisStatus_Skipped
				if err := datastore.Put(ctx, tj); err != nil {
					return errors.Annotate(err, "save try job %s", b).Tag(transient.Tag).Err()
				}
				return nil
			}
		}
		params, err := tryJobParams(info, d, trybot, signals)
		if err != nil {
			return err
		}
		st = &model.PipelineState{
			ID:         uuid.NewString(),
			TryJob:     model.TryJobKey(ctx, b),
			Kind:       d.Kind,
			Stage:      model.PipelineStage_Schedule,
			Params:     *params,
			CreateTime: now,
			UpdateTime: now,
		}
		if err := datastore.Put(ctx, tj, st); err != nil {
			return errors.Annotate(err, "save try job %s", b).Tag(transient.Tag).Err()
		}
		return o.addTask(ctx, b, st)
	}, nil)
	if err != nil {
		return nil, errors.Annotate(err, "schedule try job for %s", b).Err()
	}
	switch {
	case skipped:
		logging.Infof(ctx, "No reliable test failures in %s, try job skipped", b)
	case st != nil:
		logging.Infof(ctx, "Try-job pipeline %s was scheduled for %s because of %s failure", st.ID, b, d.Kind)
	}
	return d.FailureResultMap, nil
}

func tryJobParams(info *FailureInfo, d *Decision, trybot *config.Trybot, signals map[string]*StepSignal) (*model.TryJobParams, error) {
	good := info.Builds[d.LastPass]
	bad := info.Builds[info.BuildNumber]
	switch {
	case good == nil || good.ChromiumRevision == "":
		return nil, errors.Reason("no revision of last passing build %d", d.LastPass).Err()
	case bad == nil || bad.ChromiumRevision == "":
		return nil, errors.Reason("no revision of build %d", info.BuildNumber).Err()
	}
	params := &model.TryJobParams{
		GoodRevision:  good.ChromiumRevision,
		BadRevision:   bad.ChromiumRevision,
		BlameList:     bad.BlameList,
		TargetedTests: d.TargetedTests,
		TrybotMaster:  trybot.Mastername,
		TrybotBuilder: trybot.Buildername,
	}
	if d.Kind == model.TryJobType_Compile {
		params.CompileTargets = FailedTargets(signals, trybot.StrictRegex)
	}
	return params, nil
}
