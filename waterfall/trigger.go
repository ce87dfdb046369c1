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

// Package waterfall analyzes failed waterfall builds on demand and hands
// their failures to the try-job orchestrator.
package waterfall

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/server/tq"

	"go.chromium.org/findit/internal/taskspb"
	"go.chromium.org/findit/model"
	"go.chromium.org/findit/tryjob"

	// Add support for datastore transactions in TQ.
	_ "go.chromium.org/luci/server/tq/txn/datastore"
)

const (
	// TriggerTaskClassID is the ID of the task class checking batches of
	// builds for new analyses.
	TriggerTaskClassID = "trigger-analyses"
	// AnalyzeTaskClassID is the ID of the task class analyzing one build.
	AnalyzeTaskClassID = "analyze-build"

	serialQueue   = "waterfall-serial"
	analysisQueue = "waterfall-analysis"
)

// Trigger starts analyses of failed builds.
type Trigger struct {
	Analyzer     Analyzer
	Orchestrator *tryjob.Orchestrator
	// Dispatcher is where the task classes are registered and tasks are
	// added.
	Dispatcher *tq.Dispatcher
}

// RegisterTaskClasses registers the trigger and analysis task classes on the
// dispatcher.
func (t *Trigger) RegisterTaskClasses() {
	t.Dispatcher.RegisterTaskClass(tq.TaskClass{
		ID:        TriggerTaskClassID,
		Prototype: (*taskspb.TriggerAnalyses)(nil),
		Queue:     serialQueue,
		Kind:      tq.NonTransactional,
		Handler: func(ctx context.Context, payload proto.Message) error {
			return t.handleTrigger(ctx, payload.(*taskspb.TriggerAnalyses))
		},
	})
	t.Dispatcher.RegisterTaskClass(tq.TaskClass{
		ID:        AnalyzeTaskClassID,
		Prototype: (*taskspb.AnalyzeBuild)(nil),
		Queue:     analysisQueue,
		Kind:      tq.Transactional,
		Handler: func(ctx context.Context, payload proto.Message) error {
			return t.handleAnalyze(ctx, payload.(*taskspb.AnalyzeBuild))
		},
	})
}

// BuildToCheck is a failed build reported by a client.
type BuildToCheck struct {
	Build model.BuildID
	// FailedSteps are the failed steps as seen by the client, if known.
	FailedSteps []string
}

func (t *Trigger) addTriggerTask(ctx context.Context, builds []*BuildToCheck) error {
	if len(builds) == 0 {
		return nil
	}
	return t.Dispatcher.AddTask(ctx, &tq.Task{
		Payload: triggerPayload(builds),
		Title:   fmt.Sprintf("trigger-%d-builds", len(builds)),
	})
}

func (t *Trigger) addAnalyzeTask(ctx context.Context, b model.BuildID, version int64) error {
	return t.Dispatcher.AddTask(ctx, &tq.Task{
		Payload: &taskspb.AnalyzeBuild{BuildKey: b.Key(), Version: version},
		Title:   fmt.Sprintf("analyze-%s-%d", strings.ReplaceAll(b.Key(), "/", "-"), version),
	})
}

func (t *Trigger) handleTrigger(ctx context.Context, payload *taskspb.TriggerAnalyses) error {
	builds, err := parseTriggerPayload(payload)
	if err != nil {
		return tq.Fatal.Apply(err)
	}
	var merr errors.MultiError
	for _, bc := range builds {
		ctx := logging.SetField(ctx, "build", bc.Build.Key())
		completed, err := t.Analyzer.BuildCompleted(ctx, bc.Build)
		switch {
		case errors.Is(err, ErrUnknownBuild):
			logging.Infof(ctx, "Build %s isn't known yet, skipping", bc.Build)
			continue
		case transient.Tag.In(err):
			merr = append(merr, err)
			continue
		case err != nil:
			logging.Errorf(ctx, "Failed to get the status of %s: %s", bc.Build, err)
			continue
		}
		if _, err := t.ScheduleAnalysisIfNeeded(ctx, bc.Build, bc.FailedSteps, completed, false); err != nil {
			merr = append(merr, err)
		}
	}
	if err := merr.AsError(); err != nil {
		logging.Errorf(ctx, "Failed to trigger some analyses: %s", err)
		// The handled builds won't be analyzed again when retried.
		return transient.Tag.Apply(err)
	}
	return nil
}

func (t *Trigger) handleAnalyze(ctx context.Context, payload *taskspb.AnalyzeBuild) error {
	b, err := model.ParseBuildKey(payload.GetBuildKey())
	if err != nil {
		return tq.Fatal.Apply(errors.Annotate(err, "bad analysis task").Err())
	}
	ctx = logging.SetFields(ctx, logging.Fields{"build": b.Key(), "version": payload.GetVersion()})
	if err := t.runAnalysis(ctx, b); err != nil {
		err = errors.Annotate(err, "run analysis").Err()
		logging.Errorf(ctx, err.Error())
		// If the error is transient, return err to retry.
		if transient.Tag.In(err) {
			return err
		}
		return tq.Fatal.Apply(err)
	}
	return nil
}

func triggerPayload(builds []*BuildToCheck) *taskspb.TriggerAnalyses {
	task := &taskspb.TriggerAnalyses{Builds: make([]*taskspb.BuildToCheck, len(builds))}
	for i, bc := range builds {
		task.Builds[i] = &taskspb.BuildToCheck{
			BuildKey:    bc.Build.Key(),
			FailedSteps: bc.FailedSteps,
		}
	}
	return task
}

func parseTriggerPayload(task *taskspb.TriggerAnalyses) ([]*BuildToCheck, error) {
	builds := make([]*BuildToCheck, 0, len(task.GetBuilds()))
	for _, bc := range task.GetBuilds() {
		b, err := model.ParseBuildKey(bc.GetBuildKey())
		if err != nil {
			return nil, errors.Annotate(err, "bad trigger task").Err()
		}
		builds = append(builds, &BuildToCheck{Build: b, FailedSteps: bc.GetFailedSteps()})
	}
	return builds, nil
}
