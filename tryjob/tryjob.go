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

// Package tryjob decides, schedules and monitors try-jobs for waterfall
// build failures, and records the culprits they find.
package tryjob

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/server/tq"

	"go.chromium.org/findit/culprit"
	"go.chromium.org/findit/internal/buildbucket"
	"go.chromium.org/findit/internal/taskspb"
	"go.chromium.org/findit/model"

	// Add support for datastore transactions in TQ.
	_ "go.chromium.org/luci/server/tq/txn/datastore"
)

const (
	// TaskClassID is the ID of the task class running try-job pipelines.
	TaskClassID = "try-job"
	taskQueue   = "try-job"
)

// Orchestrator runs try-job pipelines.
type Orchestrator struct {
	Buildbucket buildbucket.Client
	Lookup      culprit.ChangeLogLookup
	// Dispatcher is where the task class is registered and tasks are added.
	Dispatcher *tq.Dispatcher
}

// RegisterTaskClass registers the try-job task class on the dispatcher.
func (o *Orchestrator) RegisterTaskClass() {
	o.Dispatcher.RegisterTaskClass(tq.TaskClass{
		ID:        TaskClassID,
		Prototype: (*taskspb.RunTryJobPipeline)(nil),
		Queue:     taskQueue,
		Kind:      tq.Transactional,
		Handler:   o.handleTask,
	})
}

func (o *Orchestrator) handleTask(ctx context.Context, payload proto.Message) error {
	b, id, err := parseTaskPayload(payload.(*taskspb.RunTryJobPipeline))
	if err != nil {
		return tq.Fatal.Apply(err)
	}
	ctx = logging.SetFields(ctx, logging.Fields{"build": b.Key(), "pipeline": id})
	logging.Infof(ctx, "Processing try-job pipeline %s of %s", id, b)
	if err := o.Run(ctx, b, id); err != nil {
		err = errors.Annotate(err, "run try-job pipeline").Err()
		logging.Errorf(ctx, err.Error())
		// If the error is transient, return err to retry.
		if transient.Tag.In(err) {
			return err
		}
		return tq.Fatal.Apply(err)
	}
	return nil
}

func (o *Orchestrator) addTask(ctx context.Context, b model.BuildID, st *model.PipelineState) error {
	return o.Dispatcher.AddTask(ctx, &tq.Task{
		Payload: taskPayload(b, st.ID),
		Title:   fmt.Sprintf("%s-%s-%s", strings.ReplaceAll(b.Key(), "/", "-"), st.Kind, st.ID),
	})
}

func taskPayload(b model.BuildID, pipelineID string) *taskspb.RunTryJobPipeline {
	return &taskspb.RunTryJobPipeline{BuildKey: b.Key(), PipelineId: pipelineID}
}

func parseTaskPayload(task *taskspb.RunTryJobPipeline) (model.BuildID, string, error) {
	b, err := model.ParseBuildKey(task.GetBuildKey())
	if err != nil {
		return model.BuildID{}, "", errors.Annotate(err, "bad try-job task").Err()
	}
	if task.GetPipelineId() == "" {
		return model.BuildID{}, "", errors.Reason("bad try-job task: no pipeline id").Err()
	}
	return b, task.GetPipelineId(), nil
}
