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
	"fmt"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/gae/service/datastore"

	"go.chromium.org/findit/culprit"
	"go.chromium.org/findit/internal/buildbucket"
	"go.chromium.org/findit/model"
)

// Run runs the pipeline from its last checkpoint until it's done.
//
// Transient errors leave the checkpoint in place so that a retry resumes
// from it. Any other error, or a panic, aborts the pipeline and marks the
// try-job record as ERROR.
func (o *Orchestrator) Run(ctx context.Context, b model.BuildID, pipelineID string) (reterr error) {
	st, err := model.GetPipelineState(ctx, b, pipelineID)
	switch {
	case err != nil:
		return err
	case st == nil:
		logging.Warningf(ctx, "Try-job pipeline %s of %s doesn't exist", pipelineID, b)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			reterr = errors.Reason("panic in stage %s: %v", st.Stage, r).Err()
		}
		if reterr == nil || transient.Tag.In(reterr) {
			return
		}
		if err := o.abort(ctx, b, st, reterr); err != nil {
			logging.Errorf(ctx, errors.Annotate(err, "abort try-job pipeline").Err().Error())
		}
	}()

	for !st.Stage.IsFinal() {
		logging.Debugf(ctx, "Running stage %s", st.Stage)
		var err error
		switch st.Stage {
		case model.PipelineStage_Schedule:
			err = o.schedule(ctx, b, st)
		case model.PipelineStage_Monitor:
			err = o.monitor(ctx, b, st)
		case model.PipelineStage_Identify:
			err = o.identify(ctx, b, st)
		default:
			err = errors.Reason("unknown stage %q", st.Stage).Err()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) schedule(ctx context.Context, b model.BuildID, st *model.PipelineState) error {
	res := o.Buildbucket.TriggerJobs(ctx, []*buildbucket.JobRequest{jobRequest(b, st)})[0]
	if res.Err != nil {
		err := errors.Annotate(res.Err, "trigger %s try job for %s", st.Kind, b).Err()
		if res.Err.Unanswered() {
			// The retried trigger has the same operation id.
			return transient.Tag.Apply(err)
		}
		return err
	}
	job := res.Job
	logging.Infof(ctx, "Triggered try job %s for %s", job.ID, b)
	scheduledCounter.Add(ctx, 1, string(st.Kind))

	requested := job.CreatedTime
	if requested.IsZero() {
		requested = clock.Now(ctx).UTC()
	}
	err := model.UpdateTryJobData(ctx, job.ID, func(d *model.TryJobData) {
		d.Kind = st.Kind
		d.BuildKey = b.Key()
		d.TryJobURL = job.URL
		d.SetRequestTime(requested)
	})
	if err != nil {
		return err
	}
	return o.checkpoint(ctx, b, st, func(tj *model.TryJob) {
		tj.Status = model.AnalysisStatus_Running
		tj.AddTryJobID(job.ID)
		tj.UpsertResult(st.Kind, &model.TryJobResult{URL: job.URL, TryJobID: job.ID})
		st.TryJobID = job.ID
		st.Stage = model.PipelineStage_Monitor
	})
}

func jobRequest(b model.BuildID, st *model.PipelineState) *buildbucket.JobRequest {
	p := st.Params
	props := map[string]any{
		"recipe":               "findit/chromium/" + string(st.Kind),
		"good_revision":        p.GoodRevision,
		"bad_revision":         p.BadRevision,
		"target_mastername":    b.Master,
		"referenced_build_url": fmt.Sprintf("https://build.chromium.org/p/%s/builders/%s/builds/%d", b.Master, b.Builder, b.Number),
	}
	if st.Kind == model.TryJobType_Compile {
		props["target_buildername"] = b.Builder
		if len(p.CompileTargets) > 0 {
			props["compile_targets"] = p.CompileTargets
		}
	} else {
		props["target_testername"] = b.Builder
		props["tests"] = p.TargetedTests
	}
	return &buildbucket.JobRequest{
		Master:      p.TrybotMaster,
		Builder:     p.TrybotBuilder,
		Properties:  props,
		OperationID: "findit-" + st.ID,
		Tags: []string{
			"ref_master:" + b.Master,
			"ref_buildername:" + b.Builder,
			fmt.Sprintf("ref_buildnumber:%d", b.Number),
		},
	}
}

func (o *Orchestrator) identify(ctx context.Context, b model.BuildID, st *model.PipelineState) error {
	tj, err := model.GetTryJob(ctx, b)
	if err != nil {
		return err
	}
	var c *model.Culprit
	if tj != nil {
		if r := tj.FindResult(st.Kind, st.TryJobID); r != nil {
			c, err = culprit.IdentifyCulprit(ctx, st.Kind, r.Report, st.Params.BlameList, o.Lookup)
			if err != nil {
				logging.Warningf(ctx, "No culprit for try job %s: %s", st.TryJobID, err)
			}
		}
	}
	if c != nil {
		logging.Infof(ctx, "Culprits of %s: %q", b, c.Revisions())
		err := model.UpdateTryJobData(ctx, st.TryJobID, func(d *model.TryJobData) {
			d.Culprits = c.Revisions()
		})
		if err != nil {
			return err
		}
	}
	return o.checkpoint(ctx, b, st, func(tj *model.TryJob) {
		if r := tj.FindResult(st.Kind, st.TryJobID); r != nil {
			r.Culprit = c
		}
		st.Stage = model.PipelineStage_Done
	})
}

// checkpoint applies f to the try-job record and saves it together with the
// pipeline state.
//
// If the record is gone or was aborted, the pipeline is aborted instead and
// f is not called. Callers check st.Stage for that.
func (o *Orchestrator) checkpoint(ctx context.Context, b model.BuildID, st *model.PipelineState, f func(tj *model.TryJob)) error {
	stopped := ""
	err := datastore.RunInTransaction(ctx, func(ctx context.Context) error {
		stopped = ""
		tj, err := model.UpdateTryJob(ctx, b, func(tj *model.TryJob) bool {
			if tj.Status == model.AnalysisStatus_Error {
				stopped = "try job aborted"
				return false
			}
			f(tj)
			return true
		})
		switch {
		case err != nil:
			return err
		case tj == nil:
			stopped = "try job record deleted"
		}
		if stopped != "" {
			st.Stage = model.PipelineStage_Aborted
			st.Error = stopped
		}
		st.UpdateTime = clock.Now(ctx).UTC()
		return datastore.Put(ctx, st)
	}, nil)
	if err != nil {
		return errors.Annotate(err, "checkpoint %s of %s", st.Stage, b).Tag(transient.Tag).Err()
	}
	if stopped != "" {
		logging.Warningf(ctx, "Stopped try-job pipeline %s of %s: %s", st.ID, b, stopped)
		outcomeCounter.Add(ctx, 1, string(st.Kind), outcomeAborted)
	}
	return nil
}

func (o *Orchestrator) abort(ctx context.Context, b model.BuildID, st *model.PipelineState, cause error) error {
	logging.Warningf(ctx, "Aborting try-job pipeline %s at stage %s: %s", st.ID, st.Stage, cause)
	err := datastore.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := markAborted(ctx, b); err != nil {
			return err
		}
		st.Stage = model.PipelineStage_Aborted
		st.Error = cause.Error()
		st.UpdateTime = clock.Now(ctx).UTC()
		return datastore.Put(ctx, st)
	}, nil)
	if err != nil {
		return err
	}
	outcomeCounter.Add(ctx, 1, string(st.Kind), outcomeAborted)
	return nil
}

// Abort marks the try-job record of the build as ERROR unless it has
// already finished. It's a no-op if there is no record.
//
// A running pipeline of the build stops at its next checkpoint.
func Abort(ctx context.Context, b model.BuildID) error {
	return datastore.RunInTransaction(ctx, func(ctx context.Context) error {
		return markAborted(ctx, b)
	}, nil)
}

func markAborted(ctx context.Context, b model.BuildID) error {
	_, err := model.UpdateTryJob(ctx, b, func(tj *model.TryJob) bool {
		if tj.Status.IsTerminal() {
			return false
		}
		tj.Status = model.AnalysisStatus_Error
		return true
	})
	return err
}
