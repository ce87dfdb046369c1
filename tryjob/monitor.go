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
	"encoding/json"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/gae/service/datastore"

	"go.chromium.org/findit/internal/buildbucket"
	"go.chromium.org/findit/internal/config"
	"go.chromium.org/findit/model"
)

const (
	// Recorded as both the reason and the message of a timed out job.
	errorTimeout = "TIMEOUT"

	pollClockTag = "tryjob-poll"
)

// PollOutcome tells the monitor loop what to do after a poll.
type PollOutcome int

const (
	// PollContinue polls again after the poll interval.
	PollContinue PollOutcome = iota
	// PollSucceed means the job completed and its results are saved.
	PollSucceed
	// PollFail means the job can't be monitored anymore.
	PollFail
)

type jobMonitor struct {
	o        *Orchestrator
	b        model.BuildID
	st       *model.PipelineState
	settings config.TryJobSettings

	// Number of consecutive failed polls.
	errorCount int64
	lastErr    *buildbucket.JobError
	started    bool
}

func (o *Orchestrator) monitor(ctx context.Context, b model.BuildID, st *model.PipelineState) error {
	cfg, err := config.Get(ctx)
	if err != nil {
		return err
	}
	if st.MonitorDeadline.IsZero() {
		st.MonitorDeadline = clock.Now(ctx).UTC().Add(cfg.TryJob.Timeout())
		if err := datastore.Put(ctx, st); err != nil {
			return errors.Annotate(err, "save monitor deadline").Tag(transient.Tag).Err()
		}
	}
	m := &jobMonitor{o: o, b: b, st: st, settings: cfg.TryJob}

	for {
		outcome, err := m.poll(ctx)
		switch {
		case err != nil:
			return err
		case outcome == PollSucceed:
			return nil
		case outcome == PollFail:
			return m.fail(ctx)
		case st.Stage != model.PipelineStage_Monitor:
			// Stopped by a checkpoint.
			return nil
		}
		if !clock.Now(ctx).Before(st.MonitorDeadline) {
			return m.timeout(ctx)
		}
		if r := clock.Sleep(clock.Tag(ctx, pollClockTag), m.settings.PollInterval()); r.Incomplete() {
			return errors.Annotate(r.Err, "monitoring try job %s", st.TryJobID).Tag(transient.Tag).Err()
		}
	}
}

// poll fetches the job once and records what changed.
//
// Errors are returned only for failures to save the changes.
func (m *jobMonitor) poll(ctx context.Context) (PollOutcome, error) {
	res := m.o.Buildbucket.GetJobs(ctx, []string{m.st.TryJobID})[0]
	if res.Err != nil {
		pollErrorCounter.Add(ctx, 1, res.Err.Reason)
		m.errorCount++
		m.lastErr = res.Err
		logging.Warningf(ctx, "Error %d polling try job %s: %s", m.errorCount, m.st.TryJobID, res.Err)
		// Up to allowed_response_error_times consecutive transient errors are
		// tolerated, BUILD_NOT_FOUND included. One more is final.
		if !res.Err.Transient() || m.errorCount > m.settings.AllowedResponseErrorTimes {
			return PollFail, nil
		}
		return PollContinue, nil
	}
	m.errorCount = 0

	job := res.Job
	switch job.Status {
	case buildbucket.StatusCompleted:
		if err := m.completed(ctx, job); err != nil {
			return PollContinue, err
		}
		return PollSucceed, nil
	case buildbucket.StatusStarted:
		if !m.started {
			if err := m.markStarted(ctx, job); err != nil {
				return PollContinue, err
			}
			m.started = true
		}
	}
	return PollContinue, nil
}

// markStarted records that the job started. It's idempotent.
func (m *jobMonitor) markStarted(ctx context.Context, job *buildbucket.Job) error {
	err := model.UpdateTryJobData(ctx, job.ID, func(d *model.TryJobData) {
		if d.StartTime.IsZero() {
			d.SetStartTime(orNow(ctx, job.StartedTime))
		}
	})
	if err != nil {
		return err
	}
	return m.o.checkpoint(ctx, m.b, m.st, func(tj *model.TryJob) {
		if last := tj.LastResult(m.st.Kind); last == nil || last.TryJobID != job.ID {
			tj.UpsertResult(m.st.Kind, &model.TryJobResult{URL: job.URL, TryJobID: job.ID})
		}
		if !tj.Status.IsTerminal() {
			tj.Status = model.AnalysisStatus_Running
		}
	})
}

func (m *jobMonitor) completed(ctx context.Context, job *buildbucket.Job) error {
	report, err := parseReport(job.ResultDetailsJSON)
	if err != nil {
		logging.Warningf(ctx, "Bad result details of try job %s: %s", job.ID, err)
	}
	err = model.UpdateTryJobData(ctx, job.ID, func(d *model.TryJobData) {
		d.TryJobURL = job.URL
		if d.StartTime.IsZero() && !job.StartedTime.IsZero() {
			d.SetStartTime(job.StartedTime)
		}
		d.SetEndTime(orNow(ctx, job.CompletedTime))
		if report != nil {
			if report.Metadata != nil {
				d.RegressionRangeSize = report.Metadata.RegressionRangeSize
			}
			d.NumberOfCommitsAnalyzed = int64(report.TestedRevisions())
		}
	})
	if err != nil {
		return err
	}
	err = m.o.checkpoint(ctx, m.b, m.st, func(tj *model.TryJob) {
		tj.UpsertResult(m.st.Kind, &model.TryJobResult{
			Report:   report,
			URL:      job.URL,
			TryJobID: job.ID,
		})
		tj.Status = model.AnalysisStatus_Completed
		m.st.Stage = model.PipelineStage_Identify
	})
	if err != nil || m.st.Stage == model.PipelineStage_Aborted {
		return err
	}
	logging.Infof(ctx, "Try job %s completed", job.ID)
	outcomeCounter.Add(ctx, 1, string(m.st.Kind), outcomeCompleted)
	return nil
}

// timeout gives up on the job. It's a final outcome, not an abort.
func (m *jobMonitor) timeout(ctx context.Context) error {
	logging.Errorf(ctx, "Try job %s timed out", m.st.TryJobID)
	err := model.UpdateTryJobData(ctx, m.st.TryJobID, func(d *model.TryJobData) {
		d.SetError(errorTimeout, errorTimeout)
	})
	if err != nil {
		return err
	}
	err = m.o.checkpoint(ctx, m.b, m.st, func(tj *model.TryJob) {
		tj.Status = model.AnalysisStatus_Error
		m.st.Stage = model.PipelineStage_Done
		m.st.Error = errorTimeout
	})
	if err != nil || m.st.Stage == model.PipelineStage_Aborted {
		return err
	}
	outcomeCounter.Add(ctx, 1, string(m.st.Kind), outcomeTimeout)
	return nil
}

// fail records the last poll error and returns it as a permanent error.
func (m *jobMonitor) fail(ctx context.Context) error {
	err := model.UpdateTryJobData(ctx, m.st.TryJobID, func(d *model.TryJobData) {
		d.SetError(m.lastErr.Reason, m.lastErr.Message)
	})
	if err != nil {
		return err
	}
	return errors.Annotate(m.lastErr, "poll try job %s", m.st.TryJobID).Err()
}

type resultDetails struct {
	Properties struct {
		Report *model.Report `json:"report"`
	} `json:"properties"`
}

// parseReport returns the report of a completed job, or nil if it has none.
func parseReport(blob string) (*model.Report, error) {
	if blob == "" {
		return nil, nil
	}
	details := &resultDetails{}
	if err := json.Unmarshal([]byte(blob), details); err != nil {
		return nil, errors.Annotate(err, "parse result_details_json").Err()
	}
	return details.Properties.Report, nil
}

func orNow(ctx context.Context, t time.Time) time.Time {
	if t.IsZero() {
		return clock.Now(ctx).UTC()
	}
	return t
}
