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

// Package model contains the datastore model for Findit try-jobs.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/gae/service/datastore"
)

// AnalysisStatus is the status shared by analyses and try-job records.
type AnalysisStatus int

const (
	AnalysisStatus_Pending   AnalysisStatus = 0
	AnalysisStatus_Running   AnalysisStatus = 10
	AnalysisStatus_Completed AnalysisStatus = 70
	AnalysisStatus_Error     AnalysisStatus = 80
	// A try-job that wasn't run because none of its tests fail reliably.
	AnalysisStatus_Skipped AnalysisStatus = 100
)

func (s AnalysisStatus) String() string {
	switch s {
	case AnalysisStatus_Pending:
		return "PENDING"
	case AnalysisStatus_Running:
		return "RUNNING"
	case AnalysisStatus_Completed:
		return "COMPLETED"
	case AnalysisStatus_Error:
		return "ERROR"
	case AnalysisStatus_Skipped:
		return "SKIPPED"
	default:
		return fmt.Sprintf("AnalysisStatus(%d)", int(s))
	}
}

// IsTerminal returns true for COMPLETED, ERROR and SKIPPED.
func (s AnalysisStatus) IsTerminal() bool {
	return s == AnalysisStatus_Completed || s == AnalysisStatus_Error || s == AnalysisStatus_Skipped
}

// TryJobType is the kind of a try-job.
type TryJobType string

const (
	TryJobType_Compile TryJobType = "compile"
	TryJobType_Test    TryJobType = "test"
)

// Statuses of a revision or a step in a try-job report.
const (
	ResultPassed = "passed"
	ResultFailed = "failed"
)

// BuildID identifies a waterfall build.
type BuildID struct {
	Master  string
	Builder string
	Number  int64
}

// Key returns "<master>/<builder>/<number>".
func (b BuildID) Key() string {
	return fmt.Sprintf("%s/%s/%d", b.Master, b.Builder, b.Number)
}

func (b BuildID) String() string {
	return b.Key()
}

// WithNumber returns the ID of another build of the same builder.
func (b BuildID) WithNumber(n int64) BuildID {
	b.Number = n
	return b
}

// ParseBuildKey is the reverse of BuildID.Key.
func ParseBuildKey(key string) (BuildID, error) {
	first := strings.Index(key, "/")
	last := strings.LastIndex(key, "/")
	if first <= 0 || last <= first+1 {
		return BuildID{}, errors.Reason("malformed build key %q", key).Err()
	}
	n, err := strconv.ParseInt(key[last+1:], 10, 64)
	if err != nil {
		return BuildID{}, errors.Annotate(err, "malformed build number in %q", key).Err()
	}
	return BuildID{Master: key[:first], Builder: key[first+1 : last], Number: n}, nil
}

// TryJob is the record of all try-jobs run for one waterfall build.
//
// Compile and test results are kept in independent lists. Attempts are only
// ever appended or updated in place, never removed.
type TryJob struct {
	_kind string `gae:"$kind,TryJob"`
	// ID is the build key, "<master>/<builder>/<number>".
	ID     string         `gae:"$id"`
	Status AnalysisStatus `gae:"status"`
	// Results of compile try-jobs, oldest first.
	CompileResults TryJobResults `gae:"compile_results"`
	// Results of test try-jobs, oldest first.
	TestResults TryJobResults `gae:"test_results"`
	// Every buildbucket job id triggered for this build.
	TryJobIDs  []string  `gae:"try_job_ids,noindex"`
	CreateTime time.Time `gae:"create_time"`
	UpdateTime time.Time `gae:"update_time"`
}

// NewTryJob returns a PENDING record for the build.
func NewTryJob(b BuildID, now time.Time) *TryJob {
	return &TryJob{
		ID:         b.Key(),
		Status:     AnalysisStatus_Pending,
		CreateTime: now,
		UpdateTime: now,
	}
}

// Results returns the result list of the given kind.
func (t *TryJob) Results(kind TryJobType) *TryJobResults {
	if kind == TryJobType_Compile {
		return &t.CompileResults
	}
	return &t.TestResults
}

// LastResult returns the latest attempt of the given kind, or nil.
func (t *TryJob) LastResult(kind TryJobType) *TryJobResult {
	results := *t.Results(kind)
	if len(results) == 0 {
		return nil
	}
	return results[len(results)-1]
}

// FindResult returns the attempt for the job id, or nil.
func (t *TryJob) FindResult(kind TryJobType, jobID string) *TryJobResult {
	results := *t.Results(kind)
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].TryJobID == jobID {
			return results[i]
		}
	}
	return nil
}

// UpsertResult updates the last attempt in place if it is for the same job,
// otherwise it appends r.
func (t *TryJob) UpsertResult(kind TryJobType, r *TryJobResult) {
	results := t.Results(kind)
	if last := t.LastResult(kind); last != nil && last.TryJobID == r.TryJobID {
		(*results)[len(*results)-1] = r
		return
	}
	*results = append(*results, r)
}

// AddTryJobID records the job id unless it's already known.
func (t *TryJob) AddTryJobID(id string) {
	for _, existing := range t.TryJobIDs {
		if existing == id {
			return
		}
	}
	t.TryJobIDs = append(t.TryJobIDs, id)
}

// TryJobResult is one attempt of a try-job.
type TryJobResult struct {
	// Report is nil until the job completes.
	Report   *Report  `json:"report"`
	URL      string   `json:"url,omitempty"`
	TryJobID string   `json:"try_job_id"`
	Culprit  *Culprit `json:"culprit,omitempty"`
}

// TryJobData holds the operational metadata of one buildbucket job.
type TryJobData struct {
	_kind string `gae:"$kind,TryJobData"`
	// ID is the buildbucket job id.
	ID       string     `gae:"$id"`
	Kind     TryJobType `gae:"try_job_type"`
	BuildKey string     `gae:"build_key"`

	RequestTime time.Time `gae:"request_time"`
	StartTime   time.Time `gae:"start_time"`
	EndTime     time.Time `gae:"end_time"`

	RegressionRangeSize     int64  `gae:"regression_range_size,noindex"`
	NumberOfCommitsAnalyzed int64  `gae:"number_of_commits_analyzed,noindex"`
	TryJobURL               string `gae:"try_job_url,noindex"`

	ErrorReason  string `gae:"error_reason,noindex"`
	ErrorMessage string `gae:"error_message,noindex"`

	// Revisions identified as culprits, sorted.
	Culprits []string `gae:"culprits,noindex"`
}

// The setters below keep RequestTime <= StartTime <= EndTime.

func (d *TryJobData) SetRequestTime(t time.Time) {
	if !d.StartTime.IsZero() && t.After(d.StartTime) {
		t = d.StartTime
	}
	if !d.EndTime.IsZero() && t.After(d.EndTime) {
		t = d.EndTime
	}
	d.RequestTime = t
}

func (d *TryJobData) SetStartTime(t time.Time) {
	if !d.RequestTime.IsZero() && t.Before(d.RequestTime) {
		t = d.RequestTime
	}
	if !d.EndTime.IsZero() && t.After(d.EndTime) {
		t = d.EndTime
	}
	d.StartTime = t
}

func (d *TryJobData) SetEndTime(t time.Time) {
	if !d.StartTime.IsZero() && t.Before(d.StartTime) {
		t = d.StartTime
	}
	if !d.RequestTime.IsZero() && t.Before(d.RequestTime) {
		t = d.RequestTime
	}
	d.EndTime = t
}

// SetError records the last error of the job.
func (d *TryJobData) SetError(reason, message string) {
	d.ErrorReason = reason
	d.ErrorMessage = message
}

// Analysis is the heuristic analysis of a failed waterfall build.
type Analysis struct {
	_kind string `gae:"$kind,Analysis"`
	// ID is the build key.
	ID     string         `gae:"$id"`
	Status AnalysisStatus `gae:"status"`
	// Whether the build was completed when it was last analyzed.
	BuildCompleted bool `gae:"build_completed"`
	// Steps that were not passed in the build when it was last analyzed.
	NotPassedSteps []string `gae:"not_passed_steps,noindex"`
	// Result is the opaque output of the failure analyzer.
	Result []byte `gae:"result,noindex"`
	// FailureResultMap maps failures to the build they are attributed to.
	FailureResultMap FailureResultMap `gae:"failure_result_map"`
	// Version is increased every time the analysis is reset.
	Version     int64     `gae:"version"`
	RequestTime time.Time `gae:"request_time"`
	StartTime   time.Time `gae:"start_time"`
	EndTime     time.Time `gae:"end_time"`
}

// Reset prepares the analysis for a new run.
func (a *Analysis) Reset(now time.Time) {
	a.Status = AnalysisStatus_Pending
	a.Version++
	a.RequestTime = now
	a.StartTime = time.Time{}
	a.EndTime = time.Time{}
}

// Failed returns true if the last run ended in error.
func (a *Analysis) Failed() bool {
	return a.Status == AnalysisStatus_Error
}

// PipelineStage is a durable checkpoint of a try-job pipeline.
type PipelineStage string

const (
	PipelineStage_Schedule PipelineStage = "SCHEDULE"
	PipelineStage_Monitor  PipelineStage = "MONITOR"
	PipelineStage_Identify PipelineStage = "IDENTIFY"
	PipelineStage_Done     PipelineStage = "DONE"
	PipelineStage_Aborted  PipelineStage = "ABORTED"
)

// IsFinal returns true if the pipeline won't make progress anymore.
func (s PipelineStage) IsFinal() bool {
	return s == PipelineStage_Done || s == PipelineStage_Aborted
}

// PipelineState is the checkpoint of one try-job pipeline run.
//
// It's a child of the TryJob record, so both are updated in the same
// transactions.
type PipelineState struct {
	_kind  string         `gae:"$kind,TryJobPipeline"`
	ID     string         `gae:"$id"`
	TryJob *datastore.Key `gae:"$parent"`

	Kind   TryJobType    `gae:"try_job_type"`
	Stage  PipelineStage `gae:"stage"`
	Params TryJobParams  `gae:"params"`
	// TryJobID is set once the job is triggered.
	TryJobID string `gae:"try_job_id"`
	// MonitorDeadline is set when monitoring starts.
	MonitorDeadline time.Time `gae:"monitor_deadline,noindex"`
	// Error of an aborted pipeline.
	Error      string    `gae:"error,noindex"`
	CreateTime time.Time `gae:"create_time"`
	UpdateTime time.Time `gae:"update_time"`
}

// TryJobParams are the parameters of a try-job computed at scheduling time.
type TryJobParams struct {
	GoodRevision   string   `json:"good_revision"`
	BadRevision    string   `json:"bad_revision"`
	BlameList      []string `json:"blame_list,omitempty"`
	CompileTargets []string `json:"compile_targets,omitempty"`
	// Step name to tests to run. An empty list means the whole step.
	TargetedTests map[string][]string `json:"targeted_tests,omitempty"`
	TrybotMaster  string              `json:"trybot_master"`
	TrybotBuilder string              `json:"trybot_builder"`
}
