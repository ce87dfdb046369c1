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

// Package buildbucket triggers try-jobs on Buildbucket and fetches their
// status, using the legacy v1 REST API.
package buildbucket

//go:generate mockgen -source=buildbucket.go -destination=mock_client.go -package=buildbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	bbv1 "go.chromium.org/luci/common/api/buildbucket/buildbucket/v1"
	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/common/sync/parallel"
)

// DefaultHost is the production Buildbucket host.
const DefaultHost = "cr-buildbucket.appspot.com"

const (
	// callTimeout is the deadline of a single trigger or fetch.
	callTimeout = 20 * time.Second
	// clientTag is always the last tag of a triggered job.
	clientTag = "user_agent:findit"
)

// Error reasons of a JobError. The first two are returned by Buildbucket,
// the others are produced by the client.
const (
	ReasonBuildNotFound  = "BUILD_NOT_FOUND"
	ReasonInvalidInput   = "INVALID_INPUT"
	ReasonHTTPError      = "HTTP_ERROR"
	ReasonTransportError = "TRANSPORT_ERROR"
	ReasonBadResponse    = "BAD_RESPONSE"
)

// Job statuses.
const (
	StatusScheduled = "SCHEDULED"
	StatusStarted   = "STARTED"
	StatusCompleted = "COMPLETED"
)

// JobRequest is a request to trigger a try-job.
type JobRequest struct {
	// Master is the trybot master; the bucket is derived from it.
	Master     string
	Builder    string
	Properties map[string]any
	// Revision, if set, is passed as the change to build.
	Revision string
	Tags     []string
	// OperationID, if set, lets Buildbucket deduplicate triggers of the same
	// job. Triggers are only retried when it's set.
	OperationID string
}

// Bucket returns the canonical bucket name of the request's master.
func (r *JobRequest) Bucket() string {
	if strings.HasPrefix(r.Master, "master.") {
		return r.Master
	}
	return "master." + r.Master
}

type change struct {
	Author   changeAuthor `json:"author"`
	Revision string       `json:"revision"`
}

type changeAuthor struct {
	Email string `json:"email"`
}

type parameters struct {
	BuilderName string         `json:"builder_name"`
	Properties  map[string]any `json:"properties"`
	Changes     []change       `json:"changes,omitempty"`
}

type putRequest struct {
	Bucket            string   `json:"bucket"`
	ParametersJSON    string   `json:"parameters_json"`
	Tags              []string `json:"tags"`
	ClientOperationID string   `json:"client_operation_id,omitempty"`
}

func (r *JobRequest) body() ([]byte, error) {
	params := parameters{
		BuilderName: r.Builder,
		Properties:  r.Properties,
	}
	if r.Revision != "" {
		params.Changes = []change{{
			Author:   changeAuthor{Email: "findit"},
			Revision: r.Revision,
		}}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(r.Tags)+1)
	tags = append(tags, r.Tags...)
	tags = append(tags, clientTag)
	return json.Marshal(&putRequest{
		Bucket:            r.Bucket(),
		ParametersJSON:    string(paramsJSON),
		Tags:              tags,
		ClientOperationID: r.OperationID,
	})
}

// Job is a job as known by Buildbucket.
type Job struct {
	ID                string
	URL               string
	Status            string
	Result            string
	ResultDetailsJSON string
	CreatedTime       time.Time
	StartedTime       time.Time
	CompletedTime     time.Time
}

// JobError is a per-job failure.
type JobError struct {
	Reason  string
	Message string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Transient returns true if the same call may succeed later.
func (e *JobError) Transient() bool {
	return e.Reason != ReasonInvalidInput && e.Reason != ReasonBadResponse
}

// Unanswered returns true if Buildbucket gave no answer to the call, so the
// outcome of a trigger is unknown.
func (e *JobError) Unanswered() bool {
	return e.Reason == ReasonHTTPError || e.Reason == ReasonTransportError
}

// JobResult is the outcome of one trigger or fetch. Exactly one of Job and
// Err is set.
type JobResult struct {
	Job *Job
	Err *JobError
}

// Client triggers and fetches jobs.
//
// Calls are batched: one result is returned per input, in the same order.
// Per-item failures are reported in the results, never as an error.
type Client interface {
	TriggerJobs(ctx context.Context, reqs []*JobRequest) []*JobResult
	GetJobs(ctx context.Context, ids []string) []*JobResult
}

type client struct {
	http    *http.Client
	baseURL string
	retry   retry.Factory
}

// NewClient returns a Client talking to the given Buildbucket host.
//
// host may be a full URL, e.g. of a test server.
func NewClient(httpClient *http.Client, host string) Client {
	base := host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(base, "/") + "/_ah/api/buildbucket/v1",
		retry:   defaultRetry,
	}
}

func defaultRetry() retry.Iterator {
	return &retry.ExponentialBackoff{
		Limited: retry.Limited{
			Delay:   500 * time.Millisecond,
			Retries: 3,
		},
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
	}
}

// TriggerJobs implements Client.
func (c *client) TriggerJobs(ctx context.Context, reqs []*JobRequest) []*JobResult {
	results := make([]*JobResult, len(reqs))
	_ = parallel.FanOutIn(func(work chan<- func() error) {
		for i, req := range reqs {
			work <- func() error {
				results[i] = c.trigger(ctx, req)
				return nil
			}
		}
	})
	return results
}

// GetJobs implements Client.
func (c *client) GetJobs(ctx context.Context, ids []string) []*JobResult {
	results := make([]*JobResult, len(ids))
	_ = parallel.FanOutIn(func(work chan<- func() error) {
		for i, id := range ids {
			work <- func() error {
				results[i] = c.get(ctx, id)
				return nil
			}
		}
	})
	return results
}

func (c *client) trigger(ctx context.Context, req *JobRequest) *JobResult {
	ctx, cancel := clock.WithTimeout(ctx, callTimeout)
	defer cancel()

	body, err := req.body()
	if err != nil {
		return errResult(ReasonInvalidInput, err)
	}
	put := func() (*JobResult, *JobError) {
		return c.call(ctx, http.MethodPut, c.baseURL+"/builds", body)
	}
	var res *JobResult
	if req.OperationID == "" {
		// Without deduplication a retry could trigger the job twice.
		var jerr *JobError
		if res, jerr = put(); jerr != nil {
			res = &JobResult{Err: jerr}
		}
	} else {
		res = c.retried(ctx, "buildbucket.trigger", put)
	}
	if res.Err != nil {
		logging.Warningf(ctx, "Failed to trigger a job on %s/%s: %s", req.Bucket(), req.Builder, res.Err)
	}
	return res
}

func (c *client) get(ctx context.Context, id string) *JobResult {
	ctx, cancel := clock.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return errResult(ReasonInvalidInput, errors.Reason("bad job id %q", id).Err())
	}
	return c.retried(ctx, "buildbucket.get", func() (*JobResult, *JobError) {
		return c.call(ctx, http.MethodGet, c.baseURL+"/builds/"+id, nil)
	})
}

// retried runs f until Buildbucket answers it or the retries run out.
func (c *client) retried(ctx context.Context, name string, f func() (*JobResult, *JobError)) *JobResult {
	var res *JobResult
	err := retry.Retry(ctx, transient.Only(c.retry), func() error {
		var jerr *JobError
		if res, jerr = f(); jerr != nil {
			res = &JobResult{Err: jerr}
			if jerr.Unanswered() {
				return transient.Tag.Apply(jerr)
			}
		}
		return nil
	}, retry.LogCallback(ctx, name))
	if err != nil && res == nil {
		return errResult(ReasonTransportError, err)
	}
	return res
}

// call sends one request and decodes the {build, error} response.
func (c *client) call(ctx context.Context, method, url string, body []byte) (*JobResult, *JobError) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &JobError{Reason: ReasonInvalidInput, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &JobError{Reason: ReasonTransportError, Message: err.Error()}
	}
	defer resp.Body.Close()
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &JobError{Reason: ReasonTransportError, Message: err.Error()}
	}

	msg := &bbv1.LegacyApiBuildResponseMessage{}
	if jsonErr := json.Unmarshal(blob, msg); jsonErr != nil || resp.StatusCode >= 300 {
		if resp.StatusCode >= 300 {
			if msg.Error != nil && msg.Error.Reason != "" {
				return nil, &JobError{Reason: msg.Error.Reason, Message: msg.Error.Message}
			}
			return nil, &JobError{
				Reason:  ReasonHTTPError,
				Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(blob), 200)),
			}
		}
		return nil, &JobError{Reason: ReasonBadResponse, Message: jsonErr.Error()}
	}
	switch {
	case msg.Error != nil:
		return nil, &JobError{Reason: msg.Error.Reason, Message: msg.Error.Message}
	case msg.Build == nil:
		return nil, &JobError{Reason: ReasonBadResponse, Message: "no build in the response"}
	}
	return &JobResult{Job: jobFromMessage(msg.Build)}, nil
}

func jobFromMessage(b *bbv1.LegacyApiCommonBuildMessage) *Job {
	job := &Job{
		ID:                strconv.FormatInt(b.Id, 10),
		URL:               b.Url,
		Status:            b.Status,
		Result:            b.Result,
		ResultDetailsJSON: b.ResultDetailsJson,
	}
	if b.CreatedTs != 0 {
		job.CreatedTime = bbv1.ParseTimestamp(b.CreatedTs)
	}
	if b.StartedTs != 0 {
		job.StartedTime = bbv1.ParseTimestamp(b.StartedTs)
	}
	if b.CompletedTs != 0 {
		job.CompletedTime = bbv1.ParseTimestamp(b.CompletedTs)
	}
	return job
}

func errResult(reason string, err error) *JobResult {
	return &JobResult{Err: &JobError{Reason: reason, Message: err.Error()}}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
