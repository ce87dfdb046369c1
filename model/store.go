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

package model

import (
	"context"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/gae/service/datastore"
)

// TryJobKey returns the key of the try-job record of a build.
func TryJobKey(ctx context.Context, b BuildID) *datastore.Key {
	return datastore.NewKey(ctx, "TryJob", b.Key(), 0, nil)
}

// GetTryJob returns the try-job record of a build, or nil if there is none.
func GetTryJob(ctx context.Context, b BuildID) (*TryJob, error) {
	tj := &TryJob{ID: b.Key()}
	switch err := datastore.Get(ctx, tj); {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return nil, nil
	case err != nil:
		return nil, errors.Annotate(err, "get try job %s", b).Tag(transient.Tag).Err()
	}
	return tj, nil
}

// GetTryJobData returns the metadata of a job, or nil if there is none.
func GetTryJobData(ctx context.Context, jobID string) (*TryJobData, error) {
	data := &TryJobData{ID: jobID}
	switch err := datastore.Get(ctx, data); {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return nil, nil
	case err != nil:
		return nil, errors.Annotate(err, "get try job data %s", jobID).Tag(transient.Tag).Err()
	}
	return data, nil
}

// UpdateTryJob loads the try-job record of the build, runs f over it and
// saves it if f returns true. It should run in a transaction.
//
// If the record doesn't exist f is not called and (nil, nil) is returned: a
// manually deleted record is not an error.
func UpdateTryJob(ctx context.Context, b BuildID, f func(tj *TryJob) bool) (*TryJob, error) {
	tj, err := GetTryJob(ctx, b)
	if err != nil || tj == nil {
		return nil, err
	}
	if !f(tj) {
		return tj, nil
	}
	tj.UpdateTime = clock.Now(ctx).UTC()
	if err := datastore.Put(ctx, tj); err != nil {
		return nil, errors.Annotate(err, "save try job %s", b).Tag(transient.Tag).Err()
	}
	return tj, nil
}

// UpdateTryJobData loads or creates the metadata of a job, runs f over it
// and saves it.
func UpdateTryJobData(ctx context.Context, jobID string, f func(data *TryJobData)) error {
	return datastore.RunInTransaction(ctx, func(ctx context.Context) error {
		data, err := GetTryJobData(ctx, jobID)
		if err != nil {
			return err
		}
		if data == nil {
			data = &TryJobData{ID: jobID}
		}
		f(data)
		if err := datastore.Put(ctx, data); err != nil {
			return errors.Annotate(err, "save try job data %s", jobID).Tag(transient.Tag).Err()
		}
		return nil
	}, nil)
}

// GetPipelineState returns the checkpoint of a pipeline, or nil.
func GetPipelineState(ctx context.Context, b BuildID, id string) (*PipelineState, error) {
	st := &PipelineState{ID: id, TryJob: TryJobKey(ctx, b)}
	switch err := datastore.Get(ctx, st); {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return nil, nil
	case err != nil:
		return nil, errors.Annotate(err, "get pipeline %s of %s", id, b).Tag(transient.Tag).Err()
	}
	return st, nil
}

// GetAnalysis returns the analysis of a build, or nil if there is none.
func GetAnalysis(ctx context.Context, b BuildID) (*Analysis, error) {
	a := &Analysis{ID: b.Key()}
	switch err := datastore.Get(ctx, a); {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return nil, nil
	case err != nil:
		return nil, errors.Annotate(err, "get analysis %s", b).Tag(transient.Tag).Err()
	}
	return a, nil
}
