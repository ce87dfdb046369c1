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
	"encoding/json"
	"net/http"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/server/auth"
	"go.chromium.org/luci/server/router"

	"go.chromium.org/findit/model"
)

// AbortPath is the route of the operator endpoint aborting a try-job.
const AbortPath = "/_ah/api/findit-api/v1/tryjob/abort"

type abortRequest struct {
	MasterName  string `json:"master_name"`
	BuilderName string `json:"builder_name"`
	BuildNumber int64  `json:"build_number"`
}

type abortResponse struct {
	Status string `json:"status"`
}

// HandleAbort aborts the try-job of the build named in the request body and
// responds with the resulting status of its record.
func HandleAbort(ctx *router.Context) {
	c := ctx.Request.Context()
	req := &abortRequest{}
	if err := json.NewDecoder(ctx.Request.Body).Decode(req); err != nil {
		err = errors.Annotate(err, "could not decode request").Err()
		logging.Warningf(c, "%s", err)
		http.Error(ctx.Writer, err.Error(), http.StatusBadRequest)
		return
	}
	b := model.BuildID{Master: req.MasterName, Builder: req.BuilderName, Number: req.BuildNumber}
	if _, err := model.ParseBuildKey(b.Key()); err != nil {
		http.Error(ctx.Writer, err.Error(), http.StatusBadRequest)
		return
	}

	err := Abort(c, b)
	var tj *model.TryJob
	if err == nil {
		tj, err = model.GetTryJob(c, b)
	}
	switch {
	case err != nil:
		logging.Errorf(c, "Error aborting the try job of %s: %s", b, err)
		http.Error(ctx.Writer, "Internal server error", http.StatusInternalServerError)
		return
	case tj == nil:
		http.Error(ctx.Writer, "No try job for "+b.String(), http.StatusNotFound)
		return
	}
	logging.Infof(c, "Try job of %s was aborted by %s, status %s", b, auth.CurrentIdentity(c), tj.Status)
	ctx.Writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(ctx.Writer).Encode(&abortResponse{Status: tj.Status.String()}); err != nil {
		logging.Errorf(c, "Failed to write the response: %s", err)
	}
}
