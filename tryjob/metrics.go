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
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"
)

// Outcomes of a try-job pipeline.
const (
	outcomeCompleted = "COMPLETED"
	outcomeTimeout   = "TIMEOUT"
	outcomeAborted   = "ABORTED"
)

var (
	scheduledCounter = metric.NewCounter(
		"findit/tryjob/scheduled",
		"The number of try-jobs triggered, by type.",
		nil,
		// "compile" or "test".
		field.String("type"))

	outcomeCounter = metric.NewCounter(
		"findit/tryjob/outcome",
		"The number of try-job pipelines that ended, by type and outcome.",
		nil,
		field.String("type"),
		// One of COMPLETED, TIMEOUT or ABORTED.
		field.String("outcome"))

	pollErrorCounter = metric.NewCounter(
		"findit/tryjob/poll_errors",
		"The number of failed polls of try-jobs, by error reason.",
		nil,
		field.String("reason"))
)
