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

package culprit

import (
	"context"
	"encoding/json"
	"testing"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"go.chromium.org/findit/internal/gitiles"
	"go.chromium.org/findit/model"
)

type fakeLookup map[string]*gitiles.ChangeLog

func (f fakeLookup) GetChangeLog(ctx context.Context, revision string) (*gitiles.ChangeLog, error) {
	if cl, ok := f[revision]; ok {
		return cl, nil
	}
	return nil, errors.Reason("no changelog for %s", revision).Err()
}

var lookup = fakeLookup{
	"rev1": {Revision: "rev1", CommitPosition: 1, CodeReviewURL: "url_1"},
	"rev2": {Revision: "rev2", CommitPosition: 2, CodeReviewURL: "url_2"},
}

func report(result string) *model.Report {
	return &model.Report{Result: json.RawMessage(result)}
}

func TestCompileCulprit(t *testing.T) {
	t.Parallel()

	ftt.Run("Compile culprit", t, func(t *ftt.Test) {
		ctx := context.Background()

		t.Run("two revisions", func(t *ftt.Test) {
			c, err := IdentifyCulprit(ctx, model.TryJobType_Compile,
				report(`{"rev1": "passed", "rev2": "failed"}`), []string{"rev2"}, lookup)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, c, should.Resemble(&model.Culprit{
				Compile: &model.CulpritInfo{Revision: "rev2", CommitPosition: 2, ReviewURL: "url_2"},
			}))
		})

		t.Run("earliest failure after a pass", func(t *ftt.Test) {
			c, err := IdentifyCulprit(ctx, model.TryJobType_Compile,
				report(`{"rev0": "passed", "rev1": "passed", "rev2": "failed", "rev3": "failed"}`),
				[]string{"rev1", "rev2", "rev3"}, lookup)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, c.Compile.Revision, should.Equal("rev2"))
		})

		t.Run("first blamed revision fails", func(t *ftt.Test) {
			c, err := IdentifyCulprit(ctx, model.TryJobType_Compile,
				report(`{"rev1": "failed", "rev2": "failed", "rev3": "failed"}`),
				[]string{"rev1", "rev2", "rev3"}, lookup)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, c.Compile.Revision, should.Equal("rev1"))
		})

		t.Run("reference revision fails", func(t *ftt.Test) {
			c, err := IdentifyCulprit(ctx, model.TryJobType_Compile,
				report(`{"rev0": "failed", "rev1": "failed", "rev2": "failed"}`),
				[]string{"rev1", "rev2"}, lookup)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, c, should.BeNil)
		})

		t.Run("all passed", func(t *ftt.Test) {
			c, err := IdentifyCulprit(ctx, model.TryJobType_Compile,
				report(`{"rev1": "passed", "rev2": "passed"}`), []string{"rev2"}, lookup)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, c, should.BeNil)
		})

		t.Run("lookup failure omits details", func(t *ftt.Test) {
			c, err := IdentifyCulprit(ctx, model.TryJobType_Compile,
				report(`{"rev1": "passed", "rev9": "failed"}`), []string{"rev9"}, lookup)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, c, should.Resemble(&model.Culprit{
				Compile: &model.CulpritInfo{Revision: "rev9"},
			}))
		})

		t.Run("no report", func(t *ftt.Test) {
			c, err := IdentifyCulprit(ctx, model.TryJobType_Compile, nil, []string{"rev1"}, lookup)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, c, should.BeNil)
		})

		t.Run("malformed report", func(t *ftt.Test) {
			_, err := IdentifyCulprit(ctx, model.TryJobType_Compile, report(`[1]`), nil, lookup)
			assert.Loosely(t, err, should.ErrLike("decode compile report"))
		})
	})
}

func TestTestCulprit(t *testing.T) {
	t.Parallel()

	ftt.Run("Test culprits", t, func(t *ftt.Test) {
		ctx := context.Background()
		r := report(`{
			"rev1": {
				"a_test": {"status": "passed", "valid": true},
				"b_test": {"status": "failed", "valid": true, "failures": ["b_test1"]},
				"c_test": {"status": "failed", "valid": false, "failures": ["c_test1"]}
			},
			"rev2": {
				"a_test": {"status": "failed", "valid": true, "failures": ["a_test1"]},
				"b_test": {"status": "failed", "valid": true, "failures": ["b_test1", "b_test2"]},
				"c_test": {"status": "failed", "valid": true, "failures": ["c_test1"]},
				"d_test": {"status": "failed", "valid": true}
			}
		}`)

		c, err := IdentifyCulprit(ctx, model.TryJobType_Test, r, []string{"rev1", "rev2"}, lookup)
		assert.Loosely(t, err, should.BeNil)
		rev1 := &model.CulpritInfo{Revision: "rev1", CommitPosition: 1, ReviewURL: "url_1"}
		rev2 := &model.CulpritInfo{Revision: "rev2", CommitPosition: 2, ReviewURL: "url_2"}
		assert.Loosely(t, c, should.Resemble(&model.Culprit{
			Tests: map[string]*model.StepCulprit{
				"a_test": {Tests: map[string]*model.CulpritInfo{"a_test1": rev2}},
				"b_test": {Tests: map[string]*model.CulpritInfo{"b_test1": rev1, "b_test2": rev2}},
				// The failure at rev1 is not valid.
				"c_test": {Tests: map[string]*model.CulpritInfo{"c_test1": rev2}},
				"d_test": {CulpritInfo: rev2},
			},
		}))

		t.Run("idempotent", func(t *ftt.Test) {
			again, err := IdentifyCulprit(ctx, model.TryJobType_Test, r, []string{"rev1", "rev2"}, lookup)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, again, should.Resemble(c))
		})

		t.Run("nothing failed", func(t *ftt.Test) {
			c, err := IdentifyCulprit(ctx, model.TryJobType_Test,
				report(`{"rev1": {"a_test": {"status": "passed", "valid": true}}}`), []string{"rev1"}, lookup)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, c, should.BeNil)
		})
	})
}
