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

package gitiles

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/proto"
	"go.chromium.org/luci/common/proto/git"
	gitilespb "go.chromium.org/luci/common/proto/gitiles"
	"go.chromium.org/luci/common/proto/gitiles/mock_gitiles"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

const sampleMessage = `Fix the thing.

Longer description.

Bug: 123
Change-Id: I0123456789abcdef
Reviewed-on: https://chromium-review.googlesource.com/c/chromium/src/+/1234
Cr-Commit-Position: refs/heads/main@{#1000}
`

func TestParseCommitMessage(t *testing.T) {
	t.Parallel()

	ftt.Run("ParseCommitMessage", t, func(t *ftt.Test) {
		t.Run("gerrit footers", func(t *ftt.Test) {
			cl := ParseCommitMessage(sampleMessage)
			assert.Loosely(t, cl.CommitPosition, should.Equal(int64(1000)))
			assert.Loosely(t, cl.CodeReviewURL, should.Equal("https://chromium-review.googlesource.com/c/chromium/src/+/1234"))
		})

		t.Run("legacy footers", func(t *ftt.Test) {
			cl := ParseCommitMessage("Subject\n\nReview URL: https://codereview.chromium.org/1584533005 .\n\n" +
				"Cr-Commit-Position: refs/heads/master@{#368340}")
			assert.Loosely(t, cl.CommitPosition, should.Equal(int64(368340)))
			assert.Loosely(t, cl.CodeReviewURL, should.Equal("https://codereview.chromium.org/1584533005"))
		})

		t.Run("svn", func(t *ftt.Test) {
			cl := ParseCommitMessage("Subject\n\ngit-svn-id: svn://svn.chromium.org/chrome/trunk/src@291255 0039d316-1c4b-4281-b951-d872f2087c98")
			assert.Loosely(t, cl.CommitPosition, should.Equal(int64(291255)))
		})

		t.Run("no footers", func(t *ftt.Test) {
			cl := ParseCommitMessage("Subject only")
			assert.Loosely(t, cl, should.Resemble(&ChangeLog{}))
		})
	})
}

func TestCachedLookup(t *testing.T) {
	t.Parallel()

	ftt.Run("CachedLookup", t, func(t *ftt.Test) {
		ctx := context.Background()
		ctl := gomock.NewController(t)
		defer ctl.Finish()
		mockClient := mock_gitiles.NewMockGitilesClient(ctl)
		repo := NewRepository(mockClient, "chromium.googlesource.com", "chromium/src")
		lookup := NewCachedLookup(repo, 10)

		assert.Loosely(t, repo.IdentityKey(), should.Equal("chromium.googlesource.com/chromium/src"))

		t.Run("fetched once", func(t *ftt.Test) {
			mockClient.EXPECT().Log(gomock.Any(), proto.MatcherEqual(&gitilespb.LogRequest{
				Project:    "chromium/src",
				Committish: "rev1",
				PageSize:   1,
			})).Return(&gitilespb.LogResponse{
				Log: []*git.Commit{{Id: "rev1", Message: sampleMessage}},
			}, nil).Times(1)

			for i := 0; i < 2; i++ {
				cl, err := lookup.GetChangeLog(ctx, "rev1")
				assert.Loosely(t, err, should.BeNil)
				assert.Loosely(t, cl, should.Resemble(&ChangeLog{
					Revision:       "rev1",
					CommitPosition: 1000,
					CodeReviewURL:  "https://chromium-review.googlesource.com/c/chromium/src/+/1234",
				}))
			}
		})

		t.Run("errors are not cached", func(t *ftt.Test) {
			mockClient.EXPECT().Log(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom")).Times(2)
			for i := 0; i < 2; i++ {
				_, err := lookup.GetChangeLog(ctx, "rev2")
				assert.Loosely(t, err, should.ErrLike("boom"))
			}
		})

		t.Run("missing revision", func(t *ftt.Test) {
			mockClient.EXPECT().Log(gomock.Any(), gomock.Any()).Return(&gitilespb.LogResponse{}, nil)
			_, err := lookup.GetChangeLog(ctx, "rev3")
			assert.Loosely(t, err, should.ErrLike("not found"))
		})
	})
}
