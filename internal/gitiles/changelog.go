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

// Package gitiles looks up changelogs of revisions on Gitiles.
package gitiles

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.chromium.org/luci/common/data/caching/lru"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	gitilespb "go.chromium.org/luci/common/proto/gitiles"
)

var (
	commitPositionRe = regexp.MustCompile(`^Cr-Commit-Position: refs/heads/(?:master|main)@\{#(\d+)\}$`)
	svnPositionRe    = regexp.MustCompile(`^git-svn-id: .*@(\d+) [0-9a-fA-F-]+$`)
	reviewedOnRe     = regexp.MustCompile(`^Reviewed-on: (https?://\S+)$`)
	reviewURLRe      = regexp.MustCompile(`^Review URL: (.*\d+).*$`)
)

// ChangeLog is what is known about a revision.
type ChangeLog struct {
	Revision string
	// CommitPosition is 0 if the commit message has no position footer.
	CommitPosition int64
	CodeReviewURL  string
}

// Identifiable is implemented by types usable as a part of a cache key.
type Identifiable interface {
	// IdentityKey returns a string identifying the value.
	IdentityKey() string
}

// Repository returns changelogs of its revisions.
type Repository interface {
	Identifiable
	GetChangeLog(ctx context.Context, revision string) (*ChangeLog, error)
}

// GitilesRepository is a repository hosted on Gitiles.
type GitilesRepository struct {
	client  gitilespb.GitilesClient
	host    string
	project string
}

// NewRepository returns a repository for the project on the host.
func NewRepository(client gitilespb.GitilesClient, host, project string) *GitilesRepository {
	return &GitilesRepository{client: client, host: host, project: project}
}

// IdentityKey implements Identifiable.
func (r *GitilesRepository) IdentityKey() string {
	return r.host + "/" + r.project
}

// GetChangeLog implements Repository.
func (r *GitilesRepository) GetChangeLog(ctx context.Context, revision string) (*ChangeLog, error) {
	res, err := r.client.Log(ctx, &gitilespb.LogRequest{
		Project:    r.project,
		Committish: revision,
		PageSize:   1,
	})
	switch {
	case err != nil:
		return nil, errors.Annotate(err, "gitiles log of %s/%s", r.IdentityKey(), revision).Err()
	case len(res.Log) == 0:
		return nil, errors.Reason("revision %s not found in %s", revision, r.IdentityKey()).Err()
	}
	cl := ParseCommitMessage(res.Log[0].Message)
	cl.Revision = revision
	return cl, nil
}

// ParseCommitMessage extracts the commit position and review URL from the
// footers of a commit message.
func ParseCommitMessage(message string) *ChangeLog {
	cl := &ChangeLog{}
	lines := strings.Split(strings.TrimSpace(message), "\n")
	// Footers are at the end; the last match wins.
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if cl.CommitPosition == 0 {
			if m := commitPositionRe.FindStringSubmatch(line); m != nil {
				cl.CommitPosition, _ = strconv.ParseInt(m[1], 10, 64)
			} else if m := svnPositionRe.FindStringSubmatch(line); m != nil {
				cl.CommitPosition, _ = strconv.ParseInt(m[1], 10, 64)
			}
		}
		if cl.CodeReviewURL == "" {
			if m := reviewedOnRe.FindStringSubmatch(line); m != nil {
				cl.CodeReviewURL = m[1]
			} else if m := reviewURLRe.FindStringSubmatch(line); m != nil {
				cl.CodeReviewURL = m[1]
			}
		}
	}
	return cl
}

// CachedLookup caches changelogs of a repository in process memory.
//
// Commits are immutable, so entries only leave the cache when evicted.
type CachedLookup struct {
	repo  Repository
	cache *lru.Cache[string, *ChangeLog]
	ttl   time.Duration
}

// NewCachedLookup returns a lookup caching up to size changelogs.
func NewCachedLookup(repo Repository, size int) *CachedLookup {
	return &CachedLookup{
		repo:  repo,
		cache: lru.New[string, *ChangeLog](size),
		ttl:   24 * time.Hour,
	}
}

// GetChangeLog returns the changelog of the revision.
func (c *CachedLookup) GetChangeLog(ctx context.Context, revision string) (*ChangeLog, error) {
	key := cacheKey(c.repo, revision)
	return c.cache.GetOrCreate(ctx, key, func() (*ChangeLog, time.Duration, error) {
		logging.Debugf(ctx, "Fetching changelog %s", key)
		cl, err := c.repo.GetChangeLog(ctx, revision)
		if err != nil {
			return nil, 0, err
		}
		return cl, c.ttl, nil
	})
}

func cacheKey(id Identifiable, revision string) string {
	return id.IdentityKey() + "@" + revision
}
