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

package versioned

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
	"go.chromium.org/luci/gae/filter/featureBreaker"
	"go.chromium.org/luci/gae/impl/memory"
	"go.chromium.org/luci/gae/service/datastore"
)

type sample struct {
	_kind   string         `gae:"$kind,Sample"`
	ID      int64          `gae:"$id"`
	Root    *datastore.Key `gae:"$parent"`
	Payload string         `gae:"payload,noindex"`
}

func (s *sample) VersionedKind() string { return "Sample" }

func (s *sample) SetVersion(root *datastore.Key, version int64) {
	s.Root = root
	s.ID = version
}

func (s *sample) Version() int64 { return s.ID }

func TestVersioned(t *testing.T) {
	t.Parallel()

	ftt.Run("Versioned entities", t, func(t *ftt.Test) {
		c := memory.Use(context.Background())

		t.Run("nothing saved", func(t *ftt.Test) {
			v, err := LatestVersion(c, "Sample")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, v, should.Equal(int64(-1)))
			assert.Loosely(t, GetLatest(c, &sample{}), should.Equal(datastore.ErrNoSuchEntity))
		})

		t.Run("versions increase", func(t *ftt.Test) {
			for i, payload := range []string{"a", "b", "c"} {
				v, err := Save(c, &sample{Payload: payload})
				assert.Loosely(t, err, should.BeNil)
				assert.Loosely(t, v, should.Equal(int64(i+1)))
			}

			latest := &sample{}
			assert.Loosely(t, GetLatest(c, latest), should.BeNil)
			assert.Loosely(t, latest.Payload, should.Equal("c"))
			assert.Loosely(t, latest.Version(), should.Equal(int64(3)))

			first := &sample{}
			assert.Loosely(t, GetVersion(c, first, 1), should.BeNil)
			assert.Loosely(t, first.Payload, should.Equal("a"))

			assert.Loosely(t, GetVersion(c, &sample{}, 0), should.Equal(datastore.ErrNoSuchEntity))
			assert.Loosely(t, GetVersion(c, &sample{}, -1), should.Equal(datastore.ErrNoSuchEntity))
			assert.Loosely(t, GetVersion(c, &sample{}, 4), should.Equal(datastore.ErrNoSuchEntity))

			v, err := LatestVersion(c, "Sample")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, v, should.Equal(int64(3)))
		})

		t.Run("skips versions that are already taken", func(t *ftt.Test) {
			_, err := Save(c, &sample{Payload: "a"})
			assert.Loosely(t, err, should.BeNil)
			// A child written behind the root's back.
			assert.Loosely(t, datastore.Put(c, &sample{ID: 2, Root: RootKey(c, "Sample"), Payload: "stray"}), should.BeNil)

			v, err := Save(c, &sample{Payload: "b"})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, v, should.Equal(int64(3)))
		})

		t.Run("failed commits", func(t *ftt.Test) {
			c, fb := featureBreaker.FilterRDS(c, nil)
			breakOnce := func(err error) {
				var calls int32
				fb.BreakFeaturesWithCallback(func(ctx context.Context, feature string) error {
					if atomic.AddInt32(&calls, 1) == 1 {
						return err
					}
					return nil
				}, "CommitTransaction")
			}

			t.Run("ambiguous outcome moves to the next version", func(t *ftt.Test) {
				breakOnce(transient.Tag.Apply(errors.New("commit deadline exceeded")))
				v, err := Save(c, &sample{Payload: "a"})
				assert.Loosely(t, err, should.BeNil)
				assert.Loosely(t, v, should.Equal(int64(2)))

				latest, err := LatestVersion(c, "Sample")
				assert.Loosely(t, err, should.BeNil)
				assert.Loosely(t, latest, should.Equal(int64(2)))
			})

			t.Run("contention re-checks the same version", func(t *ftt.Test) {
				breakOnce(datastore.ErrConcurrentTransaction)
				v, err := Save(c, &sample{Payload: "a"})
				assert.Loosely(t, err, should.BeNil)

				// No version is skipped.
				latest, err := LatestVersion(c, "Sample")
				assert.Loosely(t, err, should.BeNil)
				assert.Loosely(t, latest, should.Equal(v))
				for i := int64(1); i <= v; i++ {
					assert.Loosely(t, GetVersion(c, &sample{}, i), should.BeNil)
				}
			})

			t.Run("other errors are returned", func(t *ftt.Test) {
				breakOnce(errors.New("permission denied"))
				_, err := Save(c, &sample{Payload: "a"})
				assert.Loosely(t, err, should.ErrLike("save Sample version 1"))
			})
		})

		t.Run("concurrent writers get distinct contiguous versions", func(t *ftt.Test) {
			const writers = 10
			versions := make([]int64, writers)
			errs := make([]error, writers)
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					versions[i], errs[i] = Save(c, &sample{Payload: "x"})
				}(i)
			}
			wg.Wait()

			for _, err := range errs {
				assert.Loosely(t, err, should.BeNil)
			}
			sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
			for i, v := range versions {
				assert.Loosely(t, v, should.Equal(int64(i+1)))
			}
			latest, err := LatestVersion(c, "Sample")
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, latest, should.Equal(int64(writers)))
		})
	})
}
