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

// Package versioned stores append-only versions of an entity.
//
// Versions of kind K are children of a single root entity of kind "KRoot"
// with ID 1. The root tracks the current version. Version numbers start at 1
// and grow monotonically.
package versioned

import (
	"context"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/gae/service/datastore"
)

// maxSaveAttempts bounds the number of transactions Save may run.
const maxSaveAttempts = 100

// Entity is an entity that is stored as versions.
//
// Implementations usually store the version as `gae:"$id"` and the root as
// `gae:"$parent"`.
type Entity interface {
	// VersionedKind is the kind of the entity; its root kind is derived from it.
	VersionedKind() string
	// SetVersion sets the key of the entity.
	SetVersion(root *datastore.Key, version int64)
	// Version returns the version of the entity, 0 if not saved yet.
	Version() int64
}

type rootEntity struct {
	Kind       string    `gae:"$kind"`
	ID         int64     `gae:"$id"`
	Current    int64     `gae:"current,noindex"`
	UpdateTime time.Time `gae:"update_time,noindex"`
}

// RootKey returns the key of the root of the given kind.
func RootKey(ctx context.Context, kind string) *datastore.Key {
	return datastore.NewKey(ctx, kind+"Root", "", 1, nil)
}

func getRoot(ctx context.Context, kind string) (*rootEntity, error) {
	root := &rootEntity{Kind: kind + "Root", ID: 1}
	switch err := datastore.Get(ctx, root); {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return nil, nil
	case err != nil:
		return nil, errors.Annotate(err, "get %s root", kind).Tag(transient.Tag).Err()
	}
	return root, nil
}

// LatestVersion returns the current version of the kind, or -1 if nothing
// was ever saved.
func LatestVersion(ctx context.Context, kind string) (int64, error) {
	root, err := getRoot(ctx, kind)
	switch {
	case err != nil:
		return 0, err
	case root == nil:
		return -1, nil
	}
	return root.Current, nil
}

// Save stores e as a new version and returns the version number.
//
// Each attempt claims a version in a single-try transaction. If the version
// is already taken, the next one is tried. On contention the same version is
// re-checked. On other transient errors the outcome of the commit is unknown
// and the next version is tried, so a version may be skipped if the commit
// actually landed.
func Save(ctx context.Context, e Entity) (int64, error) {
	kind := e.VersionedKind()
	rootKey := RootKey(ctx, kind)

	// Must not run inside another transaction.
	ctx = datastore.WithoutTransaction(ctx)
	root, err := getRoot(ctx, kind)
	if err != nil {
		return 0, err
	}
	version := int64(1)
	if root != nil {
		version = root.Current + 1
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, errors.Annotate(err, "save %s", kind).Err()
		}
		next := version
		err := datastore.RunInTransaction(ctx, func(ctx context.Context) error {
			e.SetVersion(rootKey, version)
			switch res, err := datastore.Exists(ctx, e); {
			case err != nil:
				return err
			case res.All():
				// Taken. Jump past whatever the root already knows about.
				next = version + 1
				if r, err := getRoot(ctx, kind); err == nil && r != nil && r.Current >= next {
					next = r.Current + 1
				}
				return errVersionTaken
			}
			root := &rootEntity{
				Kind:       kind + "Root",
				ID:         1,
				Current:    version,
				UpdateTime: clock.Now(ctx).UTC(),
			}
			return datastore.Put(ctx, e, root)
		}, &datastore.TransactionOptions{Attempts: 1})

		switch {
		case err == nil:
			return version, nil
		case errors.Is(err, errVersionTaken):
			version = next
		case errors.Is(err, datastore.ErrConcurrentTransaction):
			logging.Debugf(ctx, "contention saving %s version %d, re-checking", kind, version)
		case transient.Tag.In(err):
			logging.Warningf(ctx, "ambiguous outcome saving %s version %d: %s", kind, version, err)
			version++
		default:
			return 0, errors.Annotate(err, "save %s version %d", kind, version).Err()
		}
	}
	return 0, errors.Reason("save %s: gave up after %d attempts", kind, maxSaveAttempts).Tag(transient.Tag).Err()
}

var errVersionTaken = errors.New("version is taken")

// GetVersion loads the given version into e.
//
// Returns datastore.ErrNoSuchEntity if the version doesn't exist, including
// all versions below 1.
func GetVersion(ctx context.Context, e Entity, version int64) error {
	if version < 1 {
		return datastore.ErrNoSuchEntity
	}
	e.SetVersion(RootKey(ctx, e.VersionedKind()), version)
	switch err := datastore.Get(ctx, e); {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return datastore.ErrNoSuchEntity
	case err != nil:
		return errors.Annotate(err, "get %s version %d", e.VersionedKind(), version).Tag(transient.Tag).Err()
	}
	return nil
}

// GetLatest loads the latest version into e.
//
// Returns datastore.ErrNoSuchEntity if nothing was saved yet.
func GetLatest(ctx context.Context, e Entity) error {
	version, err := LatestVersion(ctx, e.VersionedKind())
	if err != nil {
		return err
	}
	return GetVersion(ctx, e, version)
}
