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
	"encoding/json"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/gae/service/datastore"

	"go.chromium.org/findit/internal/zstd"
)

// Ensure the blob types implement datastore.PropertyConverter.
var (
	_ datastore.PropertyConverter = &TryJobResults{}
	_ datastore.PropertyConverter = &FailureResultMap{}
	_ datastore.PropertyConverter = &TryJobParams{}
)

// TryJobResults is stored as a single zstd compressed JSON blob.
type TryJobResults []*TryJobResult

// ToProperty implements datastore.PropertyConverter.
func (r *TryJobResults) ToProperty() (datastore.Property, error) {
	return jsonProperty(*r, true)
}

// FromProperty implements datastore.PropertyConverter.
func (r *TryJobResults) FromProperty(p datastore.Property) error {
	*r = nil
	return fromJSONProperty(p, r, true)
}

// ToProperty implements datastore.PropertyConverter.
func (m *FailureResultMap) ToProperty() (datastore.Property, error) {
	return jsonProperty(*m, false)
}

// FromProperty implements datastore.PropertyConverter.
func (m *FailureResultMap) FromProperty(p datastore.Property) error {
	*m = nil
	return fromJSONProperty(p, m, false)
}

// ToProperty implements datastore.PropertyConverter.
func (tp *TryJobParams) ToProperty() (datastore.Property, error) {
	return jsonProperty(tp, false)
}

// FromProperty implements datastore.PropertyConverter.
func (tp *TryJobParams) FromProperty(p datastore.Property) error {
	*tp = TryJobParams{}
	return fromJSONProperty(p, tp, false)
}

func jsonProperty(v any, compress bool) (datastore.Property, error) {
	p := datastore.Property{}
	blob, err := json.Marshal(v)
	if err != nil {
		return p, errors.Annotate(err, "failed to marshal JSON").Err()
	}
	if compress {
		blob = zstd.Compress(blob, nil)
	}
	// noindex is not respected in tags.
	return p, p.SetValue(blob, datastore.NoIndex)
}

func fromJSONProperty(p datastore.Property, v any, compressed bool) error {
	raw, err := p.Project(datastore.PTBytes)
	if err != nil {
		return err
	}
	blob := raw.([]byte)
	if len(blob) == 0 {
		return nil
	}
	if compressed {
		if blob, err = zstd.Decompress(blob, nil); err != nil {
			return errors.Annotate(err, "failed to decompress").Err()
		}
	}
	if err := json.Unmarshal(blob, v); err != nil {
		return errors.Annotate(err, "failed to unmarshal JSON").Err()
	}
	return nil
}
