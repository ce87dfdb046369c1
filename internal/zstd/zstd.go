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

// Package zstd compresses datastore blobs (try-job results, settings).
package zstd

import (
	"github.com/klauspost/compress/zstd"
)

// Only EncodeAll and DecodeAll are used, which are safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	if encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic(err)
	}
	if decoder, err = zstd.NewReader(nil); err != nil {
		panic(err)
	}
}

// Compress encodes src and appends it to dst.
func Compress(src, dst []byte) []byte {
	return encoder.EncodeAll(src, dst)
}

// Decompress decodes input and appends it to dst.
func Decompress(input, dst []byte) ([]byte, error) {
	return decoder.DecodeAll(input, dst)
}
