// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package linhash

import (
	"hash/maphash"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

type hashFn[K comparable] func(key *K, seed uintptr) uintptr

// processSeed keys the default hasher. Per-Set variation comes from the
// seed argument.
var processSeed = maphash.MakeSeed()

// defaultHash hashes any comparable key the same way the builtin map does,
// using hash/maphash.
func defaultHash[K comparable](key *K, seed uintptr) uintptr {
	return uintptr(maphash.Comparable(processSeed, *key)) ^ seed
}

// HashString is a hash function for string keys backed by xxhash. It can be
// passed to WithHash.
func HashString(key *string, seed uintptr) uintptr {
	return uintptr(xxhash.Sum64String(*key) ^ uint64(seed))
}

func makeSeed() uintptr {
	return uintptr(rand.Uint64())
}
