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

import "fmt"

const (
	defaultBucketCapacity    = 3
	defaultDirectoryCapacity = 16
	defaultDirectoryGrowth   = 1.5
)

// option provide an interface to do work on Set while it is being created.
type option[K comparable] interface {
	apply(s *Set[K])
}

type hashOption[K comparable] struct {
	hash func(key *K, seed uintptr) uintptr
}

func (op hashOption[K]) apply(s *Set[K]) {
	s.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Set[K].
// Linear hashing addresses rows using the low bits of the hash, so the hash
// function must mix well into its low bits.
func WithHash[K comparable](hash func(key *K, seed uintptr) uintptr) option[K] {
	return hashOption[K]{hash}
}

type bucketCapacityOption[K comparable] struct {
	n int
}

func (op bucketCapacityOption[K]) apply(s *Set[K]) {
	if op.n < 1 {
		panic(fmt.Sprintf("linhash: invalid bucket capacity %d", op.n))
	}
	s.store.capacity = op.n
}

// WithBucketCapacity is an option to specify the number of keys held by each
// bucket of a row's chain. Larger buckets mean longer linear scans but
// shorter chains and fewer splits. The default is 3.
func WithBucketCapacity[K comparable](n int) option[K] {
	return bucketCapacityOption[K]{n}
}

type directoryCapacityOption[K comparable] struct {
	n int
}

func (op directoryCapacityOption[K]) apply(s *Set[K]) {
	if op.n < initialRows {
		panic(fmt.Sprintf("linhash: invalid directory capacity %d", op.n))
	}
	s.dirCapacity = op.n
}

// WithDirectoryCapacity is an option to specify the number of rows the
// directory has room for before it first needs to grow. The default is 16.
func WithDirectoryCapacity[K comparable](n int) option[K] {
	return directoryCapacityOption[K]{n}
}

type directoryGrowthOption[K comparable] struct {
	factor float64
}

func (op directoryGrowthOption[K]) apply(s *Set[K]) {
	if !(op.factor > 1) {
		panic(fmt.Sprintf("linhash: invalid directory growth factor %v", op.factor))
	}
	s.dirGrowth = op.factor
}

// WithDirectoryGrowth is an option to specify the factor by which the
// directory capacity is multiplied when a split finds it full. The default
// is 1.5.
func WithDirectoryGrowth[K comparable](factor float64) option[K] {
	return directoryGrowthOption[K]{factor}
}

// Allocator specifies an interface for allocating and releasing the slot
// memory used by a Set. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots be
// freed then Set.Close must be called in order to ensure FreeSlots is
// called.
type Allocator[K comparable] interface {
	// AllocSlots should return a slice equivalent to make([]K, n).
	AllocSlots(n int) []K

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []K)
}

type defaultAllocator[K comparable] struct{}

func (defaultAllocator[K]) AllocSlots(n int) []K {
	return make([]K, n)
}

func (defaultAllocator[K]) FreeSlots(v []K) {
}

type allocatorOption[K comparable] struct {
	allocator Allocator[K]
}

func (op allocatorOption[K]) apply(s *Set[K]) {
	s.store.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Set[K].
func WithAllocator[K comparable](allocator Allocator[K]) option[K] {
	return allocatorOption[K]{allocator}
}
