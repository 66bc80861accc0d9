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
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(capacity int) *bucketStore[int] {
	bs := &bucketStore[int]{
		capacity:  capacity,
		allocator: defaultAllocator[int]{},
	}
	bs.init()
	return bs
}

func chainKeys(bs *bucketStore[int], head int32) [][]int {
	var r [][]int
	bs.chain(head, func(b int32) bool {
		r = append(r, append([]int{}, bs.bucketSlots(b)...))
		return true
	})
	return r
}

func TestStorePush(t *testing.T) {
	bs := newTestStore(2)
	head := bs.alloc()

	var extended []bool
	for i := 1; i <= 5; i++ {
		_, _, ext := bs.push(head, i)
		extended = append(extended, ext)
	}
	require.Equal(t, []bool{false, false, true, false, true}, extended)
	require.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chainKeys(bs, head))

	b, slot, ok := bs.search(head, 4)
	require.True(t, ok)
	require.EqualValues(t, 1, slot)
	require.EqualValues(t, 4, bs.slots[int(b)*bs.capacity+slot])

	_, _, ok = bs.search(head, 6)
	require.False(t, ok)
}

func TestStoreRemove(t *testing.T) {
	bs := newTestStore(3)
	head := bs.alloc()
	for i := 1; i <= 4; i++ {
		bs.push(head, i)
	}

	b, slot, ok := bs.search(head, 1)
	require.True(t, ok)
	bs.remove(b, slot)
	require.Equal(t, [][]int{{2, 3}, {4}}, chainKeys(bs, head))
	// The vacated slot is zeroed.
	require.EqualValues(t, 0, bs.slots[int(head)*bs.capacity+2])

	// Emptied buckets stay linked and are filled again before the chain is
	// extended.
	b, slot, _ = bs.search(head, 4)
	bs.remove(b, slot)
	require.Equal(t, [][]int{{2, 3}, {}}, chainKeys(bs, head))
	_, _, ext := bs.push(head, 5)
	require.False(t, ext)
	require.Equal(t, [][]int{{2, 3}, {5}}, chainKeys(bs, head))
}

func TestStoreReset(t *testing.T) {
	bs := newTestStore(1)
	head := bs.alloc()
	for i := 1; i <= 4; i++ {
		bs.push(head, i)
	}
	require.EqualValues(t, 4, len(bs.buckets))

	bs.reset(head)
	require.Equal(t, [][]int{{}}, chainKeys(bs, head))
	// The released slots are zeroed.
	for _, k := range bs.slots {
		require.EqualValues(t, 0, k)
	}

	// The 3 released buckets are reused before the store grows.
	for i := 1; i <= 4; i++ {
		bs.push(head, i)
	}
	require.EqualValues(t, 4, len(bs.buckets))
	require.EqualValues(t, noBucket, bs.free)
	require.Equal(t, [][]int{{1}, {2}, {3}, {4}}, chainKeys(bs, head))

	bs.push(head, 5)
	require.EqualValues(t, 5, len(bs.buckets))
}

func TestStoreClone(t *testing.T) {
	bs := newTestStore(2)
	head := bs.alloc()
	for i := 1; i <= 5; i++ {
		bs.push(head, i)
	}

	c := bs.clone()
	require.Equal(t, chainKeys(bs, head), chainKeys(&c, head))

	c.push(head, 6)
	require.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chainKeys(bs, head))
	require.Equal(t, [][]int{{1, 2}, {3, 4}, {5, 6}}, chainKeys(&c, head))
}
