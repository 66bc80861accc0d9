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

import "math/bits"

// Iterator is a forward cursor over the keys of a Set. Keys are produced in
// directory order: row by row, and within a row bucket by bucket along the
// chain.
//
// An Iterator is a position (row, bucket, slot) that is resolved against the
// set each time it is used. Any operation that can move keys (an Insert that
// splits a row, Erase of a key, Clear, Assign, AssignKeys, Swap, Close)
// invalidates outstanding iterators, and using one afterwards (including
// Done and Equal) panics. Calling Key or Next on the end iterator panics as
// well.
//
//	for it := s.Begin(); !it.Done(); it.Next() {
//	  fmt.Println(it.Key())
//	}
type Iterator[K comparable] struct {
	s      *Set[K]
	row    int
	bucket int32
	slot   int
	gen    uint64
}

func (s *Set[K]) iter(row int, b int32, slot int) Iterator[K] {
	return Iterator[K]{s: s, row: row, bucket: b, slot: slot, gen: s.gen}
}

// Begin returns an Iterator positioned at the first key of the set, or End()
// if the set is empty.
func (s *Set[K]) Begin() Iterator[K] {
	if s.used == 0 {
		return s.End()
	}
	it := s.iter(0, s.dir[0], 0)
	it.settle()
	return it
}

// End returns the Iterator positioned one past the last key of the set.
func (s *Set[K]) End() Iterator[K] {
	return s.iter(len(s.dir), noBucket, s.store.capacity)
}

// Key returns the key the iterator is positioned at.
func (it Iterator[K]) Key() K {
	it.check()
	if it.bucket == noBucket {
		panic("linhash: Key called on end iterator")
	}
	bs := &it.s.store
	return bs.slots[int(it.bucket)*bs.capacity+it.slot]
}

// Next advances the iterator to the following key, or to the end position
// after the last key.
func (it *Iterator[K]) Next() {
	it.check()
	if it.bucket == noBucket {
		panic("linhash: Next called on end iterator")
	}
	it.slot++
	it.settle()
}

// Done returns true if the iterator is at the end position.
func (it Iterator[K]) Done() bool {
	it.check()
	return it.bucket == noBucket
}

// Equal returns true if both iterators are positioned at the same place in
// the same set.
func (it Iterator[K]) Equal(other Iterator[K]) bool {
	it.check()
	other.check()
	return it.s == other.s && it.row == other.row &&
		it.bucket == other.bucket && it.slot == other.slot
}

// settle moves the iterator forward from a position that may be past the end
// of its bucket to the next filled slot, skipping empty buckets and rows.
func (it *Iterator[K]) settle() {
	bs := &it.s.store
	for it.slot == int(bs.buckets[it.bucket].used) {
		if next := bs.buckets[it.bucket].next; next != noBucket {
			it.bucket = next
		} else {
			it.row++
			if it.row == len(it.s.dir) {
				it.bucket = noBucket
				it.slot = bs.capacity
				return
			}
			it.bucket = it.s.dir[it.row]
		}
		it.slot = 0
	}
}

func (it Iterator[K]) check() {
	if it.s == nil {
		panic("linhash: use of zero Iterator")
	}
	if it.gen != it.s.gen {
		panic("linhash: use of invalidated Iterator")
	}
}

// All calls yield sequentially for each key present in the set. If yield
// returns false, iteration stops.
//
// The set may be modified by yield. A key present for the whole iteration is
// produced exactly once, and a key erased before it is reached is not
// produced. A key inserted during iteration may or may not be produced.
// Iteration stops if the set is cleared, closed, swapped or assigned.
//
//	for k := range s.All {
//	  fmt.Println(k)
//	}
func (s *Set[K]) All(yield func(key K) bool) {
	clears := s.clears
	// Rows are visited in directory order from a copy of their keys. A split
	// only moves keys from a row to the row it appends, so the keys of a row
	// appended during iteration were already produced iff it was split from
	// a row that has been visited, or from a row that itself was skipped.
	rows := len(s.dir)
	var skip []bool
	var keys []K
	for row := 0; row < len(s.dir); row++ {
		if row < len(skip) && skip[row] {
			continue
		}
		keys = keys[:0]
		s.store.chain(s.dir[row], func(b int32) bool {
			keys = append(keys, s.store.bucketSlots(b)...)
			return true
		})
		gen := s.gen
		for _, k := range keys {
			if s.gen != gen && !s.Contains(k) {
				continue
			}
			if !yield(k) || s.clears != clears {
				return
			}
			if n := len(s.dir); n > rows {
				skip = append(skip, make([]bool, n-len(skip))...)
				for j := rows; j < n; j++ {
					p := parentRow(j)
					skip[j] = p <= row || skip[p]
				}
				rows = n
			}
		}
	}
}

// parentRow returns the row which was split to create row.
func parentRow(row int) int {
	return row &^ (1 << (bits.Len(uint(row)) - 1))
}
