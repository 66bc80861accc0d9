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

// package linhash is a Go implementation of a set backed by linear hashing
// as described in Litwin's "Linear Hashing: A New Tool for File and Table
// Addressing" (VLDB 1980). See also:
// https://en.wikipedia.org/wiki/Linear_hashing.
//
// # Linear Hashing
//
// A linear hash table grows one row at a time. Rather than rehashing every
// key into a table twice the size when the table gets crowded, it splits a
// single row into two, so the cost of growth is spread evenly across
// inserts and there is never a pause proportional to the size of the table.
//
// The table is a directory of rows. Each row is a chain of fixed capacity
// buckets: a head bucket plus as many overflow buckets as the row needs. The
// hashing state is a round r and a split pointer s, with the directory always
// holding 2^r+s rows. A key is addressed by taking hash(key) mod 2^r. Rows
// below s have already been split during this round, so if that address is
// below s the key is instead addressed by hash(key) mod 2^(r+1), which picks
// either the original row or its split image at index address+2^r:
//
//	 round=2 split=1
//	+-----+
//	|  0  | --> [ 8  16 _ ]                 h mod 8 (split this round)
//	+-----+
//	|  1  | --> [ 1  5  9 ] --> [ 13 _ _ ]  h mod 4
//	+-----+
//	|  2  | --> [ 2  6  _ ]                 h mod 4
//	+-----+
//	|  3  | --> [ 3  7  _ ]                 h mod 4
//	+-----+
//	|  4  | --> [ 4  12 _ ]                 h mod 8 (split image of row 0)
//	+-----+
//
// Whenever an insert has to link a new bucket onto a chain, the row at the
// split pointer is split, no matter which row overflowed. Its keys are
// collected, the row is emptied, a new row is appended to the directory, the
// split pointer advances, and the keys are reinserted using the new state.
// Once the split pointer reaches 2^r every row has been split, the table
// has doubled, the split pointer wraps to 0 and the round advances.
// Reinsertion never triggers a further split, so each overflow costs exactly
// one split. Rows that overflow before their turn simply grow longer chains
// until the split pointer reaches them.
//
// # Implementation
//
// Buckets live in an index-addressed store rather than being individually
// allocated, and a chain is a linked list of indexes into that store.
// Buckets discarded by a split go onto a free list for reuse. Deleting a key
// shifts the rest of its bucket down and never unlinks a bucket, so chains
// never shrink and the split schedule is a function of the insert history
// alone.
//
// The directory is a slice whose capacity grows by a configurable factor
// (1.5 by default) when a split finds it full.
package linhash

import (
	"fmt"
	"io"
	"iter"
	"math"
	"slices"
	"strings"
)

const (
	debug = false

	// A new Set starts out with 2 rows in round 1 which satisfies
	// len(dir) == 2^round + split.
	initialRows  = 2
	initialRound = 1
)

// Set is an unordered set of unique keys with Insert, Find, Erase, and All
// operations, backed by linear hashing. By default, a Set[K] uses the same
// hash function as Go's builtin map[K]V, though a different hash function
// can be specified using the WithHash option.
//
// A Set is NOT goroutine-safe.
type Set[K comparable] struct {
	hash hashFn[K]
	seed uintptr
	// The storage for every bucket of every row.
	store bucketStore[K]
	// The directory of row heads. len(dir) is the number of rows in use and
	// cap(dir) the number of rows there is room for.
	dir []int32
	// Initial capacity and growth factor of the directory.
	dirCapacity int
	dirGrowth   float64
	// The number of keys in the set.
	used int
	// round is the hashing level. Rows at or above split are addressed with
	// hash mod 2^round, rows below it with hash mod 2^(round+1).
	round uint
	// split is the index of the next row to split. 0 <= split < 2^round.
	split int
	// gen is incremented by every operation which can move a key or change
	// the set of keys out from under an Iterator.
	gen uint64
	// clears is incremented whenever the keys of the set are replaced
	// wholesale: by Clear, Close, Swap and the Assign variants.
	clears uint64
	// scratch holds the keys of a row while it is being split.
	scratch []K
}

// New constructs a new empty Set.
func New[K comparable](options ...option[K]) *Set[K] {
	s := &Set[K]{
		hash: defaultHash[K],
		seed: makeSeed(),
		store: bucketStore[K]{
			capacity:  defaultBucketCapacity,
			allocator: defaultAllocator[K]{},
		},
		dirCapacity: defaultDirectoryCapacity,
		dirGrowth:   defaultDirectoryGrowth,
	}

	for _, op := range options {
		op.apply(s)
	}

	s.init()
	s.checkInvariants()
	return s
}

// FromSeq constructs a new Set holding the distinct keys produced by seq.
func FromSeq[K comparable](seq iter.Seq[K], options ...option[K]) *Set[K] {
	s := New[K](options...)
	s.InsertSeq(seq)
	return s
}

// Of constructs a new Set using the default options holding the distinct
// keys given.
func Of[K comparable](keys ...K) *Set[K] {
	return FromSeq(slices.Values(keys))
}

func (s *Set[K]) init() {
	s.store.init()
	s.dir = make([]int32, initialRows, s.dirCapacity)
	for i := range s.dir {
		s.dir[i] = s.store.alloc()
	}
	s.used = 0
	s.round = initialRound
	s.split = 0
	s.gen++
	s.clears++
}

// emptyLike returns a new empty Set configured the same way as s.
func (s *Set[K]) emptyLike() *Set[K] {
	e := &Set[K]{
		hash: s.hash,
		seed: s.seed,
		store: bucketStore[K]{
			capacity:  s.store.capacity,
			allocator: s.store.allocator,
		},
		dirCapacity: s.dirCapacity,
		dirGrowth:   s.dirGrowth,
	}
	e.init()
	return e
}

// Clone returns a copy of s that shares no memory with it.
func (s *Set[K]) Clone() *Set[K] {
	c := *s
	c.store = s.store.clone()
	c.dir = append(make([]int32, 0, cap(s.dir)), s.dir...)
	c.scratch = nil
	return &c
}

// Close closes the set, releasing any memory back to its configured
// allocator. It is unnecessary to close a set using the default allocator.
// It is invalid to use a Set after it has been closed, though Close itself
// is idempotent.
func (s *Set[K]) Close() {
	s.store.close()
	s.dir = nil
	s.used = 0
	s.scratch = nil
	s.gen++
	s.clears++
}

// Insert adds key to the set if it is not already present. It returns an
// Iterator positioned at key and whether key was inserted.
func (s *Set[K]) Insert(key K) (Iterator[K], bool) {
	row, b, slot, ok := s.lookup(key)
	if ok {
		return s.iter(row, b, slot), false
	}

	b, slot, extended := s.store.push(s.dir[row], key)
	s.used++
	if debug {
		fmt.Printf("insert(%v): row=%d bucket=%d slot=%d extended=%t\n",
			key, row, b, slot, extended)
	}
	if extended {
		// The row needed another bucket. Split the row at the split pointer,
		// which may or may not be the row key went into.
		s.splitRow()
		s.checkInvariants()
		return s.Find(key), true
	}
	s.checkInvariants()
	return s.iter(row, b, slot), true
}

// InsertSeq inserts every key produced by seq.
func (s *Set[K]) InsertSeq(seq iter.Seq[K]) {
	for k := range seq {
		s.Insert(k)
	}
}

// InsertKeys inserts every key given.
func (s *Set[K]) InsertKeys(keys ...K) {
	s.InsertSeq(slices.Values(keys))
}

// Erase deletes key from the set, returning the number of keys deleted
// (0 or 1). Deleting a key invalidates outstanding iterators.
func (s *Set[K]) Erase(key K) int {
	_, b, slot, ok := s.lookup(key)
	if !ok {
		return 0
	}
	s.store.remove(b, slot)
	s.used--
	s.gen++
	if debug {
		fmt.Printf("erase(%v): bucket=%d slot=%d used=%d\n", key, b, slot, s.used)
	}
	s.checkInvariants()
	return 1
}

// Find returns an Iterator positioned at key, or End() if key is not in the
// set.
func (s *Set[K]) Find(key K) Iterator[K] {
	row, b, slot, ok := s.lookup(key)
	if !ok {
		return s.End()
	}
	return s.iter(row, b, slot)
}

// Count returns the number of times key is in the set: 0 or 1.
func (s *Set[K]) Count(key K) int {
	if s.Contains(key) {
		return 1
	}
	return 0
}

// Contains returns true if key is in the set.
func (s *Set[K]) Contains(key K) bool {
	_, _, _, ok := s.lookup(key)
	return ok
}

// Len returns the number of keys in the set.
func (s *Set[K]) Len() int {
	return s.used
}

// Empty returns true if the set holds no keys.
func (s *Set[K]) Empty() bool {
	return s.used == 0
}

// Clear deletes every key, returning the set to the state of a newly
// constructed one with the same options. Memory is released back to the
// configured allocator.
func (s *Set[K]) Clear() {
	s.store.close()
	s.scratch = nil
	s.init()
	s.checkInvariants()
}

// Assign replaces the contents of s with the keys of other. The options of
// s, including its hash function, are kept.
func (s *Set[K]) Assign(other *Set[K]) {
	if s == other {
		return
	}
	s.Clear()
	for k := range other.All {
		s.Insert(k)
	}
}

// AssignKeys replaces the contents of s with the distinct keys given.
func (s *Set[K]) AssignKeys(keys ...K) {
	tmp := s.emptyLike()
	tmp.InsertKeys(keys...)
	s.Swap(tmp)
	tmp.Close()
}

// Swap exchanges the contents and options of s and other. Iterators on
// either set are invalidated.
func (s *Set[K]) Swap(other *Set[K]) {
	if s == other {
		return
	}
	*s, *other = *other, *s
	gen := max(s.gen, other.gen) + 1
	s.gen, other.gen = gen, gen
	clears := max(s.clears, other.clears) + 1
	s.clears, other.clears = clears, clears
}

// Equal returns true if s and other hold the same keys, irrespective of how
// the keys are laid out in either set.
func (s *Set[K]) Equal(other *Set[K]) bool {
	if s == other {
		return true
	}
	if s.used != other.used {
		return false
	}
	for k := range s.All {
		if !other.Contains(k) {
			return false
		}
	}
	return true
}

// Dump writes every key in the set to w, each followed by a space.
func (s *Set[K]) Dump(w io.Writer) error {
	for k := range s.All {
		if _, err := fmt.Fprintf(w, "%v ", k); err != nil {
			return err
		}
	}
	return nil
}

// lookup returns the row key is addressed to and, if key is present, the
// bucket and slot holding it. It is the single search routine used by
// Insert, Erase, Find, and Contains.
func (s *Set[K]) lookup(key K) (row int, b int32, slot int, ok bool) {
	row = s.address(s.hash(&key, s.seed))
	b, slot, ok = s.store.search(s.dir[row], key)
	return row, b, slot, ok
}

// address returns the row for hash value h under the current round and
// split pointer.
func (s *Set[K]) address(h uintptr) int {
	a := h & (1<<s.round - 1)
	if a < uintptr(s.split) {
		// Row a has already been split this round so its keys were
		// redistributed between a and a+2^round using one more bit.
		a = h & (1<<(s.round+1) - 1)
	}
	return int(a)
}

// splitRow splits the row at the split pointer into itself and a new row
// appended to the directory, then advances the split pointer. The keys of
// the split row are reinserted without splitting, even if that requires
// extending a chain.
func (s *Set[K]) splitRow() {
	if len(s.dir) == cap(s.dir) {
		s.growDirectory()
	}
	s.dir = append(s.dir, s.store.alloc())

	head := s.dir[s.split]
	keys := s.scratch[:0]
	s.store.chain(head, func(b int32) bool {
		keys = append(keys, s.store.bucketSlots(b)...)
		return true
	})
	s.store.reset(head)

	if debug {
		fmt.Printf("split: row=%d keys=%d round=%d rows=%d/%d\n",
			s.split, len(keys), s.round, len(s.dir), cap(s.dir))
	}

	s.split++
	if s.split == 1<<s.round {
		// Every row of this round has been split and the table has doubled.
		s.split = 0
		s.round++
	}

	for i := range keys {
		row := s.address(s.hash(&keys[i], s.seed))
		s.store.push(s.dir[row], keys[i])
	}
	clear(keys)
	s.scratch = keys[:0]
	s.gen++
}

// growDirectory reallocates the directory with room for more rows. Only the
// row heads are copied; the buckets are untouched.
func (s *Set[K]) growDirectory() {
	n := int(math.Ceil(float64(cap(s.dir)) * s.dirGrowth))
	if n <= cap(s.dir) {
		n = cap(s.dir) + 1
	}
	if debug {
		fmt.Printf("grow: rows=%d->%d\n", cap(s.dir), n)
	}
	dir := make([]int32, len(s.dir), n)
	copy(dir, s.dir)
	s.dir = dir
}

// bucketCount returns the number of buckets linked into rows.
func (s *Set[K]) bucketCount() int {
	var n int
	for _, head := range s.dir {
		s.store.chain(head, func(int32) bool {
			n++
			return true
		})
	}
	return n
}

func (s *Set[K]) checkInvariants() {
	if invariants {
		if want := 1<<s.round + s.split; len(s.dir) != want {
			panic(fmt.Sprintf("invariant failed: %d rows, but round=%d split=%d requires %d\n%s",
				len(s.dir), s.round, s.split, want, s.debugString()))
		}
		if s.split < 0 || s.split >= 1<<s.round {
			panic(fmt.Sprintf("invariant failed: split=%d out of range for round=%d\n%s",
				s.split, s.round, s.debugString()))
		}

		// Every key must be found in the row it is addressed to, and the
		// bucket counts must add up to the set's count.
		var used int
		for row, head := range s.dir {
			for b := head; b != noBucket; b = s.store.buckets[b].next {
				n := int(s.store.buckets[b].used)
				if n > s.store.capacity {
					panic(fmt.Sprintf("invariant failed: bucket(%d) has %d keys, but capacity is %d\n%s",
						b, n, s.store.capacity, s.debugString()))
				}
				used += n
				for _, k := range s.store.bucketSlots(b) {
					if r := s.address(s.hash(&k, s.seed)); r != row {
						panic(fmt.Sprintf("invariant failed: %v found in row %d, but is addressed to row %d\n%s",
							k, row, r, s.debugString()))
					}
				}
			}
		}
		if used != s.used {
			panic(fmt.Sprintf("invariant failed: found %d keys, but used count is %d\n%s",
				used, s.used, s.debugString()))
		}
	}
}

func (s *Set[K]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "round=%d  split=%d  rows=%d/%d  used=%d\n",
		s.round, s.split, len(s.dir), cap(s.dir), s.used)
	for row, head := range s.dir {
		fmt.Fprintf(&buf, "  %4d:", row)
		for b := head; b != noBucket; b = s.store.buckets[b].next {
			fmt.Fprintf(&buf, " %d%v", b, s.store.bucketSlots(b))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
