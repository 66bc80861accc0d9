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

// noBucket terminates a chain. It is also the bucket of the end iterator.
const noBucket = -1

// bucket is the metadata for a fixed capacity run of slots in the store. The
// slots themselves live in bucketStore.slots at [i*capacity, (i+1)*capacity).
type bucket struct {
	// The number of filled slots. Slots [0, used) are filled and there are
	// no holes.
	used int32
	// next is the index of the following bucket in the chain, or noBucket.
	// For a bucket on the free list it links the free list instead.
	next int32
}

// bucketStore holds every bucket of a Set. Buckets are addressed by index
// rather than pointer so that the chains survive growth of the underlying
// arrays and ownership is a matter of which chain an index is linked into.
//
// Buckets released by a split are pushed onto a free list and handed out
// again before the store grows.
type bucketStore[K comparable] struct {
	// The number of slots per bucket.
	capacity int
	buckets  []bucket
	// slots is len(buckets)*capacity in length. The backing array comes from
	// the allocator and may have spare capacity beyond that.
	slots     []K
	free      int32
	allocator Allocator[K]
}

func (bs *bucketStore[K]) init() {
	bs.buckets = nil
	bs.slots = nil
	bs.free = noBucket
}

// alloc returns the index of an empty bucket with no successor.
func (bs *bucketStore[K]) alloc() int32 {
	if i := bs.free; i != noBucket {
		b := &bs.buckets[i]
		bs.free = b.next
		*b = bucket{next: noBucket}
		return i
	}

	i := int32(len(bs.buckets))
	bs.buckets = append(bs.buckets, bucket{next: noBucket})
	n := len(bs.buckets) * bs.capacity
	if n > cap(bs.slots) {
		bs.growSlots(n)
	}
	bs.slots = bs.slots[:n]
	return i
}

// growSlots replaces the slot array with one that has room for at least n
// slots, doubling the old size.
func (bs *bucketStore[K]) growSlots(n int) {
	newCap := 2 * cap(bs.slots)
	if newCap < n {
		newCap = n
	}
	if debug {
		fmt.Printf("store: slots=%d->%d\n", cap(bs.slots), newCap)
	}
	old := bs.slots
	bs.slots = bs.allocator.AllocSlots(newCap)[:len(old)]
	copy(bs.slots, old)
	if cap(old) > 0 {
		bs.allocator.FreeSlots(old[:cap(old)])
	}
}

// release pushes every bucket of the chain starting at i onto the free list,
// zeroing their slots so the keys can be collected.
func (bs *bucketStore[K]) release(i int32) {
	for i != noBucket {
		b := &bs.buckets[i]
		clear(bs.bucketSlots(i))
		next := b.next
		b.used = 0
		b.next = bs.free
		bs.free = i
		i = next
	}
}

// reset empties the bucket at i and releases the remainder of its chain.
func (bs *bucketStore[K]) reset(i int32) {
	b := &bs.buckets[i]
	bs.release(b.next)
	clear(bs.bucketSlots(i))
	b.used = 0
	b.next = noBucket
}

// close hands the slot array back to the allocator. The store is unusable
// until init is called again.
func (bs *bucketStore[K]) close() {
	if cap(bs.slots) > 0 {
		bs.allocator.FreeSlots(bs.slots[:cap(bs.slots)])
	}
	bs.init()
}

// bucketSlots returns the filled slots of the bucket at i.
func (bs *bucketStore[K]) bucketSlots(i int32) []K {
	start := int(i) * bs.capacity
	return bs.slots[start : start+int(bs.buckets[i].used)]
}

// tail returns the last bucket of the chain starting at i.
func (bs *bucketStore[K]) tail(i int32) int32 {
	for {
		next := bs.buckets[i].next
		if next == noBucket {
			return i
		}
		i = next
	}
}

// push stores key at the end of the chain starting at head, linking a new
// bucket onto the chain if the last one is full. It returns the bucket and
// slot the key landed in and whether the chain was extended.
func (bs *bucketStore[K]) push(head int32, key K) (b int32, slot int, extended bool) {
	b = bs.tail(head)
	if int(bs.buckets[b].used) == bs.capacity {
		// alloc may grow bs.buckets so the link is made through the index.
		n := bs.alloc()
		bs.buckets[b].next = n
		b = n
		extended = true
	}
	t := &bs.buckets[b]
	slot = int(t.used)
	bs.slots[int(b)*bs.capacity+slot] = key
	t.used++
	return b, slot, extended
}

// remove deletes the key at slot of bucket b, shifting the later slots of
// the bucket down by one. The bucket stays in its chain even if it becomes
// empty.
func (bs *bucketStore[K]) remove(b int32, slot int) {
	s := bs.bucketSlots(b)
	copy(s[slot:], s[slot+1:])
	var zero K
	s[len(s)-1] = zero
	bs.buckets[b].used--
}

// search scans the chain starting at head for key.
func (bs *bucketStore[K]) search(head int32, key K) (b int32, slot int, ok bool) {
	for b = head; b != noBucket; b = bs.buckets[b].next {
		for i, k := range bs.bucketSlots(b) {
			if k == key {
				return b, i, true
			}
		}
	}
	return noBucket, 0, false
}

// chain calls yield for each bucket of the chain starting at head. If yield
// returns false, iteration stops.
func (bs *bucketStore[K]) chain(head int32, yield func(b int32) bool) bool {
	for b := head; b != noBucket; b = bs.buckets[b].next {
		if !yield(b) {
			return false
		}
	}
	return true
}

// clone returns a deep copy of the store using the same allocator.
func (bs *bucketStore[K]) clone() bucketStore[K] {
	c := bucketStore[K]{
		capacity:  bs.capacity,
		buckets:   append([]bucket(nil), bs.buckets...),
		free:      bs.free,
		allocator: bs.allocator,
	}
	if len(bs.slots) > 0 {
		c.slots = c.allocator.AllocSlots(len(bs.slots))
		copy(c.slots, bs.slots)
	}
	return c
}
