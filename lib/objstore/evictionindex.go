// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package objstore

import (
	"github.com/alipay/ray/lib/containers"
	"github.com/alipay/ray/lib/objectid"
)

// evictionRecord is the payload stored in the eviction index's linked list:
// just enough to account for bytes and find the victim's id without
// consulting the Entry Table.  It is grounded on the EvictionCache in
// original_source's memory_store.h
// (`typedef std::list<std::pair<ObjectID, uint64_t>> ItemList`), adapted
// onto containers.LinkedList instead of std::list.
type evictionRecord struct {
	id   objectid.ID
	size int
}

// evictionIndex is strict LRU over unreferenced resident entries
// (spec.md §3 "Eviction Index", §4.2).  Most-recently-admitted is at the
// head (Newest); victims are chosen from the tail (Oldest).  It is not
// itself safe for concurrent use — every method is called with the Store
// lock held, exactly as the Store lock serializes the teacher's
// LinkedList-backed caches.
type evictionIndex struct {
	list  containers.LinkedList[evictionRecord]
	byID  map[objectid.ID]*containers.LinkedListEntry[evictionRecord]
	bytes int
}

func newEvictionIndex() *evictionIndex {
	return &evictionIndex{
		byID: make(map[objectid.ID]*containers.LinkedListEntry[evictionRecord]),
	}
}

// admit links id at the head (newest) of the index.  It is invalid to admit
// an id that is already present.
func (x *evictionIndex) admit(id objectid.ID, size int) *containers.LinkedListEntry[evictionRecord] {
	elem := &containers.LinkedListEntry[evictionRecord]{Value: evictionRecord{id: id, size: size}}
	x.list.Store(elem)
	x.byID[id] = elem
	x.bytes += size
	return elem
}

// remove unlinks id from the index.  It is a no-op if id is not present
// (e.g. because the entry is currently pinned).
func (x *evictionIndex) remove(id objectid.ID) {
	elem, ok := x.byID[id]
	if !ok {
		return
	}
	delete(x.byID, id)
	x.list.Delete(elem)
	x.bytes -= elem.Value.size
}

func (x *evictionIndex) has(id objectid.ID) bool {
	_, ok := x.byID[id]
	return ok
}

func (x *evictionIndex) len() int {
	return x.list.Len
}

// selectVictims walks from the tail (oldest) collecting ids until the
// cumulative size reaches need, or the index is exhausted.  It does not
// mutate the index; the caller deletes the returned ids from the Entry
// Table (which in turn calls remove) once it has decided to actually evict.
func (x *evictionIndex) selectVictims(need int) (ids []objectid.ID, freed int) {
	for elem := x.list.Oldest; elem != nil && freed < need; elem = elem.Newer {
		ids = append(ids, elem.Value.id)
		freed += elem.Value.size
	}
	return ids, freed
}
