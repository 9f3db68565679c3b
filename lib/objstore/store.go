// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package objstore implements an in-process, thread-safe, eviction-bounded
// object store with rendezvous semantics: producers Put immutable blobs
// keyed by a fixed-width objectid.ID, and consumers Get or Wait on blobs
// that may not have arrived yet.
//
// The Store is deliberately small and self-contained: it consumes nothing
// from its environment beyond a monotonic clock (for timeouts) and
// identifiers generated elsewhere. Everything else — RPC plumbing, cluster
// membership, job tables — is out of scope; see spec.md §1.
package objstore

import (
	"context"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/alipay/ray/lib/blob"
	"github.com/alipay/ray/lib/containers"
	"github.com/alipay/ray/lib/objectid"
	"github.com/alipay/ray/lib/pool"
)

// deleteReason distinguishes an explicit Delete from an eviction for the
// purposes of Stats, without changing the deletion logic itself.
type deleteReason int

const (
	reasonDelete deleteReason = iota
	reasonEvict
)

// Store is the top-level object described by spec.md §4.1. A single mutex
// serializes all Entry Table, Pending-Get Registry, and Eviction Index
// mutations (spec.md §5 "Locking"); Get/Wait drop it while sleeping on a
// rendezvous request's own condition variable.
type Store struct {
	mu sync.Mutex

	maxBytes   int
	totalBytes int
	closed     bool

	entries   map[objectid.ID]*entry
	pending   *pendingRegistry
	evict     *evictionIndex
	entryPool *pool.Entries[entry]

	stats Stats
}

// New constructs a Store with the given byte budget. It is invalid
// (runtime-panic) to construct a Store with a non-positive maxBytes.
func New(maxBytes int) *Store {
	if maxBytes <= 0 {
		panic("objstore.New: maxBytes must be positive")
	}
	return &Store{
		maxBytes:  maxBytes,
		entries:   make(map[objectid.ID]*entry),
		pending:   newPendingRegistry(),
		evict:     newEvictionIndex(),
		entryPool: pool.NewEntries(func() *entry { return new(entry) }),
	}
}

// Put copies b into an owned entry under id. If id already names a
// resident entry, Put returns *AlreadyExistsError without modifying the
// store. If the store cannot fit b even after evicting every unreferenced
// entry, Put returns *OutOfMemoryError, also without modifying the store.
func (s *Store) Put(ctx context.Context, id objectid.ID, b blob.Blob) error {
	if b.Empty() {
		return &InvalidError{Reason: "blob has neither data nor metadata"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &ClosedError{}
	}
	if _, exists := s.entries[id]; exists {
		return &AlreadyExistsError{ID: id}
	}

	size := b.Size()
	if s.totalBytes+size > s.maxBytes {
		shortfall := s.totalBytes + size - s.maxBytes
		victims, freed := s.evict.selectVictims(shortfall)
		if freed < shortfall {
			return &OutOfMemoryError{ID: id, Size: size, MaxBytes: s.maxBytes}
		}
		for _, victim := range victims {
			dlog.Debugf(ctx, "objstore: evicting %v to make room for %v", victim, id)
			s.deleteLocked(victim, reasonEvict)
		}
	}

	e := s.entryPool.Get()
	*e = entry{id: id, blob: b.Clone()}
	s.entries[id] = e
	e.evictElem = s.evict.admit(id, size)
	s.totalBytes += size
	s.stats.Puts++

	for _, req := range s.pending.drain(id) {
		if req.mode == modeGet {
			// A single Get call may have named id more than once;
			// mint one independent pin per occurrence so releasing
			// one handle never unpins another (spec.md §4.4
			// "Duplicate ids").
			n := req.occurrences(id)
			handles := make([]*Handle, n)
			for i := range handles {
				handles[i] = s.pinLocked(e)
			}
			req.set(id, handles)
		} else {
			req.set(id, nil)
		}
	}
	return nil
}

// Get returns one handle per id, in the same order, waiting up to
// timeoutMs milliseconds (-1 forever, 0 = snapshot, >0 = a deadline) for any
// id not yet resident. Slots for ids that never arrived within the
// deadline are nil; this is not an error. ctx, if non-nil, composes with
// the deadline: a cancelled context ends the wait the same way an elapsed
// deadline does.
func (s *Store) Get(ctx context.Context, ids []objectid.ID, timeoutMs int64) ([]*Handle, error) {
	results, err := s.getOrWait(ctx, ids, timeoutMs, modeGet)
	if err != nil {
		return nil, err
	}
	out := make([]*Handle, len(results))
	for i, r := range results {
		out[i] = r.handle
	}
	return out, nil
}

// Wait returns one boolean per id, in the same order, reporting whether
// that id was resident by the deadline. numRequired must equal len(ids);
// any other value is rejected with *InvalidError. Wait never takes a
// handle on a resident object: it is observation only, and does not pin
// anything against eviction.
func (s *Store) Wait(ctx context.Context, ids []objectid.ID, numRequired int, timeoutMs int64) ([]bool, error) {
	if numRequired != len(ids) {
		return nil, &InvalidError{Reason: "numRequired must equal len(ids)"}
	}
	results, err := s.getOrWait(ctx, ids, timeoutMs, modeWait)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(results))
	for i, r := range results {
		out[i] = r.ok
	}
	return out, nil
}

// Delete removes the entries for ids unconditionally. Outstanding handles
// remain valid (they share the blob bytes, not the entry), but the ids
// will not resolve to new Gets. Pending rendezvous requests registered
// under these ids are not signalled; a waiter simply times out
// (spec.md §4.1 "Delete").
func (s *Store) Delete(ctx context.Context, ids []objectid.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.deleteLocked(id, reasonDelete)
	}
}

// Close evicts every resident entry and rejects future Puts. It does not
// wait for outstanding handles to be released, and does not signal pending
// rendezvous requests, for the same reason Delete doesn't (spec.md §6
// "teardown evicts everything").
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id := range s.entries {
		s.deleteLocked(id, reasonDelete)
	}
}

// Stats reports a point-in-time snapshot of store-wide counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.ResidentBytes = s.totalBytes
	st.MaxBytes = s.maxBytes
	st.EntryCount = len(s.entries)
	return st
}

// DumpKeys returns every resident id, sorted, for debugging.
func (s *Store) DumpKeys() []objectid.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containers.SortedKeys(s.entries)
}

type deliverResult struct {
	ok     bool
	handle *Handle
}

// getOrWait implements the shared body of Get and Wait (spec.md §4.1):
// drain what is already resident under the lock, then — if unsatisfied —
// register a rendezvous request and release the lock to sleep until either
// every missing id is supplied or the deadline expires.
func (s *Store) getOrWait(ctx context.Context, ids []objectid.ID, timeoutMs int64, mode requestMode) ([]deliverResult, error) {
	results := make([]deliverResult, len(ids))

	s.mu.Lock()
	if mode == modeGet {
		s.stats.Gets++
	} else {
		s.stats.Waits++
	}

	// missingIDs keeps one entry per not-yet-resident occurrence, including
	// duplicates: newRequest needs the duplicate count per id so that, once
	// Put delivers, each occurrence gets its own independent pin rather
	// than all occurrences sharing a single handle (spec.md §4.4 "Duplicate
	// ids").
	var missingIDs []objectid.ID
	for i, id := range ids {
		e, ok := s.entries[id]
		if !ok {
			missingIDs = append(missingIDs, id)
			continue
		}
		if mode == modeGet {
			results[i] = deliverResult{ok: true, handle: s.pinLocked(e)}
		} else {
			results[i] = deliverResult{ok: true}
		}
	}

	if len(missingIDs) == 0 || timeoutMs == 0 {
		s.mu.Unlock()
		return results, nil
	}

	req := newRequest(missingIDs, mode)
	distinctMissing := req.distinctIDs()
	s.pending.register(distinctMissing, req)
	s.mu.Unlock()

	req.wait(ctx, timeoutMs)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		if results[i].ok {
			continue
		}
		if h, ok := req.get(id); ok {
			results[i] = deliverResult{ok: true, handle: h}
		}
	}
	s.pending.deregister(distinctMissing, req)
	return results, nil
}

// pinLocked takes a handle against e, incrementing its live-handle count
// and, if it was unreferenced, unlinking it from the eviction index
// (spec.md §4.2 "Removal from the head"). Must be called with s.mu held.
func (s *Store) pinLocked(e *entry) *Handle {
	if e.refcount == 0 {
		s.evict.remove(e.id)
		e.evictElem = nil
	}
	e.refcount++
	return newHandle(s, e.id, e.blob.Data, e.blob.Metadata)
}

// release is the sole entry point for a Handle's refcount decrement
// (spec.md §4.3, §9). It takes the Store lock itself, since it runs on
// whatever goroutine happens to drop the last reference to a Handle.
func (s *Store) release(id objectid.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		// Entry was deleted while this handle was outstanding; the
		// handle's bytes remain a valid copy, there is nothing left
		// to account for.
		return
	}
	if e.refcount <= 0 {
		panic("objstore: Release called on an entry with non-positive refcount")
	}
	e.refcount--
	if e.refcount == 0 {
		e.evictElem = s.evict.admit(id, e.blob.Size())
	}
}

// deleteLocked removes id from the Entry Table and the eviction index,
// unconditionally. Must be called with s.mu held.
func (s *Store) deleteLocked(id objectid.ID, reason deleteReason) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	delete(s.entries, id)
	if e.evictElem != nil {
		s.evict.remove(id)
		e.evictElem = nil
	}
	s.totalBytes -= e.blob.Size()
	switch reason {
	case reasonEvict:
		s.stats.Evictions++
	default:
		s.stats.Deletes++
	}
	s.entryPool.Put(e)
}
