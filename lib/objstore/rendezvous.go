// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package objstore

import (
	"context"
	"sync"
	"time"

	"github.com/alipay/ray/lib/objectid"
)

// requestMode is the GET/WAIT tag from spec.md §4.3/§9: kept as a field on
// a single request type rather than as two types, since delivery differs
// only in whether it pins (increments refcount) or merely observes.
type requestMode int

const (
	modeGet requestMode = iota
	modeWait
)

// slot records, for one awaited id, how many occurrences of that id the
// owning request's original id list contained, whether delivery has
// happened yet, and (in GET mode only) one independently-pinned handle per
// occurrence, queued in delivery order. A duplicated id in a single Get
// call must mint as many independent pins as it has occurrences — exactly
// as the already-resident path does — so that releasing one occurrence's
// handle never unpins another (spec.md §4.4 "Duplicate ids in the original
// caller input").
type slot struct {
	occurrences int
	filled      bool
	queue       []*Handle
}

// request is a Rendezvous Request (spec.md §3, §4.4): a synchronization
// object that aggregates the ids a single Get/Wait call is still missing,
// and completes when all of them have been delivered or a deadline elapses.
// Its mutex and condition variable are disjoint from the Store's lock
// (spec.md §5 "Shared-resource policy"). Put calls set, and the waiter calls
// get, while holding the Store lock, so both locks are then held at once;
// they are always taken in Store-then-request order, and nothing holding the
// request's mutex ever acquires the Store lock, so no lock cycle can form.
type request struct {
	mu   sync.Mutex
	cond *sync.Cond
	mode requestMode

	need        int
	filledCount int
	handles     map[objectid.ID]*slot

	ready   bool
	expired bool
}

// newRequest constructs a request for the given still-missing ids. ids may
// contain duplicates — one per occurrence in the original caller's list —
// and newRequest collapses them into a set keyed by distinct id, recording
// each id's occurrence count in its slot (spec.md §4.4 "the request is
// keyed internally by a set ... Satisfaction is therefore counted once per
// distinct id"). need (readiness) tracks distinct ids, not occurrences.
func newRequest(ids []objectid.ID, mode requestMode) *request {
	r := &request{
		mode:    mode,
		handles: make(map[objectid.ID]*slot),
	}
	r.cond = sync.NewCond(&r.mu)
	for _, id := range ids {
		if s, ok := r.handles[id]; ok {
			s.occurrences++
			continue
		}
		r.handles[id] = &slot{occurrences: 1}
		r.need++
	}
	return r
}

// occurrences reports how many times id appears in this request's original
// id list. Called by Put before pinning, so it knows how many independent
// handles to mint for a single delivery (spec.md §4.4 "Duplicate ids").
func (r *request) occurrences(id objectid.ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.handles[id]
	if !ok {
		return 0
	}
	return s.occurrences
}

// set records the delivery for id: handles holds one independently-pinned
// handle per occurrence in GET mode (pinned by the caller before calling
// set — see occurrences), or is nil in WAIT mode, where occurrence count
// doesn't matter. If this fills the last outstanding slot, it marks the
// request ready and broadcasts. Called by Put while holding the Store lock
// but never while holding r.mu across a blocking call — set only writes
// into the request's own state (spec.md §4.4 "Re-entry during delivery").
func (r *request) set(id objectid.ID, handles []*Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.handles[id]
	if !ok || s.filled {
		// Not awaited, or already delivered (can't happen under the
		// Store's own bookkeeping, but set must stay a no-op rather
		// than double-count).
		return
	}
	s.filled = true
	s.queue = handles
	r.filledCount++

	if r.filledCount == r.need {
		r.ready = true
		r.cond.Broadcast()
	}
}

// get returns the next undelivered occurrence's handle for id, and whether
// id was delivered at all. Called once per missing position naming id, in
// the order the waiter's original id list listed them; each call pops one
// handle off that id's queue, so N occurrences of the same id each get
// their own independently-pinned handle, matching the already-resident
// duplicate-id path (spec.md §4.4 "Duplicate ids").
func (r *request) get(id objectid.ID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.handles[id]
	if !ok || !s.filled {
		return nil, false
	}
	if len(s.queue) == 0 {
		return nil, true
	}
	h := s.queue[0]
	s.queue = s.queue[1:]
	return h, true
}

// distinctIDs returns the distinct ids this request awaits, for
// registering and deregistering it in the Pending-Get Registry under each
// one. Safe without locking r.mu: the key set of r.handles is fixed at
// construction and never mutated afterward, only the slot values are.
func (r *request) distinctIDs() []objectid.ID {
	ids := make([]objectid.ID, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}

// wait blocks until the request is ready, the deadline elapses, or ctx is
// done — whichever comes first — and reports whether it is ready.
//
// sync.Cond has no native support for a deadline or a context, so a
// bounded wait is implemented the usual way: a timer (and, if ctx is
// non-nil, a goroutine watching ctx.Done()) that flips r.expired and
// broadcasts once the deadline/cancellation fires, waking the Wait loop
// below to recheck.
func (r *request) wait(ctx context.Context, timeoutMs int64) bool {
	r.mu.Lock()
	if r.ready {
		r.mu.Unlock()
		return true
	}
	if timeoutMs == 0 {
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)

	if timeoutMs > 0 {
		timer := time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
			r.mu.Lock()
			r.expired = true
			r.cond.Broadcast()
			r.mu.Unlock()
		})
		defer timer.Stop()
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				r.mu.Lock()
				r.expired = true
				r.cond.Broadcast()
				r.mu.Unlock()
			case <-stop:
			}
		}()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for !r.ready && !r.expired {
		r.cond.Wait()
	}
	return r.ready
}
