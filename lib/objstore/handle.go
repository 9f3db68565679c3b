// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package objstore

import (
	"runtime"
	"sync"

	"github.com/alipay/ray/lib/objectid"
)

// Handle is a reference-counted view of an entry's blob, returned by
// Store.Get (spec.md §3, §4.3).  Its existence holds one count on the
// entry, pinning it against eviction; Release drops that count.
//
// The source this spec was distilled from (see original_source/) gives a
// Handle (there, ReferencedRayObject) a destructor that calls back into the
// store — a shared_ptr whose deleter decrements the refcount.  Go has no
// destructors, so that calls for a different shape, not a transliteration
// (spec.md §9 "Shared-mutable ownership between a Handle and its Store"):
// Handle holds only the blob bytes (shared, read-only, safe without further
// synchronization once constructed) and a back-reference to the Store; the
// one-time release path is an explicit method, guarded by a sync.Once so it
// is safe to call more than once or concurrently, with a finalizer as a
// backstop for callers who forget.
type Handle struct {
	store *Store
	id    objectid.ID
	data  []byte
	meta  []byte

	once sync.Once
}

func newHandle(s *Store, id objectid.ID, data, meta []byte) *Handle {
	h := &Handle{store: s, id: id, data: data, meta: meta}
	runtime.SetFinalizer(h, (*Handle).Release)
	return h
}

// Data returns the handle's data bytes. The returned slice is shared with
// the store and must not be mutated.
func (h *Handle) Data() []byte { return h.data }

// Metadata returns the handle's metadata bytes. The returned slice is
// shared with the store and must not be mutated.
func (h *Handle) Metadata() []byte { return h.meta }

// Size is the number of bytes (data + metadata) this handle pins.
func (h *Handle) Size() int { return len(h.data) + len(h.meta) }

// ID returns the object identifier this handle refers to.
func (h *Handle) ID() objectid.ID { return h.id }

// Release decrements the entry's live-handle count, re-admitting it to the
// eviction index if the count reaches zero. It is idempotent: calling it a
// second time (including via the finalizer, after an explicit Release) is a
// no-op. It is infallible and never blocks for longer than it takes to
// acquire the Store lock, so it is safe to call from any goroutine —
// including one that is itself blocked inside a concurrent Get on the same
// Store (spec.md §6 "drop(Handle)").
func (h *Handle) Release() {
	h.once.Do(func() {
		runtime.SetFinalizer(h, nil)
		h.store.release(h.id)
	})
}
