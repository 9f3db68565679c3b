// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package objstore

import (
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alipay/ray/lib/blob"
	"github.com/alipay/ray/lib/objectid"
)

func mustID(t *testing.T) objectid.ID {
	t.Helper()
	id, err := objectid.New()
	require.NoError(t, err)
	return id
}

func dataBlob(s string) blob.Blob {
	return blob.Blob{Data: []byte(s)}
}

// TestPutThenGet covers the simple rendezvous case: the blob is already
// resident, so Get returns immediately with no blocking.
func TestPutThenGet(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(1024)

	id := mustID(t)
	require.NoError(t, s.Put(ctx, id, dataBlob("hello")))

	handles, err := s.Get(ctx, []objectid.ID{id}, -1)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	require.NotNil(t, handles[0])
	assert.Equal(t, "hello", string(handles[0].Data()))
	handles[0].Release()
}

// TestGetBlocksUntilPut covers the rendezvous case where the blob arrives
// after the Get call has already started waiting on it.
func TestGetBlocksUntilPut(t *testing.T) {
	t.Parallel()
	const tick = time.Second / 4

	ctx := dlog.NewTestContext(t, false)
	s := New(1024)
	id := mustID(t)

	ch := make(chan *Handle, 1)
	start := time.Now()
	go func() {
		handles, err := s.Get(ctx, []objectid.ID{id}, -1)
		assert.NoError(t, err)
		require.Len(t, handles, 1)
		ch <- handles[0]
	}()

	go func() {
		time.Sleep(tick)
		assert.NoError(t, s.Put(ctx, id, dataBlob("late")))
	}()

	h := <-ch
	dur := time.Since(start)
	require.NotNil(t, h)
	assert.Equal(t, "late", string(h.Data()))
	assert.GreaterOrEqual(t, dur, tick)
	h.Release()
}

// TestGetTimeoutPartialFill covers a Get whose deadline elapses before every
// requested id has arrived: the ids that did arrive are still delivered, the
// rest come back nil, and no error is returned.
func TestGetTimeoutPartialFill(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(1024)

	present := mustID(t)
	missing := mustID(t)
	require.NoError(t, s.Put(ctx, present, dataBlob("here")))

	handles, err := s.Get(ctx, []objectid.ID{present, missing}, 50)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	require.NotNil(t, handles[0])
	assert.Equal(t, "here", string(handles[0].Data()))
	assert.Nil(t, handles[1])
	handles[0].Release()
}

// TestWaitDoesNotPin covers spec.md's requirement that Wait is observation
// only: it must not prevent an otherwise-unreferenced entry from being
// evicted.
func TestWaitDoesNotPin(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(16)

	id := mustID(t)
	require.NoError(t, s.Put(ctx, id, dataBlob("0123456789")))

	ok, err := s.Wait(ctx, []objectid.ID{id}, 1, -1)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, ok)

	// Putting a second object that doesn't fit alongside the first should
	// be able to evict it, proving Wait left it unpinned.
	other := mustID(t)
	require.NoError(t, s.Put(ctx, other, dataBlob("0123456789")))

	st := s.Stats()
	assert.Equal(t, 1, st.EntryCount)
	assert.Equal(t, uint64(1), st.Evictions)
}

// TestPinPreventsEviction covers the converse: a live Handle on an entry
// must keep it out of the eviction index even under memory pressure.
func TestPinPreventsEviction(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(16)

	id := mustID(t)
	require.NoError(t, s.Put(ctx, id, dataBlob("0123456789")))

	handles, err := s.Get(ctx, []objectid.ID{id}, -1)
	require.NoError(t, err)
	require.NotNil(t, handles[0])

	other := mustID(t)
	err = s.Put(ctx, other, dataBlob("0123456789"))
	require.Error(t, err)
	var oomErr *OutOfMemoryError
	require.ErrorAs(t, err, &oomErr)

	handles[0].Release()
	require.NoError(t, s.Put(ctx, other, dataBlob("0123456789")))
}

// TestEvictionUnderPressure covers bulk LRU behavior: filling the store past
// capacity evicts the oldest unreferenced entries first.
func TestEvictionUnderPressure(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(30)

	idA, idB, idC := mustID(t), mustID(t), mustID(t)
	require.NoError(t, s.Put(ctx, idA, dataBlob("0123456789")))
	require.NoError(t, s.Put(ctx, idB, dataBlob("0123456789")))
	require.NoError(t, s.Put(ctx, idC, dataBlob("0123456789")))

	// Store is now exactly full (30/30 bytes); a fourth put of the same
	// size must evict idA (oldest, unreferenced).
	idD := mustID(t)
	require.NoError(t, s.Put(ctx, idD, dataBlob("0123456789")))

	handles, err := s.Get(ctx, []objectid.ID{idA}, 0)
	require.NoError(t, err)
	assert.Nil(t, handles[0])

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Evictions)
	assert.Equal(t, 3, st.EntryCount)
}

// TestPutAlreadyExists covers the no-overwrite invariant: a second Put under
// an id that is still resident is rejected, and the original blob survives.
func TestPutAlreadyExists(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(1024)

	id := mustID(t)
	require.NoError(t, s.Put(ctx, id, dataBlob("first")))
	err := s.Put(ctx, id, dataBlob("second"))
	require.Error(t, err)
	var existsErr *AlreadyExistsError
	require.ErrorAs(t, err, &existsErr)

	handles, err := s.Get(ctx, []objectid.ID{id}, 0)
	require.NoError(t, err)
	assert.Equal(t, "first", string(handles[0].Data()))
	handles[0].Release()
}

// TestGetDuplicateIDs covers a Get call that names the same id twice: both
// slots must be filled from a single underlying entry, and Release-ing one
// handle must not affect the other.
func TestGetDuplicateIDs(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(1024)

	id := mustID(t)
	require.NoError(t, s.Put(ctx, id, dataBlob("dup")))

	handles, err := s.Get(ctx, []objectid.ID{id, id}, -1)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	require.NotNil(t, handles[0])
	require.NotNil(t, handles[1])
	assert.Equal(t, "dup", string(handles[0].Data()))
	assert.Equal(t, "dup", string(handles[1].Data()))

	handles[0].Release()
	// The entry is still pinned by handles[1].
	s.mu.Lock()
	refcount := s.entries[id].refcount
	s.mu.Unlock()
	assert.Equal(t, 1, refcount)
	handles[1].Release()
}

// TestGetDuplicateIDsViaPendingPath covers the same "each occurrence is
// filled" requirement as TestGetDuplicateIDs, but routed through the
// Pending-Get Registry/rendezvous path rather than the immediate-resident
// path: the Get call starts before the id is resident, so its duplicate
// occurrences are collapsed into one rendezvous request (spec.md §4.4
// "the request is keyed internally by a set") and must still come back as
// three independently-pinned handles once Put delivers.
func TestGetDuplicateIDsViaPendingPath(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(1024)
	id := mustID(t)

	ch := make(chan []*Handle, 1)
	go func() {
		handles, err := s.Get(ctx, []objectid.ID{id, id, id}, -1)
		assert.NoError(t, err)
		ch <- handles
	}()

	// Give the goroutine time to register its rendezvous request before
	// the id becomes resident.
	time.Sleep(time.Millisecond * 100)
	require.NoError(t, s.Put(ctx, id, dataBlob("trio")))

	handles := <-ch
	require.Len(t, handles, 3)
	require.NotNil(t, handles[0])
	require.NotNil(t, handles[1])
	require.NotNil(t, handles[2])
	assert.NotSame(t, handles[0], handles[1])
	assert.NotSame(t, handles[1], handles[2])
	for _, h := range handles {
		assert.Equal(t, "trio", string(h.Data()))
	}

	s.mu.Lock()
	refcount := s.entries[id].refcount
	s.mu.Unlock()
	require.Equal(t, 3, refcount)

	// Releasing one occurrence's handle must not unpin the other two.
	handles[0].Release()
	s.mu.Lock()
	refcount = s.entries[id].refcount
	s.mu.Unlock()
	assert.Equal(t, 2, refcount)

	handles[1].Release()
	handles[2].Release()
	s.mu.Lock()
	_, stillPresent := s.entries[id]
	s.mu.Unlock()
	assert.True(t, stillPresent, "entry should remain resident, just unpinned, after all handles are released")
}

// TestOverlappingRendezvousDeliversToEachWaiter covers spec.md §4.4
// "Overlapping rendezvous": two separate Get calls registered on the same
// not-yet-resident id must each be delivered an independent handle once Put
// arrives, in the order they registered (spec.md §5 "Ordering guarantees").
func TestOverlappingRendezvousDeliversToEachWaiter(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(1024)
	id := mustID(t)

	chA := make(chan *Handle, 1)
	chB := make(chan *Handle, 1)

	go func() {
		handles, err := s.Get(ctx, []objectid.ID{id}, -1)
		assert.NoError(t, err)
		chA <- handles[0]
	}()
	// Stagger registration so A is registered strictly before B.
	time.Sleep(time.Millisecond * 50)
	go func() {
		handles, err := s.Get(ctx, []objectid.ID{id}, -1)
		assert.NoError(t, err)
		chB <- handles[0]
	}()
	time.Sleep(time.Millisecond * 50)

	require.NoError(t, s.Put(ctx, id, dataBlob("shared")))

	hA := <-chA
	hB := <-chB
	require.NotNil(t, hA)
	require.NotNil(t, hB)
	assert.NotSame(t, hA, hB)
	assert.Equal(t, "shared", string(hA.Data()))
	assert.Equal(t, "shared", string(hB.Data()))

	s.mu.Lock()
	refcount := s.entries[id].refcount
	s.mu.Unlock()
	assert.Equal(t, 2, refcount)

	hA.Release()
	hB.Release()
}

// TestDeleteDropsEntryNotHandles covers Delete: resident lookups stop
// resolving, but outstanding handles keep their bytes.
func TestDeleteDropsEntryNotHandles(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(1024)

	id := mustID(t)
	require.NoError(t, s.Put(ctx, id, dataBlob("gone soon")))
	handles, err := s.Get(ctx, []objectid.ID{id}, -1)
	require.NoError(t, err)

	s.Delete(ctx, []objectid.ID{id})

	missing, err := s.Get(ctx, []objectid.ID{id}, 0)
	require.NoError(t, err)
	assert.Nil(t, missing[0])

	assert.Equal(t, "gone soon", string(handles[0].Data()))
	handles[0].Release()
}

// TestPutAfterCloseFails covers the teardown invariant: a Store rejects
// further Puts once Close has run, and every resident entry is gone.
func TestPutAfterCloseFails(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(1024)

	id := mustID(t)
	require.NoError(t, s.Put(ctx, id, dataBlob("x")))
	s.Close()

	handles, err := s.Get(ctx, []objectid.ID{id}, 0)
	require.NoError(t, err)
	assert.Nil(t, handles[0])

	err = s.Put(ctx, mustID(t), dataBlob("y"))
	require.Error(t, err)
	var closedErr *ClosedError
	require.ErrorAs(t, err, &closedErr)
}

// TestPutRejectsEmptyBlob covers the Blob validation supplement: a Blob with
// neither half present carries no information and is rejected.
func TestPutRejectsEmptyBlob(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(1024)

	err := s.Put(ctx, mustID(t), blob.Blob{})
	require.Error(t, err)
	var invalidErr *InvalidError
	require.ErrorAs(t, err, &invalidErr)
}

// TestWaitRejectsMismatchedNumRequired covers the numRequired == len(ids)
// validation on Wait.
func TestWaitRejectsMismatchedNumRequired(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(1024)

	_, err := s.Wait(ctx, []objectid.ID{mustID(t), mustID(t)}, 1, -1)
	require.Error(t, err)
	var invalidErr *InvalidError
	require.ErrorAs(t, err, &invalidErr)
}

// TestOutOfMemorySingleObjectTooBig covers Put of a blob that can never fit,
// even against an empty store.
func TestOutOfMemorySingleObjectTooBig(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	s := New(4)

	err := s.Put(ctx, mustID(t), dataBlob("too big for this store"))
	require.Error(t, err)
	var oomErr *OutOfMemoryError
	require.ErrorAs(t, err, &oomErr)
	assert.Equal(t, 0, s.Stats().EntryCount)
}
