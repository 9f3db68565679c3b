// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package objstore

import (
	"github.com/alipay/ray/lib/blob"
	"github.com/alipay/ray/lib/containers"
	"github.com/alipay/ray/lib/objectid"
)

// entry is the Entry Table's value type (spec.md §3 "Entry"): a resident
// blob plus its live-handle count.  It exists in the table iff the blob has
// been put and has not yet been evicted or deleted; refcount == 0 iff
// evictElem is non-nil (i.e. iff the entry is linked into the eviction
// index). entry is owned exclusively by the Store and is always accessed
// with the Store lock held.
type entry struct {
	id       objectid.ID
	blob     blob.Blob
	refcount int

	// evictElem is non-nil iff this entry is currently linked into the
	// store's eviction index (refcount == 0).
	evictElem *containers.LinkedListEntry[evictionRecord]
}
