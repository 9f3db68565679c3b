// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package objstore

import (
	"fmt"

	"github.com/alipay/ray/lib/objectid"
)

// AlreadyExistsError is returned by Put when id already names a resident
// entry.
type AlreadyExistsError struct {
	ID objectid.ID
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("object already exists: %v", e.ID)
}

// OutOfMemoryError is returned by Put when a blob does not fit even after
// evicting every unreferenced entry.
type OutOfMemoryError struct {
	ID       objectid.ID
	Size     int
	MaxBytes int
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("out of memory: object %v is %d bytes, store capacity is %d bytes", e.ID, e.Size, e.MaxBytes)
}

// InvalidError is returned for malformed arguments: a Wait call whose
// numRequired doesn't match len(ids), or a Put of an empty Blob.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return "invalid argument: " + e.Reason
}

// ClosedError is returned by Put once Store.Close has run (Close does not
// signal pending waiters); teardown "evicts everything" (spec.md §6), so a Put
// racing a Close is rejected rather than silently resurrecting an entry.
type ClosedError struct{}

func (*ClosedError) Error() string { return "store is closed" }
