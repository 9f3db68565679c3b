// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package objstore

// Stats is a point-in-time snapshot of store-wide counters. It is not part
// of spec.md's external interface (§6); it exists so tests and
// cmd/objstore-bench can observe invariant 1 ("resident bytes ≤ max_bytes")
// and general store health without reaching into Store internals.
type Stats struct {
	ResidentBytes int
	MaxBytes      int
	EntryCount    int

	Puts      uint64
	Gets      uint64
	Waits     uint64
	Deletes   uint64
	Evictions uint64
}
