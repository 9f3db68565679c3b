// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pool recycles entry structs across Puts, the way
// btrfstree.nodePool recycles *Node values in the teacher repo.
package pool

import (
	"git.lukeshu.com/go/typedsync"
)

// Entries is a typed, thread-safe free-list of *T, keyed by nothing in
// particular; callers Get a (possibly-reused, possibly-fresh) value and Put
// it back once it's no longer referenced anywhere.
type Entries[T any] struct {
	inner typedsync.Pool[*T]
}

// NewEntries returns a pool whose Get calls new when no recycled value is
// available.
func NewEntries[T any](zero func() *T) *Entries[T] {
	return &Entries[T]{inner: typedsync.Pool[*T]{New: zero}}
}

func (p *Entries[T]) Get() *T {
	v, _ := p.inner.Get()
	return v
}

func (p *Entries[T]) Put(v *T) {
	p.inner.Put(v)
}
