// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package blob defines the immutable byte payload that the object store
// holds: a (data, metadata) pair, either half of which may be absent.
package blob

// Blob is an immutable pair of byte slices.  Once constructed, a Blob is
// never mutated; callers must not write into Data or Metadata after handing
// a Blob to Store.Put.
type Blob struct {
	Data     []byte
	Metadata []byte
}

// Size is the number of bytes the Blob occupies: the sum of the lengths of
// the present halves.
func (b Blob) Size() int {
	return len(b.Data) + len(b.Metadata)
}

// Empty reports whether both halves are absent (nil).  Store.Put rejects
// such a Blob: "absent" distinguishes the data half from the metadata half,
// but a Blob with neither present carries no information at all.
func (b Blob) Empty() bool {
	return b.Data == nil && b.Metadata == nil
}

// Clone returns a deep copy of b, so the store's own copy can never be
// mutated by a caller who still holds a reference to the slices they passed
// to Put.
func (b Blob) Clone() Blob {
	var out Blob
	if b.Data != nil {
		out.Data = append([]byte{}, b.Data...)
	}
	if b.Metadata != nil {
		out.Metadata = append([]byte{}, b.Metadata...)
	}
	return out
}
