// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package objectid defines the fixed-width identifier that the object store
// uses to key resident blobs.
package objectid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Size is the width, in bytes, of an ID.
const Size = 20

// ID is an opaque fixed-width object identifier.  It is comparable and
// usable directly as a map key; unlike variable-length identifiers, it needs
// no separate hashing step.
type ID [Size]byte

// Nil is the zero ID.  It is a valid identifier like any other; the store
// does not reserve it for any special meaning.
var Nil ID

// String renders the ID as lowercase hex, for logging and debug output.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Parse decodes a hex string of exactly 2*Size characters into an ID.
func Parse(s string) (ID, error) {
	var id ID
	dat, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("objectid.Parse: %w", err)
	}
	if len(dat) != Size {
		return id, fmt.Errorf("objectid.Parse: wrong length: got %d bytes, expected %d", len(dat), Size)
	}
	copy(id[:], dat)
	return id, nil
}

// New returns a random ID, suitable for use by callers (RPC plumbing, task
// schedulers, and the like) that generate identifiers external to the store;
// the store itself never generates IDs (see spec.md §1).
func New() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("objectid.New: %w", err)
	}
	return id, nil
}
