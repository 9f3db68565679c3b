// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	"bytes"
	"sort"

	"github.com/alipay/ray/lib/objectid"
)

// Keys returns the keys of m in unspecified order.
func Keys[V any](m map[objectid.ID]V) []objectid.ID {
	ret := make([]objectid.ID, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	return ret
}

// SortedKeys returns the keys of m sorted by raw byte value, for
// deterministic debug output (e.g. Store.DumpKeys).
func SortedKeys[V any](m map[objectid.ID]V) []objectid.ID {
	ret := Keys(m)
	sort.Slice(ret, func(i, j int) bool {
		return bytes.Compare(ret[i][:], ret[j][:]) < 0
	})
	return ret
}
