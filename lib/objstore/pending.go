// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package objstore

import (
	"github.com/alipay/ray/lib/objectid"
)

// pendingRegistry is the Pending-Get Registry (spec.md §3, §4.4): a mapping
// from object id to the ordered sequence of rendezvous requests currently
// awaiting that id.  Like the Entry Table and Eviction Index, it is guarded
// exclusively by the Store lock; every method here assumes the caller
// already holds it.
type pendingRegistry struct {
	byID map[objectid.ID][]*request
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{byID: make(map[objectid.ID][]*request)}
}

// register appends req to the waiting list for each of ids.  Order of
// registration is preserved, so drain delivers in FIFO order
// (spec.md §5 "Ordering guarantees").
func (p *pendingRegistry) register(ids []objectid.ID, req *request) {
	for _, id := range ids {
		p.byID[id] = append(p.byID[id], req)
	}
}

// drain removes and returns every request waiting on id, in registration
// order.  The caller (Put) is responsible for delivering to each of them.
func (p *pendingRegistry) drain(id objectid.ID) []*request {
	reqs := p.byID[id]
	delete(p.byID, id)
	return reqs
}

// deregister removes req from the waiting list for each of ids (a no-op for
// any id whose list no longer contains req, e.g. because Put already
// drained it).  If a list becomes empty, its key is removed entirely
// (spec.md §3 "An identifier key is removed when its sequence becomes
// empty").
func (p *pendingRegistry) deregister(ids []objectid.ID, req *request) {
	for _, id := range ids {
		lst := p.byID[id]
		for i, r := range lst {
			if r == req {
				lst = append(lst[:i], lst[i+1:]...)
				break
			}
		}
		if len(lst) == 0 {
			delete(p.byID, id)
		} else {
			p.byID[id] = lst
		}
	}
}
