// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile diffs the wanted identity set against a collection's
// remote inventory.
package reconcile

import (
	"github.com/pdiddy/datfetch/internal/manifest"
	"github.com/pdiddy/datfetch/pkg/types"
)

// Result partitions the wanted set: every wanted key lands in exactly one
// of Matched or Missing.
type Result struct {
	Matched []types.RemoteItem
	Missing []string
}

// Total returns the number of wanted keys that were reconciled.
func (r Result) Total() int {
	return len(r.Matched) + len(r.Missing)
}

// Reconcile walks wanted in manifest order and looks each key up in
// inventory. It performs no I/O and cannot fail.
func Reconcile(wanted *manifest.WantedSet, inventory map[string]types.RemoteItem) Result {
	var res Result
	if wanted == nil {
		return res
	}
	for _, key := range wanted.Keys() {
		if item, ok := inventory[key]; ok {
			res.Matched = append(res.Matched, item)
			continue
		}
		res.Missing = append(res.Missing, key)
	}
	return res
}
