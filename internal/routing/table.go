package routing

import (
	"fmt"
	"sort"

	"github.com/cansys/udp-can-bridge/internal/can"
)

// IDRange is an inclusive identifier range inside the 29-bit CAN ID space.
type IDRange struct {
	Min uint32
	Max uint32
}

// Contains reports whether id falls inside the range.
func (r IDRange) Contains(id uint32) bool { return r.Min <= id && id <= r.Max }

// Validate checks the structural invariants of a single range.
func (r IDRange) Validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("id range min 0x%X > max 0x%X", r.Min, r.Max)
	}
	if r.Max > can.CAN_EFF_MASK {
		return fmt.Errorf("id range max 0x%X exceeds 29-bit space", r.Max)
	}
	return nil
}

// Overlaps reports whether two ranges share any identifier.
func (r IDRange) Overlaps(o IDRange) bool { return r.Min <= o.Max && o.Min <= r.Max }

// Entry maps one identifier range to the channel that owns it.
type Entry struct {
	Range   IDRange
	Channel int
}

// Table is the per-process routing table: entries sorted ascending by
// Range.Min, built once after provisioning and immutable afterwards.
// Lookup correctness relies on the configured ranges being pairwise
// disjoint; on an invalid overlapping table the entry with the largest
// matching Min wins.
type Table struct {
	entries []Entry
}

// Build sorts the entries by range start and returns the table.
// The input slice is copied; the caller may reuse it.
func Build(entries []Entry) *Table {
	t := &Table{entries: make([]Entry, len(entries))}
	copy(t.entries, entries)
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].Range.Min < t.entries[j].Range.Min })
	return t
}

// Lookup returns the channel index owning id, or -1 when no configured
// range contains it. Single O(log n) binary search: find the rightmost
// entry whose Min <= id, then confirm id <= Max.
func (t *Table) Lookup(id uint32) int {
	n := len(t.entries)
	if n == 0 {
		return -1
	}
	// sort.Search finds the first entry with Min > id.
	i := sort.Search(n, func(i int) bool { return t.entries[i].Range.Min > id })
	if i == 0 {
		return -1
	}
	e := t.entries[i-1]
	if e.Range.Contains(id) {
		return e.Channel
	}
	return -1
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }
