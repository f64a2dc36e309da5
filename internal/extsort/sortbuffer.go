// Copyright 2020-2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extsort

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
)

// Compare orders two rows: negative if this < that, zero if equal (in sort
// order, not necessarily ==), positive if this > that.
type Compare func(this, that types.Row) int

// TmpFileCreate mints a new scratch heap file for the given (level, run)
// pair, within whatever transaction context the caller is operating in.
type TmpFileCreate func(level, run int) (*storage.HeapFile, error)

// TmpFileDelete discards a scratch heap file previously returned by a
// TmpFileCreate call.
type TmpFileDelete func(*storage.HeapFile) error

// ExtSortBuffer buffers rows, sorts them (with optional deduplication), and
// streams them back out in order, spilling to temporary runs and performing
// an external k-way merge once the in-memory budget is exceeded (§4.3).
// Grounded on the executor's util.ExtSortBuffer.
type ExtSortBuffer struct {
	compare             Compare
	tmpFileCreate       TmpFileCreate
	tmpFileDelete       TmpFileDelete
	numMemoryBlocks     int
	numMemoryBlocksFinal int
	maxBytes            int
	deduplicate         bool

	buffer   []types.Row
	numBytes int
	numRuns  int
	runs     []*storage.HeapFile
}

// New constructs a sorting buffer. numMemoryBlocks must be at least 3 (one
// block is reserved for output during a merge, leaving at least two input
// runs to merge); numMemoryBlocksFinal, if non-zero, overrides
// numMemoryBlocks for the terminating merge pass and must be at least 2.
func New(compare Compare, tmpFileCreate TmpFileCreate, tmpFileDelete TmpFileDelete,
	numMemoryBlocks, numMemoryBlocksFinal int, deduplicate bool) (*ExtSortBuffer, error) {
	if numMemoryBlocks < 3 {
		return nil, ddberrors.Configuration.New("merge sort needs at least 3 memory blocks to perform a merge")
	}
	if numMemoryBlocksFinal == 0 {
		numMemoryBlocksFinal = numMemoryBlocks
	}
	if numMemoryBlocksFinal < 2 {
		return nil, ddberrors.Configuration.New("merge sort needs at least 2 memory blocks to perform the final merge")
	}
	return &ExtSortBuffer{
		compare:              compare,
		tmpFileCreate:        tmpFileCreate,
		tmpFileDelete:        tmpFileDelete,
		numMemoryBlocks:      numMemoryBlocks,
		numMemoryBlocksFinal: numMemoryBlocksFinal,
		maxBytes:             numMemoryBlocks * types.BlockSize,
		deduplicate:          deduplicate,
	}, nil
}

func (b *ExtSortBuffer) containsDup(row types.Row) bool {
	for _, r := range b.buffer {
		if types.Equal(r, row) {
			return true
		}
	}
	return false
}

// Add adds a row, spilling the in-memory buffer to a new run first if
// adding it would exceed the configured byte budget.
func (b *ExtSortBuffer) Add(row types.Row) error {
	if b.deduplicate && b.containsDup(row) {
		return nil
	}
	rowSize := types.EstimateRowBytes(row)
	if b.numBytes+rowSize > b.maxBytes {
		if err := b.flush(); err != nil {
			return err
		}
	}
	b.buffer = append(b.buffer, row)
	b.numBytes += rowSize
	return nil
}

func (b *ExtSortBuffer) sortBuffer() {
	sort.SliceStable(b.buffer, func(i, j int) bool { return b.compare(b.buffer[i], b.buffer[j]) < 0 })
}

func (b *ExtSortBuffer) flush() error {
	run, err := b.tmpFileCreate(0, b.numRuns)
	if err != nil {
		return err
	}
	b.numRuns++
	b.sortBuffer()
	if b.deduplicate {
		deduped := b.buffer[:0:0]
		for i, r := range b.buffer {
			if i == 0 || b.compare(b.buffer[i-1], r) != 0 {
				deduped = append(deduped, r)
			}
		}
		b.buffer = deduped
	}
	if _, _, err := run.BatchAppend(b.buffer); err != nil {
		return err
	}
	b.runs = append(b.runs, run)
	b.buffer = nil
	b.numBytes = 0
	return nil
}

// heapItem is one (row, source-run-index) pending output during a merge;
// comparing by run index after row order breaks ties and yields a stable
// sort across runs, per §4.3.
type heapItem struct {
	row      types.Row
	runIndex int
	pos      int // position within the materialized run rows, for advancing
}

type mergeHeap struct {
	items   []heapItem
	compare Compare
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	c := h.compare(h.items[i].row, h.items[j].row)
	if c != 0 {
		return c < 0
	}
	return h.items[i].runIndex < h.items[j].runIndex
}
func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x any)    { h.items = append(h.items, x.(heapItem)) }
func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// mergeRuns streams a k-way merge of runs in ascending order via a min-heap
// keyed by (row, source-run-index); every run is read in full via
// HeapFile.IterScan before the merge starts.
func (b *ExtSortBuffer) mergeRuns(runs []*storage.HeapFile, emit func(types.Row) error) error {
	materialized := make([][]types.Row, len(runs))
	for i, run := range runs {
		rows, err := run.IterScan(false)
		if err != nil {
			return err
		}
		materialized[i] = rows
	}
	h := &mergeHeap{compare: b.compare}
	for i, rows := range materialized {
		if len(rows) > 0 {
			heap.Push(h, heapItem{row: rows[0], runIndex: i, pos: 0})
		}
	}
	var lastEmitted types.Row
	haveLast := false
	for h.Len() > 0 {
		it := heap.Pop(h).(heapItem)
		if !b.deduplicate || !haveLast || b.compare(lastEmitted, it.row) != 0 {
			if err := emit(it.row); err != nil {
				return err
			}
			lastEmitted = it.row
			haveLast = true
		}
		next := it.pos + 1
		if next < len(materialized[it.runIndex]) {
			heap.Push(h, heapItem{row: materialized[it.runIndex][next], runIndex: it.runIndex, pos: next})
		}
	}
	return nil
}

// IterAndClear streams every added row in sorted (and, if configured,
// deduplicated) order via emit, then clears the buffer so it is ready to
// accept a fresh batch of rows.
func (b *ExtSortBuffer) IterAndClear(emit func(types.Row) error) error {
	if b.numRuns == 0 {
		b.sortBuffer()
		if b.deduplicate {
			var lastEmitted types.Row
			haveLast := false
			for _, r := range b.buffer {
				if haveLast && b.compare(lastEmitted, r) == 0 {
					continue
				}
				if err := emit(r); err != nil {
					return err
				}
				lastEmitted = r
				haveLast = true
			}
		} else {
			for _, r := range b.buffer {
				if err := emit(r); err != nil {
					return err
				}
			}
		}
		b.buffer = nil
		b.numBytes = 0
		return nil
	}
	if len(b.buffer) > 0 {
		if err := b.flush(); err != nil {
			return err
		}
	}
	level := 1
	for len(b.runs) > b.numMemoryBlocksFinal {
		fanout := b.numMemoryBlocks - 1
		var newRuns []*storage.HeapFile
		for i := 0; i*fanout < len(b.runs); i++ {
			lo, hi := i*fanout, (i+1)*fanout
			if hi > len(b.runs) {
				hi = len(b.runs)
			}
			subset := b.runs[lo:hi]
			newRun, err := b.tmpFileCreate(level, len(newRuns))
			if err != nil {
				return err
			}
			newRuns = append(newRuns, newRun)
			writer := NewBufferedWriter(newRun, 1)
			if err := b.mergeRuns(subset, func(r types.Row) error { return writer.Write(r) }); err != nil {
				return err
			}
			if err := writer.Flush(); err != nil {
				return err
			}
			for _, run := range subset {
				if err := b.tmpFileDelete(run); err != nil {
					return err
				}
			}
		}
		b.runs = newRuns
		level++
	}
	if err := b.mergeRuns(b.runs, emit); err != nil {
		return err
	}
	for _, run := range b.runs {
		if err := b.tmpFileDelete(run); err != nil {
			return err
		}
	}
	b.runs = nil
	return nil
}

func (b *ExtSortBuffer) String() string {
	return fmt.Sprintf("ExtSortBuffer(blocks=%d, final=%d, dedup=%v, runs=%d)",
		b.numMemoryBlocks, b.numMemoryBlocksFinal, b.deduplicate, b.numRuns)
}
