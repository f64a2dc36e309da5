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

// Package extsort provides the external-memory building blocks shared by
// every operator that needs more rows than fit in its memory budget: a
// buffered batch reader, a buffered heap-file writer, and a general sorting
// (optionally deduplicating) spill buffer (§4.2-4.3).
package extsort

import (
	"fmt"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
)

// BufferedReader batches an input row stream into chunks sized to a memory
// block budget, grounded on the executor's util.BufferedReader.
type BufferedReader struct {
	numMemoryBlocks int
	maxBytes        int
}

func NewBufferedReader(numMemoryBlocks int) *BufferedReader {
	return &BufferedReader{numMemoryBlocks: numMemoryBlocks, maxBytes: numMemoryBlocks * types.BlockSize}
}

// IterBuffer drains source entirely (source must be a finite row slice, or a
// caller-supplied generator adapted to one) and returns successive batches,
// each sized to at most the configured byte budget. A single row larger than
// the budget is an execution error (ddberrors.Execution), since no batch
// could ever hold it.
func (r *BufferedReader) IterBuffer(source func() (types.Row, bool, error)) func() ([]types.Row, error) {
	done := false
	return func() ([]types.Row, error) {
		if done {
			return nil, nil
		}
		var buffer []types.Row
		numBytes := 0
		for {
			row, ok, err := source()
			if err != nil {
				return nil, err
			}
			if !ok {
				done = true
				if len(buffer) > 0 {
					return buffer, nil
				}
				return nil, nil
			}
			rowSize := types.EstimateRowBytes(row)
			if rowSize > r.maxBytes {
				return nil, ddberrors.Execution.New(fmt.Sprintf("row too big to fit in %d block(s): %v", r.numMemoryBlocks, row))
			}
			if numBytes+rowSize > r.maxBytes {
				return buffer, nil
			}
			buffer = append(buffer, row)
			numBytes += rowSize
		}
	}
}

// BufferedWriter buffers rows for append to a HeapFile, flushing only as
// needed; if the budget is never exceeded the file may never be touched.
type BufferedWriter struct {
	file             *storage.HeapFile
	numMemoryBlocks  int
	maxBytes         int
	buffer           []types.Row
	numBytes         int
	numBlocksFlushed int
}

func NewBufferedWriter(file *storage.HeapFile, numMemoryBlocks int) *BufferedWriter {
	return &BufferedWriter{file: file, numMemoryBlocks: numMemoryBlocks, maxBytes: numMemoryBlocks * types.BlockSize}
}

func (w *BufferedWriter) NumBlocksFlushed() int { return w.numBlocksFlushed }

// Buffer exposes the unflushed rows directly; safe to read only when
// NumBlocksFlushed() == 0, signaling callers that nothing ever spilled.
func (w *BufferedWriter) Buffer() []types.Row { return w.buffer }

func (w *BufferedWriter) Write(row types.Row) error {
	rowSize := types.EstimateRowBytes(row)
	w.buffer = append(w.buffer, row)
	w.numBytes += rowSize
	if w.numBytes+rowSize > w.maxBytes {
		return w.Flush()
	}
	return nil
}

func (w *BufferedWriter) Flush() error {
	if _, _, err := w.file.BatchAppend(w.buffer); err != nil {
		return err
	}
	w.numBlocksFlushed++
	w.buffer = nil
	w.numBytes = 0
	return nil
}
