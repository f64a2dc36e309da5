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

package leaf

import (
	"fmt"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/extsort"
	"github.com/devilsdb/ddb-go/internal/types"
)

// Materialize caches its input's rows the first time it is executed,
// spilling to a tmp heap file once its memory budget is exceeded, so any
// subsequent Execute() call replays the cached rows without recomputing
// the input. If Blocking, the first pass fully exhausts the input before
// any row is returned; otherwise rows are streamed through as they are
// cached. Grounded on the original materialize.MaterializePop.
type Materialize struct {
	executor.Base
	Input           executor.QPop
	Blocking        bool
	NumMemoryBlocks int

	writer      *extsort.BufferedWriter
	tmpFile     string
	tmpSchema   types.RowType
	cachedRows  []types.Row
	haveCache   bool
}

func NewMaterialize(ctx *executor.StatementContext, input executor.QPop, blocking bool, numMemoryBlocks int) (*Materialize, error) {
	if numMemoryBlocks < 1 {
		return nil, ddberrors.Configuration.New("materialization needs at least one memory block")
	}
	m := &Materialize{Input: input, Blocking: blocking, NumMemoryBlocks: numMemoryBlocks}
	m.Init(ctx, m)
	return m, nil
}

func (m *Materialize) Children() []executor.QPop { return []executor.QPop{m.Input} }
func (m *Materialize) MemoryBlocksRequired() int { return m.NumMemoryBlocks }
func (m *Materialize) PstrMore() []string {
	return []string{fmt.Sprintf("# memory blocks: %d", m.NumMemoryBlocks)}
}

func (m *Materialize) Compiled() (executor.CompiledProps, error) {
	return m.Base.Compiled(func() (executor.CompiledProps, error) {
		return m.Input.Compiled()
	})
}

func (m *Materialize) Estimated() (executor.EstimatedProps, error) {
	return m.Base.Estimated(func() (executor.CompiledProps, error) { return m.Compiled() },
		func(compiled executor.CompiledProps) (executor.EstimatedProps, error) {
			inputEst, err := m.Input.Estimated()
			if err != nil {
				return executor.EstimatedProps{}, err
			}
			return executor.EstimatedProps{
				RowCount: inputEst.RowCount,
				RowSize:  inputEst.RowSize,
				Blocks:   executor.StatsInBlocks{SelfReads: inputEst.Blocks.Overall, Overall: inputEst.Blocks.Overall},
				BlocksExtraInit: &executor.StatsInBlocks{
					SelfWrites: inputEst.Blocks.Overall,
					Overall:    inputEst.Blocks.Overall,
				},
			}, nil
		})
}

func (m *Materialize) Execute() (func() (types.Row, bool, error), error) {
	if !m.haveCache {
		return m.firstPass()
	}
	return m.replay()
}

func (m *Materialize) firstPass() (func() (types.Row, bool, error), error) {
	compiled, err := m.Compiled()
	if err != nil {
		return nil, err
	}
	file, name, err := m.Context.Tmp.New(0, 0, compiled.OutputMetadata.ColumnTypes)
	if err != nil {
		return nil, err
	}
	m.tmpFile = name
	m.tmpSchema = compiled.OutputMetadata.ColumnTypes
	m.writer = extsort.NewBufferedWriter(file, m.NumMemoryBlocks)
	inputNext, err := m.Input.Execute()
	if err != nil {
		return nil, err
	}

	drainAndReplay := func() (func() (types.Row, bool, error), error) {
		for {
			row, ok, err := inputNext()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			if err := m.writer.Write(row); err != nil {
				return nil, err
			}
		}
		if m.writer.NumBlocksFlushed() > 0 {
			if err := m.writer.Flush(); err != nil {
				return nil, err
			}
		}
		m.haveCache = true
		if m.writer.NumBlocksFlushed() == 0 {
			m.cachedRows = m.writer.Buffer()
		}
		return m.replay()
	}

	if m.Blocking {
		return drainAndReplay()
	}

	done := false
	raw := func() (types.Row, bool, error) {
		if done {
			return nil, false, nil
		}
		row, ok, err := inputNext()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			done = true
			if m.writer.NumBlocksFlushed() > 0 {
				if err := m.writer.Flush(); err != nil {
					return nil, false, err
				}
			}
			m.haveCache = true
			if m.writer.NumBlocksFlushed() == 0 {
				m.cachedRows = m.writer.Buffer()
			}
			return nil, false, nil
		}
		if err := m.writer.Write(row); err != nil {
			return nil, false, err
		}
		return row, true, nil
	}
	return executor.TraceExecute(&m.Base, "Materialize", raw), nil
}

func (m *Materialize) replay() (func() (types.Row, bool, error), error) {
	var rows []types.Row
	if m.writer.NumBlocksFlushed() > 0 {
		file, err := m.Context.SM.HeapFile(m.tmpFile, m.tmpSchema, false)
		if err != nil {
			return nil, err
		}
		rows, err = file.IterScan(false)
		if err != nil {
			return nil, err
		}
	} else {
		rows = m.cachedRows
	}
	i := 0
	raw := func() (types.Row, bool, error) {
		if i >= len(rows) {
			return nil, false, nil
		}
		r := rows[i]
		i++
		return r, true, nil
	}
	return executor.TraceExecute(&m.Base, "Materialize.replay", raw), nil
}

// Close releases the tmp file backing this operator's cache, if any was
// created; callers should invoke it once the enclosing statement is done,
// mirroring the original's __exit__ cleanup.
func (m *Materialize) Close() error {
	if m.tmpFile == "" {
		return nil
	}
	return m.Context.Tmp.Delete(m.tmpFile)
}
