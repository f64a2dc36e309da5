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

// Package sortop implements the external merge sort physical operator
// (§4.7).
package sortop

import (
	"fmt"
	"math"
	"strings"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/extsort"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// MergeSort sorts its input by a list of expressions, each ascending or
// descending, spilling intermediate runs to temporary heap files via
// extsort.ExtSortBuffer once NumMemoryBlocks is exceeded. The number of
// memory blocks used for the final merge pass may differ from the number
// used for earlier passes (useful when the output feeds a merge join that
// also needs buffer space). Grounded on the original mergesort.MergeSortPop.
type MergeSort struct {
	executor.Base
	Input                executor.QPop
	Exprs                []valexpr.Expr
	OrdersAsc            []bool
	NumMemoryBlocks      int
	NumMemoryBlocksFinal int

	cmp      extsort.Compare
	cmpState *compiledComparator
}

// compiledComparator builds extsort.Compare (no error return) from the
// compiled per-expression evaluators, instead of relying on the
// code-generation trick the original used ("this" and "that" pseudo-inputs
// spliced into generated source), since Go has no runtime eval(). Any
// evaluation error is latched and surfaced by Execute once sorting
// finishes, rather than threaded through every comparison.
type compiledComparator struct {
	execs []valexpr.Compiled
	asc   []bool
	err   error
}

func (c *compiledComparator) compare(this, that types.Row) int {
	if c.err != nil {
		return 0
	}
	for i, exec := range c.execs {
		tv, err := exec([]types.Row{this})
		if err != nil {
			c.err = err
			return 0
		}
		ov, err := exec([]types.Row{that})
		if err != nil {
			c.err = err
			return 0
		}
		c2 := valexpr.CompareValues(tv, ov)
		if c2 == 0 {
			continue
		}
		if !c.asc[i] {
			c2 = -c2
		}
		return c2
	}
	return 0
}

func NewMergeSort(ctx *executor.StatementContext, input executor.QPop, exprs []valexpr.Expr, ordersAsc []bool, numMemoryBlocks, numMemoryBlocksFinal int) (*MergeSort, error) {
	if numMemoryBlocks <= 2 {
		return nil, ddberrors.Configuration.New("merge sort needs at least 3 memory blocks to perform a merge")
	}
	if numMemoryBlocksFinal == 0 {
		numMemoryBlocksFinal = numMemoryBlocks
	}
	s := &MergeSort{Input: input, Exprs: exprs, OrdersAsc: ordersAsc, NumMemoryBlocks: numMemoryBlocks, NumMemoryBlocksFinal: numMemoryBlocksFinal}
	s.Init(ctx, s)
	return s, nil
}

func (s *MergeSort) Children() []executor.QPop { return []executor.QPop{s.Input} }
func (s *MergeSort) MemoryBlocksRequired() int {
	if s.NumMemoryBlocks > s.NumMemoryBlocksFinal {
		return s.NumMemoryBlocks
	}
	return s.NumMemoryBlocksFinal
}

func (s *MergeSort) PstrMore() []string {
	parts := make([]string, len(s.Exprs))
	for i, e := range s.Exprs {
		dir := "DESC"
		if s.OrdersAsc[i] {
			dir = "ASC"
		}
		parts[i] = e.ToStr() + " " + dir
	}
	return []string{
		strings.Join(parts, ", "),
		fmt.Sprintf("# memory blocks: %d (%d last pass)", s.NumMemoryBlocks, s.NumMemoryBlocksFinal),
	}
}

func (s *MergeSort) columnInChild(e valexpr.Expr, inputProps executor.CompiledProps) (int, bool) {
	switch x := e.(type) {
	case *valexpr.RelativeColumnRef:
		if x.InputIndex() == 0 {
			return x.ColumnIndex(), true
		}
	case *valexpr.NamedColumnRef:
		return valexpr.FindColumnInLineage(x.TableAlias(), x.ColumnName(), inputProps.OutputLineage)
	}
	return 0, false
}

func (s *MergeSort) Compiled() (executor.CompiledProps, error) {
	return s.Base.Compiled(func() (executor.CompiledProps, error) {
		inputProps, err := s.Input.Compiled()
		if err != nil {
			return executor.CompiledProps{}, err
		}
		execs := make([]valexpr.Compiled, len(s.Exprs))
		for i, e := range s.Exprs {
			ex, err := valexpr.Compile(e, []valexpr.OutputLineage{inputProps.OutputLineage})
			if err != nil {
				return executor.CompiledProps{}, err
			}
			execs[i] = ex
		}
		cc := &compiledComparator{execs: execs, asc: s.OrdersAsc}
		s.cmpState = cc
		s.cmp = cc.compare

		var ordered []int
		var orderedAsc []bool
		seen := map[int]struct{}{}
		for i, e := range s.Exprs {
			col, ok := s.columnInChild(e, inputProps)
			if !ok {
				break
			}
			ordered = append(ordered, col)
			orderedAsc = append(orderedAsc, s.OrdersAsc[i])
			seen[col] = struct{}{}
		}
		if len(ordered) == len(s.Exprs) {
			for j, col := range inputProps.OrderedColumns {
				if _, dup := seen[col]; dup {
					continue
				}
				ordered = append(ordered, col)
				orderedAsc = append(orderedAsc, inputProps.OrderedAsc[j])
			}
		}
		out := inputProps
		out.OrderedColumns = ordered
		out.OrderedAsc = orderedAsc
		return out, nil
	})
}

func (s *MergeSort) Estimated() (executor.EstimatedProps, error) {
	return s.Base.Estimated(func() (executor.CompiledProps, error) { return s.Compiled() },
		func(compiled executor.CompiledProps) (executor.EstimatedProps, error) {
			inputEst, err := s.Input.Estimated()
			if err != nil {
				return executor.EstimatedProps{}, err
			}
			blocks := inputEst.Blocks.Overall
			numPasses := 1
			numRuns := int(math.Ceil(float64(blocks) / float64(s.NumMemoryBlocks)))
			for numRuns > s.NumMemoryBlocksFinal {
				numPasses++
				numRuns = int(math.Ceil(float64(numRuns) / float64(s.NumMemoryBlocks-1)))
			}
			selfReads := blocks * (numPasses - 1)
			selfWrites := blocks * (numPasses - 1)
			return executor.EstimatedProps{
				RowCount: inputEst.RowCount,
				RowSize:  inputEst.RowSize,
				Blocks: executor.StatsInBlocks{
					SelfReads:  selfReads,
					SelfWrites: selfWrites,
					Overall:    inputEst.Blocks.Overall + selfReads + selfWrites,
				},
			}, nil
		})
}

func (s *MergeSort) Execute() (func() (types.Row, bool, error), error) {
	if _, err := s.Compiled(); err != nil {
		return nil, err
	}
	compiled, err := s.Compiled()
	if err != nil {
		return nil, err
	}
	inputNext, err := s.Input.Execute()
	if err != nil {
		return nil, err
	}

	names := make(map[*storage.HeapFile]string)
	create := func(level, run int) (*storage.HeapFile, error) {
		f, name, err := s.Context.Tmp.New(level, run, compiled.OutputMetadata.ColumnTypes)
		if err != nil {
			return nil, err
		}
		names[f] = name
		return f, nil
	}
	del := func(f *storage.HeapFile) error {
		name, ok := names[f]
		if !ok {
			return ddberrors.Execution.New("attempted to delete an unknown temporary run")
		}
		delete(names, f)
		return s.Context.Tmp.Delete(name)
	}

	buffer, err := extsort.New(s.cmp, create, del, s.NumMemoryBlocks, s.NumMemoryBlocksFinal, false)
	if err != nil {
		return nil, err
	}
	for {
		row, ok, err := inputNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := buffer.Add(row); err != nil {
			return nil, err
		}
		if s.cmpState.err != nil {
			return nil, s.cmpState.err
		}
	}

	var sorted []types.Row
	if err := buffer.IterAndClear(func(r types.Row) error {
		sorted = append(sorted, r)
		return nil
	}); err != nil {
		return nil, err
	}
	if s.cmpState.err != nil {
		return nil, s.cmpState.err
	}
	i := 0
	raw := func() (types.Row, bool, error) {
		if i >= len(sorted) {
			return nil, false, nil
		}
		r := sorted[i]
		i++
		return r, true, nil
	}
	return executor.TraceExecute(&s.Base, "MergeSort", raw), nil
}
