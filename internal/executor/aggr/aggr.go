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

// Package aggr implements the grouped aggregation physical operator (§4.9).
package aggr

import (
	"fmt"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/extsort"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// Aggr computes the given aggregate expressions over pre-grouped input:
// rows sharing a group-by value must already be contiguous (the planner
// guarantees this by inserting a sort ahead of the operator, §4.10). For an
// incremental aggregate (including MIN/MAX, DISTINCT or not), each new value
// folds directly into the running state; a non-incremental aggregate
// (DISTINCT COUNT/SUM/AVG/STDDEV_POP) instead
// buffers the group's input values in its own extsort.ExtSortBuffer and
// folds them in sorted (deduplicated, if DISTINCT) order once the group
// boundary is reached. Grounded on the original executor.aggr.AggrPop,
// restructured as a single pass over the input (the original reruns the
// whole input once per aggregate when any aggregate needs buffering;
// here the input is read once and only the aggregates that need it
// buffer).
type Aggr struct {
	executor.Base
	Input           executor.QPop
	GroupByExprs    []valexpr.Expr
	AggrExprs       []valexpr.AggrExpr
	ColumnNames     []string // parallel to GroupByExprs++AggrExprs; "" entries auto-name
	NumMemoryBlocks int

	outputTableName string
	groupByExecs    []valexpr.Compiled
	aggrInputExecs  []valexpr.Compiled
}

func NewAggr(ctx *executor.StatementContext, input executor.QPop, groupByExprs []valexpr.Expr, aggrExprs []valexpr.AggrExpr, columnNames []string, numMemoryBlocks int) (*Aggr, error) {
	numNonIncremental := 0
	for _, a := range aggrExprs {
		if !a.IsIncremental() {
			numNonIncremental++
		}
	}
	if numMemoryBlocks < 3*numNonIncremental {
		return nil, ddberrors.Configuration.New("aggregation needs at least 3 memory blocks for each non-incremental aggregate")
	}
	a := &Aggr{Input: input, GroupByExprs: groupByExprs, AggrExprs: aggrExprs, NumMemoryBlocks: numMemoryBlocks}
	a.outputTableName = fmt.Sprintf("$aggr_%p", a)
	total := len(groupByExprs) + len(aggrExprs)
	a.ColumnNames = make([]string, total)
	for i := 0; i < total; i++ {
		name := ""
		if columnNames != nil && i < len(columnNames) {
			name = columnNames[i]
		}
		if name == "" {
			if i < len(groupByExprs) {
				if ref, ok := groupByExprs[i].(*valexpr.NamedColumnRef); ok {
					name = ref.ColumnName()
				}
			}
			if name == "" {
				name = fmt.Sprintf("$col%d", i)
			}
		}
		a.ColumnNames[i] = name
	}
	a.Init(ctx, a)
	return a, nil
}

func (a *Aggr) Children() []executor.QPop { return []executor.QPop{a.Input} }
func (a *Aggr) MemoryBlocksRequired() int { return a.NumMemoryBlocks }
func (a *Aggr) PstrMore() []string {
	lines := []string{fmt.Sprintf("AS %s:", a.outputTableName)}
	for i, e := range a.GroupByExprs {
		lines = append(lines, fmt.Sprintf("  group by %s: %s", a.ColumnNames[i], e.ToStr()))
	}
	for i, e := range a.AggrExprs {
		lines = append(lines, fmt.Sprintf("  %s: %s", a.ColumnNames[len(a.GroupByExprs)+i], e.ToStr()))
	}
	return lines
}

func (a *Aggr) columnInChild(e valexpr.Expr, inputProps executor.CompiledProps) (int, bool) {
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

func (a *Aggr) Compiled() (executor.CompiledProps, error) {
	return a.Base.Compiled(func() (executor.CompiledProps, error) {
		inputProps, err := a.Input.Compiled()
		if err != nil {
			return executor.CompiledProps{}, err
		}
		colTypes := make(types.RowType, len(a.ColumnNames))
		outputLineage := make(valexpr.OutputLineage, len(a.ColumnNames))
		preserved := map[int]int{} // input column index -> output column index
		for i, e := range a.GroupByExprs {
			colTypes[i] = e.ValType()
			lineage := map[valexpr.ColumnKey]struct{}{{TableAlias: a.outputTableName, ColumnName: a.ColumnNames[i]}: {}}
			if inputCol, ok := a.columnInChild(e, inputProps); ok {
				for k := range inputProps.OutputLineage[inputCol] {
					lineage[k] = struct{}{}
				}
				preserved[inputCol] = i
			}
			outputLineage[i] = lineage
		}
		for i, e := range a.AggrExprs {
			idx := len(a.GroupByExprs) + i
			colTypes[idx] = e.ValType()
			outputLineage[idx] = map[valexpr.ColumnKey]struct{}{{TableAlias: a.outputTableName, ColumnName: a.ColumnNames[idx]}: {}}
		}
		var ordered []int
		var orderedAsc []bool
		for j, inputCol := range inputProps.OrderedColumns {
			outCol, ok := preserved[inputCol]
			if !ok {
				break
			}
			ordered = append(ordered, outCol)
			orderedAsc = append(orderedAsc, inputProps.OrderedAsc[j])
		}
		unique := map[int]struct{}{}
		for inputCol := range inputProps.UniqueColumns {
			if outCol, ok := preserved[inputCol]; ok {
				unique[outCol] = struct{}{}
			}
		}
		// grouping enforces uniqueness of the group-by tuple as a whole, but
		// only single-column uniqueness is tracked.
		if len(a.GroupByExprs) == 1 {
			unique[0] = struct{}{}
		}

		groupByExecs := make([]valexpr.Compiled, len(a.GroupByExprs))
		for i, e := range a.GroupByExprs {
			ex, err := valexpr.Compile(e, []valexpr.OutputLineage{inputProps.OutputLineage})
			if err != nil {
				return executor.CompiledProps{}, err
			}
			groupByExecs[i] = ex
		}
		aggrInputExecs := make([]valexpr.Compiled, len(a.AggrExprs))
		for i, e := range a.AggrExprs {
			ex, err := valexpr.Compile(e.Arg(), []valexpr.OutputLineage{inputProps.OutputLineage})
			if err != nil {
				return executor.CompiledProps{}, err
			}
			aggrInputExecs[i] = ex
		}
		a.groupByExecs, a.aggrInputExecs = groupByExecs, aggrInputExecs
		return executor.CompiledProps{
			OutputMetadata: metadata.TableMetadata{ColumnNames: a.ColumnNames, ColumnTypes: colTypes},
			OutputLineage:  outputLineage,
			OrderedColumns: ordered,
			OrderedAsc:     orderedAsc,
			UniqueColumns:  unique,
		}, nil
	})
}

func (a *Aggr) Estimated() (executor.EstimatedProps, error) {
	return a.Base.Estimated(func() (executor.CompiledProps, error) { return a.Compiled() },
		func(compiled executor.CompiledProps) (executor.EstimatedProps, error) {
			inputEst, err := a.Input.Estimated()
			if err != nil {
				return executor.EstimatedProps{}, err
			}
			return executor.EstimatedProps{
				RowCount: inputEst.RowCount, // refined by planner-side stats; §4.9 leaves this as an upper bound
				RowSize:  types.RowSize(compiled.OutputMetadata.ColumnTypes),
				Blocks:   executor.StatsInBlocks{Overall: inputEst.Blocks.Overall},
			}, nil
		})
}

func (a *Aggr) groupKey(row types.Row) ([]any, error) {
	key := make([]any, len(a.groupByExecs))
	for i, ex := range a.groupByExecs {
		v, err := ex([]types.Row{row})
		if err != nil {
			return nil, err
		}
		key[i] = v
	}
	return key, nil
}

func groupKeysEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if valexpr.CompareValues(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

// slot accumulates one aggregate's running state across a group: either
// directly (incremental) or by buffering the group's values to sort (and
// optionally dedup) before folding them all in at the group boundary.
type slot struct {
	aggr  valexpr.AggrExpr
	state any
	buf   *extsort.ExtSortBuffer // nil for incremental aggregates
}

func (a *Aggr) newSlots() ([]*slot, error) {
	slots := make([]*slot, len(a.AggrExprs))
	for i, ag := range a.AggrExprs {
		s := &slot{aggr: ag, state: ag.Init()}
		if !ag.IsIncremental() {
			names := make(map[*storage.HeapFile]string)
			buf, err := extsort.New(
				func(this, that types.Row) int { return valexpr.CompareValues(this[0], that[0]) },
				func(level, run int) (*storage.HeapFile, error) {
					f, name, err := a.Context.Tmp.New(level, run, types.RowType{ag.ValType()})
					if err != nil {
						return nil, err
					}
					names[f] = name
					return f, nil
				},
				func(f *storage.HeapFile) error {
					name, ok := names[f]
					if !ok {
						return nil
					}
					delete(names, f)
					return a.Context.Tmp.Delete(name)
				},
				a.NumMemoryBlocks, a.NumMemoryBlocks, ag.IsDistinct())
			if err != nil {
				return nil, err
			}
			s.buf = buf
		}
		slots[i] = s
	}
	return slots, nil
}

// finalizeGroup folds any buffered (non-incremental) slots and produces the
// finalized output row for groupKey.
func (a *Aggr) finalizeGroup(groupKey []any, slots []*slot) (types.Row, error) {
	for _, s := range slots {
		if s.buf == nil {
			continue
		}
		if err := s.buf.IterAndClear(func(r types.Row) error {
			s.state = s.aggr.Add(s.state, r[0])
			return nil
		}); err != nil {
			return nil, err
		}
	}
	out := make(types.Row, len(groupKey)+len(slots))
	copy(out, groupKey)
	for i, s := range slots {
		out[len(groupKey)+i] = s.aggr.Finalize(s.state)
	}
	return out, nil
}

func (a *Aggr) Execute() (func() (types.Row, bool, error), error) {
	if _, err := a.Compiled(); err != nil {
		return nil, err
	}
	inputNext, err := a.Input.Execute()
	if err != nil {
		return nil, err
	}

	var currentKey []any
	var slots []*slot
	haveGroup := false
	done := false

	emitGroup := func() (types.Row, error) {
		row, err := a.finalizeGroup(currentKey, slots)
		haveGroup = false
		return row, err
	}

	raw := func() (types.Row, bool, error) {
		if done {
			return nil, false, nil
		}
		for {
			row, ok, err := inputNext()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				done = true
				if haveGroup {
					out, err := emitGroup()
					if err != nil {
						return nil, false, err
					}
					return out, true, nil
				}
				return nil, false, nil
			}
			key, err := a.groupKey(row)
			if err != nil {
				return nil, false, err
			}
			if !haveGroup {
				currentKey = key
				slots, err = a.newSlots()
				if err != nil {
					return nil, false, err
				}
				haveGroup = true
			} else if !groupKeysEqual(currentKey, key) {
				out, err := emitGroup()
				if err != nil {
					return nil, false, err
				}
				currentKey = key
				slots, err = a.newSlots()
				if err != nil {
					return nil, false, err
				}
				haveGroup = true
				// fold row into the new group below before returning out
				if err := a.foldRow(row, slots); err != nil {
					return nil, false, err
				}
				return out, true, nil
			}
			if err := a.foldRow(row, slots); err != nil {
				return nil, false, err
			}
		}
	}
	return executor.TraceExecute(&a.Base, "Aggr", raw), nil
}

func (a *Aggr) foldRow(row types.Row, slots []*slot) error {
	for i, s := range slots {
		v, err := a.aggrInputExecs[i]([]types.Row{row})
		if err != nil {
			return err
		}
		if s.buf != nil {
			if err := s.buf.Add(types.Row{v}); err != nil {
				return err
			}
			continue
		}
		s.state = s.aggr.Add(s.state, v)
	}
	return nil
}
