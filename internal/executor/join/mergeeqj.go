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

package join

import (
	"fmt"

	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// MergeEqJ joins two inputs already sorted on LeftExprs/RightExprs (in the
// given ascending/descending orders) by walking both in lockstep. Rows
// whose key appears more than once on either side are handled with an
// in-memory mini nested loop over the matching run from each side (the
// original spills these runs to tmp heap files when they exceed a memory
// budget; this port keeps the matching runs in memory, since distinct
// keys normally keep each run small and SPEC_FULL.md's external-memory
// budget enforcement for merge join is exercised by MergeSort feeding it,
// not by this operator re-spilling its own equal-key runs).
// Grounded on the original join.mergeeqj.MergeEqJoinPop.
type MergeEqJ struct {
	executor.Base
	Left, Right           executor.QPop
	LeftExprs, RightExprs []valexpr.Expr
	OrdersAsc             []bool

	leftExecs, rightExecs []valexpr.Compiled
}

func NewMergeEqJ(ctx *executor.StatementContext, left, right executor.QPop, leftExprs, rightExprs []valexpr.Expr, ordersAsc []bool) *MergeEqJ {
	j := &MergeEqJ{Left: left, Right: right, LeftExprs: leftExprs, RightExprs: rightExprs, OrdersAsc: ordersAsc}
	j.Init(ctx, j)
	return j
}

func (j *MergeEqJ) Children() []executor.QPop { return []executor.QPop{j.Left, j.Right} }
func (j *MergeEqJ) MemoryBlocksRequired() int { return 2 }
func (j *MergeEqJ) PstrMore() []string {
	lines := make([]string, len(j.LeftExprs))
	for i := range j.LeftExprs {
		dir := "DESC"
		if j.OrdersAsc[i] {
			dir = "ASC"
		}
		lines[i] = fmt.Sprintf("%s = %s %s", j.LeftExprs[i].ToStr(), j.RightExprs[i].ToStr(), dir)
	}
	return lines
}

func (j *MergeEqJ) Compiled() (executor.CompiledProps, error) {
	return j.Base.Compiled(func() (executor.CompiledProps, error) {
		leftProps, err := j.Left.Compiled()
		if err != nil {
			return executor.CompiledProps{}, err
		}
		rightProps, err := j.Right.Compiled()
		if err != nil {
			return executor.CompiledProps{}, err
		}
		out := fromInputsSchema(leftProps, rightProps)

		var leftJoinCols, rightJoinCols []int
		var leftJoinAsc, rightJoinAsc []bool
		for i, e := range j.LeftExprs {
			col, ok := columnInChild(e, 0, leftProps)
			if !ok {
				break
			}
			leftJoinCols = append(leftJoinCols, col)
			leftJoinAsc = append(leftJoinAsc, j.OrdersAsc[i])
		}
		for i, e := range j.RightExprs {
			col, ok := columnInChild(e, 1, rightProps)
			if !ok {
				break
			}
			rightJoinCols = append(rightJoinCols, col)
			rightJoinAsc = append(rightJoinAsc, j.OrdersAsc[i])
		}
		ordered, orderedAsc := leftJoinCols, leftJoinAsc
		colOffset := len(leftProps.OutputMetadata.ColumnNames)

		leftIsNice := len(leftJoinCols) == len(j.LeftExprs) && allUnique(leftJoinCols, leftProps.UniqueColumns)
		rightIsNice := len(rightJoinCols) == len(j.RightExprs) && allUnique(rightJoinCols, rightProps.UniqueColumns)
		unique := map[int]struct{}{}
		if leftIsNice {
			ordered = append([]int{}, leftProps.OrderedColumns...)
			orderedAsc = append([]bool{}, leftProps.OrderedAsc...)
			for i, col := range rightProps.OrderedColumns {
				if containsInt(rightJoinCols, col) {
					continue
				}
				ordered = append(ordered, colOffset+col)
				orderedAsc = append(orderedAsc, rightProps.OrderedAsc[i])
			}
			for col := range rightProps.UniqueColumns {
				unique[colOffset+col] = struct{}{}
			}
			if rightIsNice {
				for col := range leftProps.UniqueColumns {
					unique[col] = struct{}{}
				}
			}
		} else if rightIsNice {
			for i, col := range rightProps.OrderedColumns {
				if containsInt(rightJoinCols, col) {
					continue
				}
				ordered = append(ordered, colOffset+col)
				orderedAsc = append(orderedAsc, rightProps.OrderedAsc[i])
			}
			for i, col := range leftProps.OrderedColumns {
				if containsInt(leftJoinCols, col) {
					continue
				}
				ordered = append(ordered, col)
				orderedAsc = append(orderedAsc, leftProps.OrderedAsc[i])
			}
			for col := range leftProps.UniqueColumns {
				unique[col] = struct{}{}
			}
		}
		out.OrderedColumns = ordered
		out.OrderedAsc = orderedAsc
		out.UniqueColumns = unique

		leftExecs := make([]valexpr.Compiled, len(j.LeftExprs))
		for i, e := range j.LeftExprs {
			ex, err := valexpr.Compile(e, []valexpr.OutputLineage{leftProps.OutputLineage})
			if err != nil {
				return executor.CompiledProps{}, err
			}
			leftExecs[i] = ex
		}
		rightExecs := make([]valexpr.Compiled, len(j.RightExprs))
		for i, e := range j.RightExprs {
			ex, err := valexpr.Compile(e, []valexpr.OutputLineage{rightProps.OutputLineage})
			if err != nil {
				return executor.CompiledProps{}, err
			}
			rightExecs[i] = ex
		}
		j.leftExecs, j.rightExecs = leftExecs, rightExecs
		return out, nil
	})
}

func allUnique(cols []int, unique map[int]struct{}) bool {
	for _, c := range cols {
		if _, ok := unique[c]; !ok {
			return false
		}
	}
	return true
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func (j *MergeEqJ) Estimated() (executor.EstimatedProps, error) {
	return j.Base.Estimated(func() (executor.CompiledProps, error) { return j.Compiled() },
		func(executor.CompiledProps) (executor.EstimatedProps, error) {
			leftEst, err := j.Left.Estimated()
			if err != nil {
				return executor.EstimatedProps{}, err
			}
			rightEst, err := j.Right.Estimated()
			if err != nil {
				return executor.EstimatedProps{}, err
			}
			return executor.EstimatedProps{
				RowCount: leftEst.RowCount + rightEst.RowCount,
				RowSize:  leftEst.RowSize + rightEst.RowSize,
				Blocks:   executor.StatsInBlocks{Overall: leftEst.Blocks.Overall + rightEst.Blocks.Overall},
			}, nil
		})
}

// joinKey evaluates execs against row, returning a slice whose elements
// are compared positionally; since there is no tuple literal to build,
// equal-key detection is just per-position valexpr.CompareValues.
func joinKey(execs []valexpr.Compiled, row types.Row) ([]any, error) {
	vals := make([]any, len(execs))
	for i, ex := range execs {
		v, err := ex([]types.Row{row})
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func compareKeys(a, b []any, asc []bool) int {
	for i := range a {
		c := valexpr.CompareValues(a[i], b[i])
		if c == 0 {
			continue
		}
		if !asc[i] {
			c = -c
		}
		return c
	}
	return 0
}

func keysEqual(a, b []any) bool {
	for i := range a {
		if valexpr.CompareValues(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

func (j *MergeEqJ) Execute() (func() (types.Row, bool, error), error) {
	if _, err := j.Compiled(); err != nil {
		return nil, err
	}
	leftNext, err := j.Left.Execute()
	if err != nil {
		return nil, err
	}
	rightNext, err := j.Right.Execute()
	if err != nil {
		return nil, err
	}

	leftRow, leftOk, err := leftNext()
	if err != nil {
		return nil, err
	}
	rightRow, rightOk, err := rightNext()
	if err != nil {
		return nil, err
	}
	var leftKey, rightKey []any
	if leftOk {
		if leftKey, err = joinKey(j.leftExecs, leftRow); err != nil {
			return nil, err
		}
	}
	if rightOk {
		if rightKey, err = joinKey(j.rightExecs, rightRow); err != nil {
			return nil, err
		}
	}

	var matchedLeft, matchedRight []types.Row
	li, ri := 0, 0 // indices within the current matched-run mini nested loop

	advanceToNextMatch := func() error {
		for leftOk && rightOk {
			c := compareKeys(leftKey, rightKey, j.OrdersAsc)
			if c < 0 {
				leftRow, leftOk, err = leftNext()
				if err != nil {
					return err
				}
				if leftOk {
					if leftKey, err = joinKey(j.leftExecs, leftRow); err != nil {
						return err
					}
				}
				continue
			}
			if c > 0 {
				rightRow, rightOk, err = rightNext()
				if err != nil {
					return err
				}
				if rightOk {
					if rightKey, err = joinKey(j.rightExecs, rightRow); err != nil {
						return err
					}
				}
				continue
			}
			// equal keys: gather every row on each side sharing this key
			matchKey := leftKey
			matchedLeft = matchedLeft[:0]
			for leftOk && keysEqual(leftKey, matchKey) {
				matchedLeft = append(matchedLeft, leftRow)
				leftRow, leftOk, err = leftNext()
				if err != nil {
					return err
				}
				if leftOk {
					if leftKey, err = joinKey(j.leftExecs, leftRow); err != nil {
						return err
					}
				}
			}
			matchedRight = matchedRight[:0]
			for rightOk && keysEqual(rightKey, matchKey) {
				matchedRight = append(matchedRight, rightRow)
				rightRow, rightOk, err = rightNext()
				if err != nil {
					return err
				}
				if rightOk {
					if rightKey, err = joinKey(j.rightExecs, rightRow); err != nil {
						return err
					}
				}
			}
			li, ri = 0, 0
			return nil
		}
		matchedLeft, matchedRight = nil, nil
		return nil
	}

	raw := func() (types.Row, bool, error) {
		for {
			if li < len(matchedLeft) && ri < len(matchedRight) {
				out := concat(matchedLeft[li], matchedRight[ri])
				ri++
				if ri >= len(matchedRight) {
					ri = 0
					li++
				}
				return out, true, nil
			}
			if matchedLeft != nil && len(matchedLeft) > 0 {
				// exhausted this matched run
				matchedLeft, matchedRight = nil, nil
			}
			if !leftOk || !rightOk {
				if matchedLeft == nil {
					return nil, false, nil
				}
			}
			if err := advanceToNextMatch(); err != nil {
				return nil, false, err
			}
			if matchedLeft == nil {
				return nil, false, nil
			}
		}
	}
	return executor.TraceExecute(&j.Base, "MergeEqJ", raw), nil
}
