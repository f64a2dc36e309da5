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
	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/extsort"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// BNLJ is the block-based nested-loop join: buffers as many left (outer)
// rows as fit in NumMemoryBlocks, then streams the right (inner) input
// once per buffer, testing every buffered left row against every inner
// row. Grounded on the original join.bnlj.BNLJoinPop.
type BNLJ struct {
	executor.Base
	Left, Right     executor.QPop
	Cond            valexpr.Expr // nil means an unconditional cross join
	NumMemoryBlocks int

	condExec valexpr.Compiled
}

func NewBNLJ(ctx *executor.StatementContext, left, right executor.QPop, cond valexpr.Expr, numMemoryBlocks int) *BNLJ {
	j := &BNLJ{Left: left, Right: right, Cond: cond, NumMemoryBlocks: numMemoryBlocks}
	j.Init(ctx, j)
	return j
}

func (j *BNLJ) Children() []executor.QPop { return []executor.QPop{j.Left, j.Right} }
func (j *BNLJ) MemoryBlocksRequired() int { return j.NumMemoryBlocks }
func (j *BNLJ) PstrMore() []string {
	if j.Cond == nil {
		return nil
	}
	return []string{"join condition: " + j.Cond.ToStr()}
}

func (j *BNLJ) Compiled() (executor.CompiledProps, error) {
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
		if j.Cond != nil {
			exec, err := valexpr.Compile(j.Cond, []valexpr.OutputLineage{leftProps.OutputLineage, rightProps.OutputLineage})
			if err != nil {
				return executor.CompiledProps{}, err
			}
			j.condExec = exec
		}
		return out, nil
	})
}

func (j *BNLJ) Estimated() (executor.EstimatedProps, error) {
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
			numRightPasses := (leftEst.Blocks.Overall + j.NumMemoryBlocks - 1) / j.NumMemoryBlocks
			if numRightPasses < 1 {
				numRightPasses = 1
			}
			return executor.EstimatedProps{
				RowCount: leftEst.RowCount * rightEst.RowCount,
				RowSize:  leftEst.RowSize + rightEst.RowSize,
				Blocks: executor.StatsInBlocks{
					Overall: leftEst.Blocks.Overall + numRightPasses*rightEst.Blocks.Overall,
				},
			}, nil
		})
}

// bnljState walks: for each outer buffer, for each inner row, for each
// buffered outer row -- matching the original's triple-nested for loop
// exactly, just reshaped into pull form.
type bnljState struct {
	bufferNext func() ([]types.Row, error)
	rightExec  func() (func() (types.Row, bool, error), error)

	outerBuffer []types.Row
	innerNext   func() (types.Row, bool, error)
	innerRow    types.Row
	haveInner   bool
	outerIdx    int
}

func (st *bnljState) nextPair() (types.Row, types.Row, bool, error) {
	for {
		if st.outerBuffer == nil {
			buf, err := st.bufferNext()
			if err != nil {
				return nil, nil, false, err
			}
			if buf == nil {
				return nil, nil, false, nil
			}
			st.outerBuffer = buf
			next, err := st.rightExec()
			if err != nil {
				return nil, nil, false, err
			}
			st.innerNext = next
			st.haveInner = false
		}
		if !st.haveInner {
			row, ok, err := st.innerNext()
			if err != nil {
				return nil, nil, false, err
			}
			if !ok {
				st.outerBuffer = nil
				continue
			}
			st.innerRow = row
			st.haveInner = true
			st.outerIdx = 0
		}
		if st.outerIdx >= len(st.outerBuffer) {
			st.haveInner = false
			continue
		}
		row := st.outerBuffer[st.outerIdx]
		st.outerIdx++
		return row, st.innerRow, true, nil
	}
}

func (j *BNLJ) Execute() (func() (types.Row, bool, error), error) {
	if _, err := j.Compiled(); err != nil {
		return nil, err
	}
	leftNext, err := j.Left.Execute()
	if err != nil {
		return nil, err
	}
	outer := extsort.NewBufferedReader(j.NumMemoryBlocks)
	st := &bnljState{bufferNext: outer.IterBuffer(leftNext), rightExec: j.Right.Execute}

	raw := func() (types.Row, bool, error) {
		for {
			outerRow, innerRow, ok, err := st.nextPair()
			if err != nil || !ok {
				return nil, false, err
			}
			if j.condExec == nil {
				return concat(outerRow, innerRow), true, nil
			}
			keep, err := j.condExec([]types.Row{outerRow, innerRow})
			if err != nil {
				return nil, false, err
			}
			if b, _ := keep.(bool); b {
				return concat(outerRow, innerRow), true, nil
			}
		}
	}
	return executor.TraceExecute(&j.Base, "BNLJ", raw), nil
}
