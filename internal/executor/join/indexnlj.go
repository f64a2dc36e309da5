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
	"github.com/devilsdb/ddb-go/internal/executor/leaf"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// IndexNLJ streams the left (outer) input and, for each outer row, probes
// Right (an *leaf.IndexScan) with a key range computed from Sarg, applying
// an optional extra Cond to each candidate inner row. It needs no memory
// blocks of its own. Grounded on the original join.indexnlj.IndexNLJoinPop.
type IndexNLJ struct {
	executor.Base
	Left  executor.QPop
	Right *leaf.IndexScan
	Sarg  executor.Sarg
	Cond  valexpr.Expr // optional extra condition beyond the sarg range

	keyLowerExec, keyUpperExec valexpr.Compiled
	condExec                   valexpr.Compiled
}

func NewIndexNLJ(ctx *executor.StatementContext, left executor.QPop, right *leaf.IndexScan, sarg executor.Sarg, cond valexpr.Expr) *IndexNLJ {
	j := &IndexNLJ{Left: left, Right: right, Sarg: sarg, Cond: cond}
	j.Init(ctx, j)
	return j
}

func (j *IndexNLJ) Children() []executor.QPop { return []executor.QPop{j.Left, j.Right} }
func (j *IndexNLJ) MemoryBlocksRequired() int { return 0 }
func (j *IndexNLJ) PstrMore() []string {
	lines := []string{"probe right using: " + j.Sarg.String()}
	if j.Cond != nil {
		lines = append(lines, "extra join condition: "+j.Cond.ToStr())
	}
	return lines
}

func (j *IndexNLJ) Compiled() (executor.CompiledProps, error) {
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
		out.OrderedColumns = append([]int{}, leftProps.OrderedColumns...)
		out.OrderedAsc = append([]bool{}, leftProps.OrderedAsc...)

		if j.Sarg.KeyLower != nil && j.Sarg.KeyUpper != nil {
			lowerCol, lowerOk := columnInChild(j.Sarg.KeyLower, 0, leftProps)
			upperCol, upperOk := columnInChild(j.Sarg.KeyUpper, 0, leftProps)
			if lowerOk && upperOk && lowerCol == upperCol {
				colOffset := len(leftProps.OutputMetadata.ColumnNames)
				if len(leftProps.OrderedColumns) == 1 && leftProps.OrderedColumns[0] == lowerCol {
					for i, col := range rightProps.OrderedColumns {
						out.OrderedColumns = append(out.OrderedColumns, colOffset+col)
						out.OrderedAsc = append(out.OrderedAsc, rightProps.OrderedAsc[i])
					}
				}
				if _, unique := leftProps.UniqueColumns[lowerCol]; unique {
					if j.Right.IsByRowID() || j.Right.IsByPrimaryKey() {
						for col := range rightProps.UniqueColumns {
							out.UniqueColumns[colOffset+col] = struct{}{}
						}
					} else {
						out.UniqueColumns = map[int]struct{}{colOffset + 1: {}} // row id column of a secondary-index scan
					}
				}
			}
		}

		var lineages = []valexpr.OutputLineage{leftProps.OutputLineage}
		if j.Sarg.KeyLower != nil {
			ex, err := valexpr.Compile(j.Sarg.KeyLower, lineages)
			if err != nil {
				return executor.CompiledProps{}, err
			}
			j.keyLowerExec = ex
		}
		if j.Sarg.KeyUpper != nil {
			ex, err := valexpr.Compile(j.Sarg.KeyUpper, lineages)
			if err != nil {
				return executor.CompiledProps{}, err
			}
			j.keyUpperExec = ex
		}
		if j.Cond != nil {
			ex, err := valexpr.Compile(j.Cond, []valexpr.OutputLineage{leftProps.OutputLineage, rightProps.OutputLineage})
			if err != nil {
				return executor.CompiledProps{}, err
			}
			j.condExec = ex
		}
		return out, nil
	})
}

func (j *IndexNLJ) Estimated() (executor.EstimatedProps, error) {
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
				RowCount: leftEst.RowCount * rightEst.RowCount,
				RowSize:  leftEst.RowSize + rightEst.RowSize,
				Blocks: executor.StatsInBlocks{
					Overall: leftEst.Blocks.Overall + leftEst.RowCount*rightEst.Blocks.Overall,
				},
			}, nil
		})
}

func (j *IndexNLJ) Execute() (func() (types.Row, bool, error), error) {
	if _, err := j.Compiled(); err != nil {
		return nil, err
	}
	leftNext, err := j.Left.Execute()
	if err != nil {
		return nil, err
	}
	var innerNext func() (types.Row, bool, error)
	var outerRow types.Row

	advance := func() (bool, error) {
		row, ok, err := leftNext()
		if err != nil || !ok {
			return false, err
		}
		outerRow = row
		var keyLower, keyUpper any
		if j.keyLowerExec != nil {
			keyLower, err = j.keyLowerExec([]types.Row{row})
			if err != nil {
				return false, err
			}
		}
		if j.keyUpperExec != nil {
			keyUpper, err = j.keyUpperExec([]types.Row{row})
			if err != nil {
				return false, err
			}
		}
		j.Right.SetRange(keyLower, keyUpper, j.Sarg.LowerExclusive, j.Sarg.UpperExclusive)
		innerNext, err = j.Right.Execute()
		if err != nil {
			return false, err
		}
		return true, nil
	}

	raw := func() (types.Row, bool, error) {
		for {
			if innerNext == nil {
				ok, err := advance()
				if err != nil || !ok {
					return nil, false, err
				}
			}
			innerRow, ok, err := innerNext()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				innerNext = nil
				continue
			}
			if j.condExec != nil {
				keep, err := j.condExec([]types.Row{outerRow, innerRow})
				if err != nil {
					return nil, false, err
				}
				if b, _ := keep.(bool); !b {
					continue
				}
			}
			return concat(outerRow, innerRow), true, nil
		}
	}
	return executor.TraceExecute(&j.Base, "IndexNLJ", raw), nil
}
