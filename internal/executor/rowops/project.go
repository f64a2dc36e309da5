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

package rowops

import (
	"fmt"

	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// Project computes a fixed list of output expressions per input row,
// duplicate-preserving (no dedup). Grounded on the original
// project.ProjectPop: an output column that is a direct reference to an
// input column both inherits that column's lineage (so downstream
// operators can still resolve it by its original qualified name) and
// propagates the input's ordering/uniqueness through any column it
// preserves, stopping at the first output column that isn't a preserved
// input reference.
type Project struct {
	executor.Base
	Input       executor.QPop
	Exprs       []valexpr.Expr
	ColumnNames []string // parallel to Exprs; entries may be "" for auto-naming

	outputTableName string
	outputExecs     []valexpr.Compiled
}

func NewProject(ctx *executor.StatementContext, input executor.QPop, exprs []valexpr.Expr, columnNames []string) *Project {
	p := &Project{Input: input, Exprs: exprs, ColumnNames: make([]string, len(exprs))}
	p.outputTableName = fmt.Sprintf("$project_%p", p)
	for i, e := range exprs {
		name := ""
		if columnNames != nil && i < len(columnNames) {
			name = columnNames[i]
		}
		if name == "" {
			if ref, ok := e.(*valexpr.NamedColumnRef); ok {
				name = ref.ColumnName()
			} else {
				name = fmt.Sprintf("$col%d", i)
			}
		}
		p.ColumnNames[i] = name
	}
	p.Init(ctx, p)
	return p
}

func (p *Project) Children() []executor.QPop { return []executor.QPop{p.Input} }
func (p *Project) MemoryBlocksRequired() int { return 0 }
func (p *Project) PstrMore() []string {
	lines := []string{fmt.Sprintf("AS %s:", p.outputTableName)}
	for i, e := range p.Exprs {
		lines = append(lines, fmt.Sprintf("  %s: %s", p.ColumnNames[i], e.ToStr()))
	}
	return lines
}

func (p *Project) columnInChild(e valexpr.Expr) (int, bool) {
	switch x := e.(type) {
	case *valexpr.RelativeColumnRef:
		if x.InputIndex() == 0 {
			return x.ColumnIndex(), true
		}
	case *valexpr.NamedColumnRef:
		inputProps, err := p.Input.Compiled()
		if err != nil {
			return 0, false
		}
		return valexpr.FindColumnInLineage(x.TableAlias(), x.ColumnName(), inputProps.OutputLineage)
	}
	return 0, false
}

func (p *Project) Compiled() (executor.CompiledProps, error) {
	return p.Base.Compiled(func() (executor.CompiledProps, error) {
		inputProps, err := p.Input.Compiled()
		if err != nil {
			return executor.CompiledProps{}, err
		}
		colTypes := make(types.RowType, len(p.Exprs))
		outputLineage := make(valexpr.OutputLineage, len(p.Exprs))
		preserved := map[int]int{} // input column index -> output column index
		for i, e := range p.Exprs {
			colTypes[i] = e.ValType()
			lineage := map[valexpr.ColumnKey]struct{}{{TableAlias: p.outputTableName, ColumnName: p.ColumnNames[i]}: {}}
			if inputCol, ok := p.columnInChild(e); ok {
				for k := range inputProps.OutputLineage[inputCol] {
					lineage[k] = struct{}{}
				}
				preserved[inputCol] = i
			}
			outputLineage[i] = lineage
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
		execs := make([]valexpr.Compiled, len(p.Exprs))
		for i, e := range p.Exprs {
			ex, err := valexpr.Compile(e, []valexpr.OutputLineage{inputProps.OutputLineage})
			if err != nil {
				return executor.CompiledProps{}, err
			}
			execs[i] = ex
		}
		p.outputExecs = execs
		return executor.CompiledProps{
			OutputMetadata: metadata.TableMetadata{ColumnNames: p.ColumnNames, ColumnTypes: colTypes},
			OutputLineage:  outputLineage,
			OrderedColumns: ordered,
			OrderedAsc:     orderedAsc,
			UniqueColumns:  unique,
		}, nil
	})
}

func (p *Project) Estimated() (executor.EstimatedProps, error) {
	return p.Base.Estimated(func() (executor.CompiledProps, error) { return p.Compiled() },
		func(compiled executor.CompiledProps) (executor.EstimatedProps, error) {
			inputEst, err := p.Input.Estimated()
			if err != nil {
				return executor.EstimatedProps{}, err
			}
			return executor.EstimatedProps{
				RowCount: inputEst.RowCount,
				RowSize:  types.RowSize(compiled.OutputMetadata.ColumnTypes),
				Blocks:   executor.StatsInBlocks{Overall: inputEst.Blocks.Overall},
			}, nil
		})
}

func (p *Project) Execute() (func() (types.Row, bool, error), error) {
	if _, err := p.Compiled(); err != nil {
		return nil, err
	}
	inputNext, err := p.Input.Execute()
	if err != nil {
		return nil, err
	}
	raw := func() (types.Row, bool, error) {
		row, ok, err := inputNext()
		if err != nil || !ok {
			return nil, false, err
		}
		out := make(types.Row, len(p.outputExecs))
		for i, exec := range p.outputExecs {
			v, err := exec([]types.Row{row})
			if err != nil {
				return nil, false, err
			}
			out[i] = v
		}
		return out, true, nil
	}
	return executor.TraceExecute(&p.Base, "Project", raw), nil
}
