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

// Package rowops implements the row-at-a-time physical operators (§4.6)
// that neither need extra memory nor change row count order: Filter and
// Project.
package rowops

import (
	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// Filter drops rows for which Cond evaluates to false. Grounded on the
// original filter.FilterPop; Cond is compiled once (relative to Input's
// lineage) and reused for every row.
type Filter struct {
	executor.Base
	Input executor.QPop
	Cond  valexpr.Expr

	condExec valexpr.Compiled
}

func NewFilter(ctx *executor.StatementContext, input executor.QPop, cond valexpr.Expr) *Filter {
	f := &Filter{Input: input, Cond: cond}
	f.Init(ctx, f)
	return f
}

func (f *Filter) Children() []executor.QPop { return []executor.QPop{f.Input} }
func (f *Filter) MemoryBlocksRequired() int { return 0 }
func (f *Filter) PstrMore() []string        { return []string{"filter condition: " + f.Cond.ToStr()} }

func (f *Filter) Compiled() (executor.CompiledProps, error) {
	return f.Base.Compiled(func() (executor.CompiledProps, error) {
		inputProps, err := f.Input.Compiled()
		if err != nil {
			return executor.CompiledProps{}, err
		}
		exec, err := valexpr.Compile(f.Cond, []valexpr.OutputLineage{inputProps.OutputLineage})
		if err != nil {
			return executor.CompiledProps{}, err
		}
		f.condExec = exec
		return inputProps, nil
	})
}

func (f *Filter) Estimated() (executor.EstimatedProps, error) {
	return f.Base.Estimated(func() (executor.CompiledProps, error) { return f.Compiled() },
		func(executor.CompiledProps) (executor.EstimatedProps, error) {
			inputEst, err := f.Input.Estimated()
			if err != nil {
				return executor.EstimatedProps{}, err
			}
			return executor.EstimatedProps{
				RowSize: inputEst.RowSize,
				Blocks:  executor.StatsInBlocks{Overall: inputEst.Blocks.Overall},
			}, nil
		})
}

func (f *Filter) Execute() (func() (types.Row, bool, error), error) {
	if _, err := f.Compiled(); err != nil {
		return nil, err
	}
	inputNext, err := f.Input.Execute()
	if err != nil {
		return nil, err
	}
	raw := func() (types.Row, bool, error) {
		for {
			row, ok, err := inputNext()
			if err != nil || !ok {
				return nil, false, err
			}
			keep, err := f.condExec([]types.Row{row})
			if err != nil {
				return nil, false, err
			}
			if b, _ := keep.(bool); b {
				return row, true, nil
			}
		}
	}
	return executor.TraceExecute(&f.Base, "Filter", raw), nil
}
