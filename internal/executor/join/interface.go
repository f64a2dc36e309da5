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

// Package join implements the binary join physical operators (§4.8):
// BNLJ (block nested-loop), MergeEqJ (sort-merge equijoin), IndexNLJ
// (index nested-loop), and HashEqJ (recursive-partitioning hash join).
// All four produce an output row that is simply the left row followed
// by the right row.
package join

import (
	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// concat appends right onto a copy of left, the output row shape shared
// by every join operator in this package.
func concat(left, right types.Row) types.Row {
	out := make(types.Row, len(left)+len(right))
	copy(out, left)
	copy(out[len(left):], right)
	return out
}

// columnInChild mirrors the identically-named helper duplicated across
// rowops/sortop: resolves e to a column index of input childIndex, if e is
// a direct reference to one.
func columnInChild(e valexpr.Expr, childIndex int, childProps executor.CompiledProps) (int, bool) {
	switch x := e.(type) {
	case *valexpr.RelativeColumnRef:
		if x.InputIndex() == childIndex {
			return x.ColumnIndex(), true
		}
	case *valexpr.NamedColumnRef:
		return valexpr.FindColumnInLineage(x.TableAlias(), x.ColumnName(), childProps.OutputLineage)
	}
	return 0, false
}

// fromInputsSchema concatenates two CompiledProps' output schema and
// lineage, the baseline every join operator starts its own Compiled() from
// before working out ordering/uniqueness. Grounded on QPop.CompiledProps.from_inputs.
func fromInputsSchema(left, right executor.CompiledProps) executor.CompiledProps {
	return executor.FromInputs(left, right)
}
