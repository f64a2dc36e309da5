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

package valexpr

import (
	"github.com/devilsdb/ddb-go/internal/types"
)

// Compiled evaluates an expression given one row per input; rows[i] is the
// row bound to input i. It is the closure the rest of the executor package
// calls once per row (or per row-pair for join conditions) instead of
// re-walking the expression tree.
type Compiled func(rows []types.Row) (any, error)

// selfCompiler is implemented by every non-leaf node: given already
// compiled children, produce this node's own Compiled evaluator.
type selfCompiler interface {
	compileSelf(children []Compiled) Compiled
}

// leafCompiler is implemented by NamedColumnRef and RelativeColumnRef,
// which need the lineages of their inputs (or nothing, respectively) to
// resolve to a row/column index rather than simply composing child
// evaluators.
type leafCompiler interface {
	compileLeaf(lineages []OutputLineage) (Compiled, error)
}

// Compile turns an expression tree into a Compiled evaluator against the
// given input lineages (one per input row the evaluator will be given).
func Compile(e Expr, lineages []OutputLineage) (Compiled, error) {
	if lc, ok := e.(leafCompiler); ok {
		return lc.compileLeaf(lineages)
	}
	children := e.Children()
	compiledChildren := make([]Compiled, len(children))
	for i, c := range children {
		cc, err := Compile(c, lineages)
		if err != nil {
			return nil, err
		}
		compiledChildren[i] = cc
	}
	sc := e.(selfCompiler)
	return sc.compileSelf(compiledChildren), nil
}

// OutputLineage maps each output column index of some input to the set of
// (table alias, column name) pairs that legitimately reference it.
type OutputLineage []map[ColumnKey]struct{}

// ColumnKey is a (table alias, column name) pair.
type ColumnKey struct {
	TableAlias string
	ColumnName string
}

// NoLineage builds a lineage with no valid qualified name for any of n
// columns (used for purely computed inputs, e.g. an aggregation's output
// before it is re-projected).
func NoLineage(n int) OutputLineage {
	out := make(OutputLineage, n)
	for i := range out {
		out[i] = map[ColumnKey]struct{}{}
	}
	return out
}

// FindColumnInLineage returns the column index referenced by (tableAlias,
// columnName) in the given lineage, if any.
func FindColumnInLineage(tableAlias, columnName string, lineage OutputLineage) (int, bool) {
	key := ColumnKey{tableAlias, columnName}
	for i, valid := range lineage {
		if _, ok := valid[key]; ok {
			return i, true
		}
	}
	return 0, false
}

// ConjunctiveParts decomposes cond into the list of conjuncts of a (possibly
// nested) AND tree. If cond is not an AND, it is returned as the sole part.
func ConjunctiveParts(cond Expr) []Expr {
	if and, ok := cond.(*AND); ok {
		var out []Expr
		for _, c := range and.Children() {
			out = append(out, ConjunctiveParts(c)...)
		}
		return out
	}
	return []Expr{cond}
}

// MakeConjunction is the inverse of ConjunctiveParts: combines a list of
// conditions into a single AND tree, or nil if the list is empty.
func MakeConjunction(conds []Expr) Expr {
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		return NewAND(conds[0], MakeConjunction(conds[1:]))
	}
}

// MustBeEquivalent reports whether e1 and e2 are certainly equivalent
// expressions (same operator, recursively equivalent children). A false
// result does not prove inequivalence, only that equivalence could not be
// established structurally.
func MustBeEquivalent(e1, e2 Expr) bool {
	if !e1.IsOpEquivalent(e2) {
		return false
	}
	c1, c2 := e1.Children(), e2.Children()
	if len(c1) != len(c2) {
		return false
	}
	a1, ok1 := e1.(AggrExpr)
	a2, ok2 := e2.(AggrExpr)
	if ok1 && ok2 && a1.IsDistinct() != a2.IsDistinct() {
		return false
	}
	for i := range c1 {
		if !MustBeEquivalent(c1[i], c2[i]) {
			return false
		}
	}
	return true
}

// FindAggrs enumerates all aggregate subexpressions inside e.
func FindAggrs(e Expr) []AggrExpr {
	var out []AggrExpr
	var walk func(Expr)
	walk = func(e Expr) {
		if a, ok := e.(AggrExpr); ok {
			out = append(out, a)
			return
		}
		for _, c := range e.Children() {
			walk(c)
		}
	}
	walk(e)
	return out
}

// InScope reports whether every column reference under e is a NamedColumnRef
// qualified by one of tableAliases (a RelativeColumnRef is never in scope,
// since it has already been detached from any table alias).
func InScope(e Expr, tableAliases []string) bool {
	switch n := e.(type) {
	case *NamedColumnRef:
		for _, a := range tableAliases {
			if a == n.tableAlias {
				return true
			}
		}
		return false
	case *RelativeColumnRef:
		return false
	default:
		for _, c := range e.Children() {
			if !InScope(c, tableAliases) {
				return false
			}
		}
		return true
	}
}

// PushDownConds splits cond into a part that can be pushed down into the
// given table aliases' scope and a remainder, such that AND(pushed,
// remainder) is equivalent to cond. pushed is nil if nothing could be
// pushed down.
func PushDownConds(cond Expr, tableAliases []string) (pushed, remaining Expr) {
	var pushedParts, remainingParts []Expr
	for _, part := range ConjunctiveParts(cond) {
		if InScope(part, tableAliases) {
			pushedParts = append(pushedParts, part)
		} else {
			remainingParts = append(remainingParts, part)
		}
	}
	pushed = MakeConjunction(pushedParts)
	if len(pushedParts) == 0 {
		remaining = cond
	} else {
		remaining = MakeConjunction(remainingParts)
	}
	return
}

// Relativize rewrites e in terms of RelativeColumnRef against a list of
// inputs, each described by an OutputLineage and (optionally) the list of
// expressions computing each of its columns, so that e can be evaluated
// directly against rows produced by those inputs. It returns nil if e
// cannot be fully relativized (some column reference in e matches none of
// the given inputs).
func Relativize(e Expr, lineages []OutputLineage, exprLists [][]Expr) Expr {
	if n, ok := e.(*NamedColumnRef); ok {
		for inputIndex, lineage := range lineages {
			if columnIndex, ok := FindColumnInLineage(n.tableAlias, n.columnName, lineage); ok {
				return NewRelativeColumnRef(inputIndex, columnIndex, n.valtype)
			}
		}
	}
	if exprLists != nil {
		for inputIndex, exprList := range exprLists {
			for columnIndex, expr := range exprList {
				if expr == nil {
					continue
				}
				if MustBeEquivalent(e, expr) {
					return NewRelativeColumnRef(inputIndex, columnIndex, e.ValType())
				}
			}
		}
	}
	if _, ok := e.(*NamedColumnRef); ok {
		return nil
	}
	children := e.Children()
	if len(children) == 0 {
		return e
	}
	relativized := make([]Expr, len(children))
	for i, c := range children {
		rc := Relativize(c, lineages, exprLists)
		if rc == nil {
			return nil
		}
		relativized[i] = rc
	}
	return e.CopyWithNewChildren(relativized)
}

// IsComputableFrom reports whether e can be expressed purely in terms of
// exprs (assumed aggregate-free).
func IsComputableFrom(e Expr, exprs []Expr) bool {
	return Relativize(e, []OutputLineage{NoLineage(len(exprs))}, [][]Expr{exprs}) != nil
}

// EvalLiteral evaluates e as a compile-time constant. e must contain no
// column references (callers that found e via IsColumnComparingToLiteral
// already guarantee this); used by sarg bound folding (§4.10), where a
// table scope narrows to nothing but literals and already-bound outer
// values once the planner commits to an index.
func EvalLiteral(e Expr) (any, error) {
	compiled, err := Compile(e, nil)
	if err != nil {
		return nil, err
	}
	return compiled(nil)
}
