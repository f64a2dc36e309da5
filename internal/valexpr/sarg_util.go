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

// ColumnRef is implemented by both NamedColumnRef and RelativeColumnRef, so
// planner helpers can handle either uniformly.
type ColumnRef interface {
	Expr
	isColumnRef()
}

func (r *NamedColumnRef) isColumnRef()    {}
func (r *RelativeColumnRef) isColumnRef() {}

// findColumnRefs enumerates every column reference under e.
func findColumnRefs(e Expr) []ColumnRef {
	var out []ColumnRef
	var walk func(Expr)
	walk = func(e Expr) {
		if cr, ok := e.(ColumnRef); ok {
			out = append(out, cr)
			return
		}
		for _, c := range e.Children() {
			walk(c)
		}
	}
	walk(e)
	return out
}

// IsColumnComparingToLiteral reports whether e is "column <op> expr" (or the
// reverse), where expr contains no column reference. Used by Sarg
// detection (§4.10): a conjunct of this shape against an indexed column is
// a candidate search argument.
func IsColumnComparingToLiteral(e Expr) (col ColumnRef, op string, other Expr, ok bool) {
	cmp, isCmp := e.(*CompareOp)
	if !isCmp {
		return nil, "", nil, false
	}
	left, right := cmp.children[0], cmp.children[1]
	candidates := []struct {
		this Expr
		op   string
		that Expr
	}{
		{left, cmp.op, right},
		{right, ReverseComparison[cmp.op], left},
	}
	for _, c := range candidates {
		if cr, isRef := c.this.(ColumnRef); isRef {
			if len(findColumnRefs(c.that)) == 0 {
				return cr, c.op, c.that, true
			}
		}
	}
	return nil, "", nil, false
}

// AreColumnsJoining reports whether e is "left.col <op> right.col" with the
// left side a RelativeColumnRef against input 0 and the right side against
// input 1 (or the reverse). Used for equi-join extraction (§4.10).
func AreColumnsJoining(e Expr) (left *RelativeColumnRef, op string, right *RelativeColumnRef, ok bool) {
	cmp, isCmp := e.(*CompareOp)
	if !isCmp {
		return nil, "", nil, false
	}
	l, r := cmp.children[0], cmp.children[1]
	candidates := []struct {
		this Expr
		op   string
		that Expr
	}{
		{l, cmp.op, r},
		{r, ReverseComparison[cmp.op], l},
	}
	for _, c := range candidates {
		thisRef, ok1 := c.this.(*RelativeColumnRef)
		thatRef, ok2 := c.that.(*RelativeColumnRef)
		if ok1 && ok2 && thisRef.inputIndex == 0 && thatRef.inputIndex == 1 {
			return thisRef, c.op, thatRef, true
		}
	}
	return nil, "", nil, false
}
