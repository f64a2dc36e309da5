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
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/regex"
	"github.com/devilsdb/ddb-go/internal/types"
)

// arithOp is PLUS/MINUS/MULTIPLY/DIVIDE/MOD: both operands and the result
// share a numeric type, FLOAT dominating INTEGER.
type arithOp struct {
	base
	name string
	eval func(a, b float64) float64
	// intEval, if set, is used instead of eval when the result type is
	// INTEGER (DIVIDE needs floor division on INTEGER but true division on
	// FLOAT; MOD works the same for both).
	intEval func(a, b int64) int64
}

func newArithOp(name string, left, right Expr, eval func(a, b float64) float64, intEval func(a, b int64) int64) (Expr, error) {
	resultType, err := arithResultType([]Expr{left, right})
	if err != nil {
		return nil, err
	}
	children, err := castChildrenTo([]Expr{left, right}, resultType)
	if err != nil {
		return nil, err
	}
	return &arithOp{base: base{children: children, valtype: resultType}, name: name, eval: eval, intEval: intEval}, nil
}

func (o *arithOp) ToStr() string {
	return fmt.Sprintf("(%s %s %s)", o.children[0].ToStr(), o.name, o.children[1].ToStr())
}
func (o *arithOp) CopyWithNewChildren(children []Expr) Expr {
	return &arithOp{base: base{children: children, valtype: o.valtype}, name: o.name, eval: o.eval, intEval: o.intEval}
}
func (o *arithOp) IsOpEquivalent(other Expr) bool {
	oo, ok := other.(*arithOp)
	return ok && oo.name == o.name && oo.valtype == o.valtype
}
func (o *arithOp) compileSelf(children []Compiled) Compiled {
	left, right := children[0], children[1]
	valtype := o.valtype
	return func(rows []types.Row) (any, error) {
		lv, err := left(rows)
		if err != nil {
			return nil, err
		}
		rv, err := right(rows)
		if err != nil {
			return nil, err
		}
		if valtype == types.INTEGER && o.intEval != nil {
			return o.intEval(toInt64(lv), toInt64(rv)), nil
		}
		return o.eval(toFloat64(lv), toFloat64(rv)), nil
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func NewPLUS(left, right Expr) (Expr, error) {
	return newArithOp("+", left, right,
		func(a, b float64) float64 { return a + b },
		func(a, b int64) int64 { return a + b })
}
func NewMINUS(left, right Expr) (Expr, error) {
	return newArithOp("-", left, right,
		func(a, b float64) float64 { return a - b },
		func(a, b int64) int64 { return a - b })
}
func NewMULTIPLY(left, right Expr) (Expr, error) {
	return newArithOp("*", left, right,
		func(a, b float64) float64 { return a * b },
		func(a, b int64) int64 { return a * b })
}

// NewDIVIDE implements §4.1's floor-division-on-INTEGER rule: division on
// INTEGER operands floors toward negative infinity, matching Python's `//`;
// division on FLOAT operands is ordinary float division.
func NewDIVIDE(left, right Expr) (Expr, error) {
	return newArithOp("/", left, right,
		func(a, b float64) float64 { return a / b },
		func(a, b int64) int64 {
			q := a / b
			if (a%b != 0) && ((a < 0) != (b < 0)) {
				q--
			}
			return q
		})
}
func NewMOD(left, right Expr) (Expr, error) {
	return newArithOp("%", left, right,
		func(a, b float64) float64 {
			return a - b*math.Floor(a/b)
		},
		func(a, b int64) int64 {
			m := a % b
			if m != 0 && ((m < 0) != (b < 0)) {
				m += b
			}
			return m
		})
}

// uniTypeOp is an operator whose inputs and output all share one fixed type
// (e.g. CONCAT/REGEXPLIKE on VARCHAR, AND/OR/NOT on BOOLEAN).
type uniTypeOp struct {
	base
	name string
}

func newUniTypeOp(name string, uniType types.ValType, children ...Expr) (*uniTypeOp, error) {
	cast, err := castChildrenTo(children, uniType)
	if err != nil {
		return nil, err
	}
	return &uniTypeOp{base: base{children: cast, valtype: uniType}, name: name}, nil
}

func (o *uniTypeOp) ToStr() string {
	parts := make([]string, len(o.children))
	for i, c := range o.children {
		parts[i] = c.ToStr()
	}
	return "(" + strings.Join(parts, " "+o.name+" ") + ")"
}
func (o *uniTypeOp) IsOpEquivalent(other Expr) bool {
	oo, ok := other.(*uniTypeOp)
	return ok && oo.name == o.name && oo.valtype == o.valtype
}

// CONCAT concatenates VARCHAR operands.
type CONCAT struct{ *uniTypeOp }

func NewCONCAT(left, right Expr) (Expr, error) {
	u, err := newUniTypeOp("||", types.VARCHAR, left, right)
	if err != nil {
		return nil, err
	}
	return &CONCAT{u}, nil
}
func (c *CONCAT) CopyWithNewChildren(children []Expr) Expr {
	u := &uniTypeOp{base: base{children: children, valtype: types.VARCHAR}, name: "||"}
	return &CONCAT{u}
}
func (c *CONCAT) compileSelf(children []Compiled) Compiled {
	left, right := children[0], children[1]
	return func(rows []types.Row) (any, error) {
		lv, err := left(rows)
		if err != nil {
			return nil, err
		}
		rv, err := right(rows)
		if err != nil {
			return nil, err
		}
		return lv.(string) + rv.(string), nil
	}
}

// REGEXPLIKE(s, pattern) reports whether s matches pattern, using the
// default registered engine in internal/regex.
type REGEXPLIKE struct{ *uniTypeOp }

func NewREGEXPLIKE(left, right Expr) (Expr, error) {
	u, err := newUniTypeOp("REGEXPLIKE", types.VARCHAR, left, right)
	if err != nil {
		return nil, err
	}
	u.valtype = types.BOOLEAN
	return &REGEXPLIKE{u}, nil
}
func (r *REGEXPLIKE) CopyWithNewChildren(children []Expr) Expr {
	u := &uniTypeOp{base: base{children: children, valtype: types.BOOLEAN}, name: "REGEXPLIKE"}
	return &REGEXPLIKE{u}
}
func (r *REGEXPLIKE) compileSelf(children []Compiled) Compiled {
	left, right := children[0], children[1]
	return func(rows []types.Row) (any, error) {
		lv, err := left(rows)
		if err != nil {
			return nil, err
		}
		rv, err := right(rows)
		if err != nil {
			return nil, err
		}
		m, d, err := regex.New("", rv.(string))
		if err != nil {
			return nil, ddberrors.Execution.New(fmt.Sprintf("bad REGEXPLIKE pattern: %v", err))
		}
		defer d.Dispose()
		return m.Match(lv.(string)), nil
	}
}

// logicalOp is AND/OR/NOT over BOOLEAN operands.
type logicalOp struct {
	*uniTypeOp
	op string // "and", "or", "not"
}

func newLogicalOp(op string, children ...Expr) (*logicalOp, error) {
	u, err := newUniTypeOp(op, types.BOOLEAN, children...)
	if err != nil {
		return nil, err
	}
	return &logicalOp{uniTypeOp: u, op: op}, nil
}

type AND struct{ *logicalOp }

func NewAND(left, right Expr) Expr {
	o, err := newLogicalOp("and", left, right)
	if err != nil {
		panic(err) // BOOLEAN AND BOOLEAN never fails to validate
	}
	return &AND{o}
}
func (a *AND) CopyWithNewChildren(children []Expr) Expr {
	u := &uniTypeOp{base: base{children: children, valtype: types.BOOLEAN}, name: "and"}
	return &AND{&logicalOp{uniTypeOp: u, op: "and"}}
}
func (a *AND) compileSelf(children []Compiled) Compiled {
	left, right := children[0], children[1]
	return func(rows []types.Row) (any, error) {
		lv, err := left(rows)
		if err != nil {
			return nil, err
		}
		if !lv.(bool) {
			return false, nil
		}
		rv, err := right(rows)
		if err != nil {
			return nil, err
		}
		return rv.(bool), nil
	}
}

type OR struct{ *logicalOp }

func NewOR(left, right Expr) Expr {
	o, err := newLogicalOp("or", left, right)
	if err != nil {
		panic(err)
	}
	return &OR{o}
}
func (a *OR) CopyWithNewChildren(children []Expr) Expr {
	u := &uniTypeOp{base: base{children: children, valtype: types.BOOLEAN}, name: "or"}
	return &OR{&logicalOp{uniTypeOp: u, op: "or"}}
}
func (a *OR) compileSelf(children []Compiled) Compiled {
	left, right := children[0], children[1]
	return func(rows []types.Row) (any, error) {
		lv, err := left(rows)
		if err != nil {
			return nil, err
		}
		if lv.(bool) {
			return true, nil
		}
		rv, err := right(rows)
		if err != nil {
			return nil, err
		}
		return rv.(bool), nil
	}
}

type NOT struct{ *logicalOp }

func NewNOT(operand Expr) Expr {
	o, err := newLogicalOp("not", operand)
	if err != nil {
		panic(err)
	}
	return &NOT{o}
}
func (n *NOT) CopyWithNewChildren(children []Expr) Expr {
	u := &uniTypeOp{base: base{children: children, valtype: types.BOOLEAN}, name: "not"}
	return &NOT{&logicalOp{uniTypeOp: u, op: "not"}}
}
func (n *NOT) compileSelf(children []Compiled) Compiled {
	operand := children[0]
	return func(rows []types.Row) (any, error) {
		v, err := operand(rows)
		if err != nil {
			return nil, err
		}
		return !v.(bool), nil
	}
}

// CompareOp is EQ/NE/LT/LE/GT/GE. Operands are cast to the common
// arithmetic/precedence type before comparing (e.g. comparing an INTEGER to
// a FLOAT casts the INTEGER up to FLOAT first).
type CompareOp struct {
	base
	op string // "=", "!=", "<", "<=", ">", ">="
}

// ReverseComparison flips a comparison so that (b OP a) == (a OP' b).
var ReverseComparison = map[string]string{
	"=": "=", "!=": "!=", "<": ">", "<=": ">=", ">=": "<=", ">": "<",
}

func newCompareOp(op string, left, right Expr) (*CompareOp, error) {
	target := commonType(left.ValType(), right.ValType())
	children, err := castChildrenTo([]Expr{left, right}, target)
	if err != nil {
		return nil, err
	}
	return &CompareOp{base: base{children: children, valtype: types.BOOLEAN}, op: op}, nil
}

func commonType(a, b types.ValType) types.ValType {
	if a == b {
		return a
	}
	if a.ImplicitlyCastsTo(b) {
		return b
	}
	return a
}

func (c *CompareOp) ToStr() string {
	return fmt.Sprintf("(%s %s %s)", c.children[0].ToStr(), c.op, c.children[1].ToStr())
}
func (c *CompareOp) CopyWithNewChildren(children []Expr) Expr {
	return &CompareOp{base: base{children: children, valtype: types.BOOLEAN}, op: c.op}
}
func (c *CompareOp) IsOpEquivalent(other Expr) bool {
	o, ok := other.(*CompareOp)
	return ok && o.op == c.op
}
func (c *CompareOp) Op() string { return c.op }

func (c *CompareOp) compileSelf(children []Compiled) Compiled {
	left, right := children[0], children[1]
	op := c.op
	return func(rows []types.Row) (any, error) {
		lv, err := left(rows)
		if err != nil {
			return nil, err
		}
		rv, err := right(rows)
		if err != nil {
			return nil, err
		}
		cmp := compareValues(lv, rv)
		switch op {
		case "=":
			return cmp == 0, nil
		case "!=":
			return cmp != 0, nil
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		default:
			return nil, fmt.Errorf("unknown comparison op %q", op)
		}
	}
}

// compareValues provides the natural order used throughout the executor
// (sort comparators, Sarg bounds, hash-join equality) for the five value
// types.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case int64:
		bv := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(av, b.(string))
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case time.Time:
		bv := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func NewEQ(l, r Expr) (Expr, error)  { return newCompareOp("=", l, r) }
func NewNE(l, r Expr) (Expr, error)  { return newCompareOp("!=", l, r) }
func NewLT(l, r Expr) (Expr, error)  { return newCompareOp("<", l, r) }
func NewLE(l, r Expr) (Expr, error)  { return newCompareOp("<=", l, r) }
func NewGT(l, r Expr) (Expr, error)  { return newCompareOp(">", l, r) }
func NewGE(l, r Expr) (Expr, error)  { return newCompareOp(">=", l, r) }

// CompareValues exposes the shared value ordering to other packages (sort
// comparators, Sarg evaluation, hash-join probing).
func CompareValues(a, b any) int { return compareValues(a, b) }
