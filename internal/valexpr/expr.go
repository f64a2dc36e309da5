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

// Package valexpr implements the value expression tree (§3, §4.1): literals,
// column references, arithmetic/comparison/logical/function operators, and
// aggregates, together with a compiler that turns a validated tree into a
// closure evaluated once per row (or per pair of rows, for join conditions).
package valexpr

import (
	"fmt"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/types"
)

// Expr is a node in the value expression tree. Every constructor (NewSUM,
// NewPLUS, NewNamedColumnRef, ...) validates argument types and inserts
// implicit casts before returning, so any Expr reachable by a caller is
// already valid.
type Expr interface {
	// Children returns this node's child expressions, if any.
	Children() []Expr
	// ValType returns this node's inferred result type.
	ValType() types.ValType
	// ToStr renders the expression as a one-line string, for EXPLAIN-style
	// plan printing.
	ToStr() string
	// CopyWithNewChildren returns a copy of this node with different
	// children (used when relativizing/pushing expressions across plan
	// boundaries).
	CopyWithNewChildren(children []Expr) Expr
	// IsOpEquivalent reports whether this node and other would always
	// produce equivalent results given identical children (ignores the
	// children themselves).
	IsOpEquivalent(other Expr) bool
}

// base holds the fields common to every non-leaf node.
type base struct {
	children []Expr
	valtype  types.ValType
}

func (b *base) Children() []Expr       { return b.children }
func (b *base) ValType() types.ValType { return b.valtype }

// castIfNeeded wraps e in a CAST node if its type differs from desired but
// can be implicitly cast to it; it is an internal validation error
// otherwise.
func castIfNeeded(e Expr, desired types.ValType) (Expr, error) {
	if e.ValType() == desired {
		return e, nil
	}
	if !e.ValType().ImplicitlyCastsTo(desired) {
		return nil, ddberrors.Validation.New(fmt.Sprintf(
			"cannot implicitly cast %s (%s) to %s", e.ToStr(), e.ValType(), desired))
	}
	return NewCAST(e, desired)
}

// arithResultType follows §3: numeric operands, FLOAT dominates INTEGER.
func arithResultType(children []Expr) (types.ValType, error) {
	result := types.INTEGER
	for i, c := range children {
		switch c.ValType() {
		case types.INTEGER:
		case types.FLOAT:
			result = types.FLOAT
		default:
			return 0, ddberrors.Validation.New(fmt.Sprintf("operand %d is not numeric", i))
		}
	}
	return result, nil
}

func castChildrenTo(children []Expr, target types.ValType) ([]Expr, error) {
	out := make([]Expr, len(children))
	for i, c := range children {
		cc, err := castIfNeeded(c, target)
		if err != nil {
			return nil, err
		}
		out[i] = cc
	}
	return out, nil
}
