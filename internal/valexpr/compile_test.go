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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devilsdb/ddb-go/internal/types"
)

func TestCompileArithmetic(t *testing.T) {
	left := NewRelativeColumnRef(0, 0, types.INTEGER)
	right := NewLiteral(int64(10), types.INTEGER)
	expr, err := NewPLUS(left, right)
	require.NoError(t, err)

	compiled, err := Compile(expr, []OutputLineage{NoLineage(1)})
	require.NoError(t, err)

	v, err := compiled([]types.Row{{int64(5)}})
	require.NoError(t, err)
	require.Equal(t, int64(15), v)
}

func TestConjunctivePartsAndMakeConjunction(t *testing.T) {
	a := NewLiteral(true, types.BOOLEAN)
	b := NewLiteral(false, types.BOOLEAN)
	c := NewLiteral(true, types.BOOLEAN)
	cond := NewAND(NewAND(a, b), c)

	parts := ConjunctiveParts(cond)
	require.Len(t, parts, 3)

	rebuilt := MakeConjunction(parts)
	require.True(t, MustBeEquivalent(cond, NewAND(NewAND(a, b), c)))
	require.NotNil(t, rebuilt)
}

func TestInScopeAndPushDownConds(t *testing.T) {
	left := NewNamedColumnRef("l", "a", types.INTEGER)
	right := NewNamedColumnRef("r", "b", types.INTEGER)
	eq, err := NewEQ(left, right)
	require.NoError(t, err)
	onlyLeft, err := NewEQ(left, NewLiteral(int64(1), types.INTEGER))
	require.NoError(t, err)
	cond := NewAND(eq, onlyLeft)

	require.True(t, InScope(onlyLeft, []string{"l"}))
	require.False(t, InScope(eq, []string{"l"}))

	pushed, remaining := PushDownConds(cond, []string{"l"})
	require.True(t, MustBeEquivalent(pushed, onlyLeft))
	require.True(t, MustBeEquivalent(remaining, eq))
}

func TestRelativizeAndIsComputableFrom(t *testing.T) {
	ref := NewNamedColumnRef("t", "x", types.INTEGER)
	lineage := OutputLineage{{ColumnKey{"t", "x"}: {}}}
	relativized := Relativize(ref, []OutputLineage{lineage}, nil)
	require.NotNil(t, relativized)
	rc, ok := relativized.(*RelativeColumnRef)
	require.True(t, ok)
	require.Equal(t, 0, rc.InputIndex())
	require.Equal(t, 0, rc.ColumnIndex())

	require.True(t, IsComputableFrom(ref, []Expr{ref}))
	other := NewNamedColumnRef("t", "y", types.INTEGER)
	require.False(t, IsComputableFrom(other, []Expr{ref}))
}

func TestEvalLiteral(t *testing.T) {
	expr, err := NewPLUS(NewLiteral(int64(2), types.INTEGER), NewLiteral(int64(3), types.INTEGER))
	require.NoError(t, err)
	v, err := EvalLiteral(expr)
	require.NoError(t, err)
	require.Equal(t, int64(5), v)
}

func TestFindAggrs(t *testing.T) {
	arg := NewRelativeColumnRef(0, 0, types.INTEGER)
	sum, err := NewSUM(arg, false)
	require.NoError(t, err)
	cmp, err := NewGT(sum, NewLiteral(int64(0), types.INTEGER))
	require.NoError(t, err)

	aggrs := FindAggrs(cmp)
	require.Len(t, aggrs, 1)
	require.True(t, MustBeEquivalent(aggrs[0], sum))
}
