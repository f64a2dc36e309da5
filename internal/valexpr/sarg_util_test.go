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

func TestIsColumnComparingToLiteral(t *testing.T) {
	col := NewNamedColumnRef("t", "x", types.INTEGER)
	lit := NewLiteral(int64(42), types.INTEGER)

	gt, err := NewGT(col, lit)
	require.NoError(t, err)
	cr, op, other, ok := IsColumnComparingToLiteral(gt)
	require.True(t, ok)
	require.Equal(t, col, cr)
	require.Equal(t, ">", op)
	require.True(t, MustBeEquivalent(other, lit))

	reversed, err := NewLT(lit, col)
	require.NoError(t, err)
	cr, op, _, ok = IsColumnComparingToLiteral(reversed)
	require.True(t, ok)
	require.Equal(t, col, cr)
	require.Equal(t, ">", op)

	both, err := NewEQ(col, NewNamedColumnRef("t", "y", types.INTEGER))
	require.NoError(t, err)
	_, _, _, ok = IsColumnComparingToLiteral(both)
	require.False(t, ok)
}

func TestAreColumnsJoining(t *testing.T) {
	left := NewRelativeColumnRef(0, 1, types.INTEGER)
	right := NewRelativeColumnRef(1, 2, types.INTEGER)
	eq, err := NewEQ(left, right)
	require.NoError(t, err)

	l, op, r, ok := AreColumnsJoining(eq)
	require.True(t, ok)
	require.Equal(t, "=", op)
	require.Equal(t, 0, l.InputIndex())
	require.Equal(t, 1, r.InputIndex())

	notJoining, err := NewEQ(left, NewLiteral(int64(1), types.INTEGER))
	require.NoError(t, err)
	_, _, _, ok = AreColumnsJoining(notJoining)
	require.False(t, ok)
}
