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

// Package types defines the value types and row representation shared by
// every component of the execution subsystem.
package types

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cast"
)

// BlockSize is the unit of I/O and memory budgeting used throughout the
// execution subsystem (buffered readers/writers, ExtSortBuffer, hash-join
// partitioning): a "memory block" budget of M means M*BlockSize bytes.
const BlockSize = 4096

// ValType is one of the value types supported by the engine. The order of
// declaration is also the precedence order used when two expressions of
// different types are combined: the lower-precedence operand is implicitly
// cast to the higher-precedence type.
type ValType int

const (
	DATETIME ValType = iota
	FLOAT
	INTEGER
	BOOLEAN
	VARCHAR
	ANY
)

func (t ValType) String() string {
	switch t {
	case DATETIME:
		return "DATETIME"
	case FLOAT:
		return "FLOAT"
	case INTEGER:
		return "INTEGER"
	case BOOLEAN:
		return "BOOLEAN"
	case VARCHAR:
		return "VARCHAR"
	case ANY:
		return "ANY"
	default:
		return fmt.Sprintf("ValType(%d)", int(t))
	}
}

// ImplicitlyCastsTo reports whether a value of this type may be implicitly
// converted to other wherever other is expected.
func (t ValType) ImplicitlyCastsTo(other ValType) bool {
	switch {
	case t == other:
		return true
	case t == BOOLEAN && (other == INTEGER || other == FLOAT):
		return true
	case t == INTEGER && other == FLOAT:
		return true
	case t == VARCHAR && other == DATETIME:
		return true
	case t == DATETIME && other == VARCHAR:
		return true
	case other == ANY:
		return true
	default:
		return false
	}
}

// CanCastTo reports whether a value of this type may be explicitly CAST to
// other; this is a superset of ImplicitlyCastsTo.
func (t ValType) CanCastTo(other ValType) bool {
	if t.ImplicitlyCastsTo(other) {
		return true
	}
	switch {
	case t == ANY:
		return true
	case other == VARCHAR:
		return true
	case t == FLOAT && other == INTEGER:
		return true
	default:
		return false
	}
}

// isoLayout is the round-trip format used between DATETIME and VARCHAR.
const isoLayout = time.RFC3339Nano

// CastFrom converts a Go value into the Go representation used for this
// type, using spf13/cast for numeric/bool/string coercions and the ISO-8601
// layout for the DATETIME<->VARCHAR round trip.
func CastFrom(t ValType, v any) (any, error) {
	switch t {
	case DATETIME:
		if s, ok := v.(string); ok {
			return time.Parse(isoLayout, s)
		}
		if ts, ok := v.(time.Time); ok {
			return ts, nil
		}
		return nil, fmt.Errorf("cannot cast %T to DATETIME", v)
	case FLOAT:
		return cast.ToFloat64E(v)
	case INTEGER:
		return cast.ToInt64E(v)
	case BOOLEAN:
		return cast.ToBoolE(v)
	case VARCHAR:
		if ts, ok := v.(time.Time); ok {
			return ts.Format(isoLayout), nil
		}
		return cast.ToStringE(v)
	case ANY:
		return v, nil
	default:
		return nil, fmt.Errorf("unrecognized ValType %v", t)
	}
}

// Size is a rough estimate, in bytes, of an in-memory value of this type.
// Used to make block-budget decisions; it is deliberately approximate for
// the variable-length types VARCHAR and ANY.
func (t ValType) Size() int {
	switch t {
	case DATETIME:
		return 24
	case FLOAT:
		return 8
	case INTEGER:
		return 8
	case BOOLEAN:
		return 1
	case VARCHAR:
		return 64
	case ANY:
		return 64
	default:
		return 8
	}
}

// RowType is the schema of a row: the type of each column, in order.
type RowType []ValType

// ColumnSizes returns the per-column size estimate for a schema.
func ColumnSizes(rt RowType) []int {
	sizes := make([]int, len(rt))
	for i, t := range rt {
		sizes[i] = t.Size()
	}
	return sizes
}

// RowSize returns the estimated in-memory size, in bytes, of a row with the
// given schema.
func RowSize(rt RowType) int {
	total := 0
	for _, t := range rt {
		total += t.Size()
	}
	return total
}

// EstimateRowBytes approximates a row's in-memory footprint from its actual
// values, for use by the buffered reader/writer and ExtSortBuffer block
// budgets. This plays the role of the original implementation's getsizeof(row)
// call: "perhaps not very precise, but oh well" applies here too.
func EstimateRowBytes(r Row) int {
	total := 16 // slice header overhead
	for _, v := range r {
		switch x := v.(type) {
		case string:
			total += len(x) + 16
		case int64, int, float64, time.Time:
			total += 16
		case bool:
			total += 8
		case nil:
			total += 8
		default:
			total += 32
		}
	}
	return total
}

// Row is a fixed-arity, ordered sequence of typed values, matching some
// producing operator's output schema.
type Row []any

// Clone returns a shallow copy of the row, safe to retain beyond the
// lifetime of a buffer that will be reused or cleared.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Key is a tuple of values used as a map key (e.g. a GROUP BY key or a hash
// join build key). Go map keys must be comparable, so Key is a string built
// by NewKey from length-prefixed components; never from a
// string-join of the component values (joining with a separator is
// non-injective whenever a separator character can appear inside a VARCHAR
// component).
type Key string

// keySep is a control character chosen to be extremely unlikely to appear in a
// VARCHAR value; it is only used internally by NewKey to build a
// *comparable* Go value, never surfaced to callers and never used to
// recover the component values (NewKey is one-way).
const keySep = '\x1f'

// Equal compares two value tuples component-by-component with
// reflect.DeepEqual.
func Equal(a, b Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// NewKey builds a comparable dictionary key out of a tuple of row values.
// Each component is formatted with %v and length-prefixed before
// concatenation, so a separator character inside a component value cannot
// make two tuples produce the same Key. Components of different types that
// format to the same text (int64(1) and "1") do produce the same Key.
func NewKey(values ...any) Key {
	var buf []byte
	for _, v := range values {
		s := fmt.Sprintf("%v", v)
		buf = append(buf, byte(len(s)>>24), byte(len(s)>>16), byte(len(s)>>8), byte(len(s)))
		buf = append(buf, s...)
		buf = append(buf, keySep)
	}
	return Key(buf)
}
