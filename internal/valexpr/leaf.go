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

	"github.com/devilsdb/ddb-go/internal/types"
)

// Literal is a constant value of the given type: LiteralString, LiteralNumber,
// or LiteralBoolean in the distilled spec's vocabulary, unified here since
// Go's empty interface already carries the dynamic type.
type Literal struct {
	value   any
	valtype types.ValType
}

func NewLiteral(value any, valtype types.ValType) *Literal {
	return &Literal{value: value, valtype: valtype}
}

func (l *Literal) Children() []Expr       { return nil }
func (l *Literal) ValType() types.ValType { return l.valtype }
func (l *Literal) ToStr() string          { return fmt.Sprintf("%v", l.value) }
func (l *Literal) CopyWithNewChildren(children []Expr) Expr {
	return &Literal{value: l.value, valtype: l.valtype}
}
func (l *Literal) IsOpEquivalent(other Expr) bool {
	o, ok := other.(*Literal)
	return ok && o.valtype == l.valtype && o.value == l.value
}

func (l *Literal) compileSelf([]Compiled) Compiled {
	v := l.value
	return func([]types.Row) (any, error) { return v, nil }
}

// NamedColumnRef references a column by (table alias, column name). It is
// only resolvable against an OutputLineage at compile time; outside of
// compilation it behaves as an ordinary leaf node.
type NamedColumnRef struct {
	tableAlias string
	columnName string
	valtype    types.ValType
}

func NewNamedColumnRef(tableAlias, columnName string, valtype types.ValType) *NamedColumnRef {
	return &NamedColumnRef{tableAlias: tableAlias, columnName: columnName, valtype: valtype}
}

func (r *NamedColumnRef) TableAlias() string       { return r.tableAlias }
func (r *NamedColumnRef) ColumnName() string       { return r.columnName }
func (r *NamedColumnRef) Children() []Expr         { return nil }
func (r *NamedColumnRef) ValType() types.ValType    { return r.valtype }
func (r *NamedColumnRef) ToStr() string             { return r.tableAlias + "." + r.columnName }
func (r *NamedColumnRef) CopyWithNewChildren(children []Expr) Expr {
	return &NamedColumnRef{tableAlias: r.tableAlias, columnName: r.columnName, valtype: r.valtype}
}
func (r *NamedColumnRef) IsOpEquivalent(other Expr) bool {
	o, ok := other.(*NamedColumnRef)
	return ok && o.tableAlias == r.tableAlias && o.columnName == r.columnName && o.valtype == r.valtype
}

func (r *NamedColumnRef) compileLeaf(lineages []OutputLineage) (Compiled, error) {
	for inputIndex, lineage := range lineages {
		if columnIndex, ok := FindColumnInLineage(r.tableAlias, r.columnName, lineage); ok {
			ii, ci := inputIndex, columnIndex
			return func(rows []types.Row) (any, error) { return rows[ii][ci], nil }, nil
		}
	}
	return nil, fmt.Errorf("unresolved column reference %s.%s", r.tableAlias, r.columnName)
}

// RelativeColumnRef references a column by (input index, column index): the
// form every NamedColumnRef is relativized into before an operator actually
// evaluates it, so that operators never need lineage at execution time.
type RelativeColumnRef struct {
	inputIndex  int
	columnIndex int
	valtype     types.ValType
}

func NewRelativeColumnRef(inputIndex, columnIndex int, valtype types.ValType) *RelativeColumnRef {
	return &RelativeColumnRef{inputIndex: inputIndex, columnIndex: columnIndex, valtype: valtype}
}

func (r *RelativeColumnRef) InputIndex() int  { return r.inputIndex }
func (r *RelativeColumnRef) ColumnIndex() int { return r.columnIndex }
func (r *RelativeColumnRef) Children() []Expr { return nil }
func (r *RelativeColumnRef) ValType() types.ValType { return r.valtype }
func (r *RelativeColumnRef) ToStr() string {
	return fmt.Sprintf("$%d.%d", r.inputIndex, r.columnIndex)
}
func (r *RelativeColumnRef) CopyWithNewChildren(children []Expr) Expr {
	return &RelativeColumnRef{inputIndex: r.inputIndex, columnIndex: r.columnIndex, valtype: r.valtype}
}
func (r *RelativeColumnRef) IsOpEquivalent(other Expr) bool {
	o, ok := other.(*RelativeColumnRef)
	return ok && o.inputIndex == r.inputIndex && o.columnIndex == r.columnIndex && o.valtype == r.valtype
}

func (r *RelativeColumnRef) compileLeaf([]OutputLineage) (Compiled, error) {
	ii, ci := r.inputIndex, r.columnIndex
	return func(rows []types.Row) (any, error) { return rows[ii][ci], nil }, nil
}
