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

// Package planner implements rule-based assembly of a physical plan from a
// logical statement (§4.10): predicate push-down, Sarg detection,
// equi-join extraction, ordering-aware join-method choice, and GROUP
// BY/HAVING/SELECT assembly. SQL parsing and name resolution are out of
// scope (a non-goal); the logical statement types in this file are the
// already-validated input a parser/binder would hand the planner -- every
// column reference is already a valexpr.NamedColumnRef, every table a
// resolved metadata.BaseTableMetadata.
package planner

import (
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// BaseTableRef is one entry of a SelectBlock's FROM clause: a base table
// bound to an alias, with ReturnRowID set when the table has no primary
// key and row identity (needed by CREATE INDEX/DELETE plans) must be
// carried through the scan.
type BaseTableRef struct {
	Alias       string
	Metadata    metadata.BaseTableMetadata
	ReturnRowID bool
}

// SelectBlock is a logical SELECT-FROM-WHERE-GROUPBY-HAVING query,
// grounded on the original validator's SFWGHLop. FROM is inner-joined in
// listed order with no reordering -- join reordering is out of scope for
// BaselinePlanner, matching the original.
type SelectBlock struct {
	From          []BaseTableRef
	WhereCond     valexpr.Expr // nil if there is no WHERE
	GroupByExprs  []valexpr.Expr // nil if there is no GROUP BY
	HavingCond    valexpr.Expr // nil if there is no HAVING
	SelectExprs   []valexpr.Expr
	SelectAliases []string // per-entry output column name; "" lets the operator auto-name it
}

// CreateTableStatement requests creation of a base table's storage and
// schema entry (§4.11).
type CreateTableStatement struct {
	Metadata metadata.BaseTableMetadata
}

// CreateIndexStatement requests a secondary index be built over an
// existing column of a base table (§4.11).
type CreateIndexStatement struct {
	Metadata    metadata.BaseTableMetadata
	ColumnIndex int
}

// InsertStatement requests Contents' rows be appended to Metadata's
// storage (§4.11). Contents is a SelectBlock (INSERT ... SELECT) or, for
// INSERT ... VALUES, Rows is non-nil and Contents is ignored.
type InsertStatement struct {
	Metadata metadata.BaseTableMetadata
	Contents *SelectBlock
	Rows     []RowLiteral
}

// RowLiteral is one VALUES tuple of an INSERT ... VALUES statement,
// already typed to Metadata's schema.
type RowLiteral []any

// DeleteStatement requests removal of every row KeyQuery identifies
// (§4.11). KeyQuery must select the row's id (or primary key) first,
// followed by one value per entry of Metadata.SecondaryColumnIndices, in
// order -- the shape executor/command.Delete consumes.
type DeleteStatement struct {
	Metadata metadata.BaseTableMetadata
	KeyQuery *SelectBlock
}

// AnalyzeStatsStatement requests statistics be refreshed for the named
// base tables, or every base table if BaseMetas is nil (§4.11).
type AnalyzeStatsStatement struct {
	BaseMetas []metadata.BaseTableMetadata
}

// ShowTablesStatement requests a listing of every base table's schema
// (§4.11).
type ShowTablesStatement struct{}

// Options are the planner knobs exposed to a session (§6, "Configurable
// options"): each join method can be disabled independently, forcing
// BaselinePlanner to fall back further down its method-choice chain.
type Options struct {
	IndexJoin     bool
	SortMergeJoin bool
	HashJoin      bool
}

// DefaultOptions enables every join method, matching the original
// Planner.Options field defaults.
func DefaultOptions() Options {
	return Options{IndexJoin: true, SortMergeJoin: true, HashJoin: true}
}

// Memory budgets the planner assigns to the operators it builds (§6,
// "Memory budgets per operator are fixed constants selected by the
// planner"). Grounded on the original globals.py; none of that module's
// numeric values were present in the retrieved source, so these are
// reasonable defaults sized the way internal/executor/command's own
// DefaultSortBufferSize is.
const (
	DefaultSortBufferSize     = 16
	DefaultSortLastBufferSize = 16
	DefaultBNLJBufferSize     = 16
	DefaultHashBufferSize     = 16
)

// Error is returned for statement shapes BaselinePlanner does not (yet)
// support, matching the original's PlannerException.
type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

func newError(msg string) error { return &Error{msg: msg} }
