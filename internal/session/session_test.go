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

package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/planner"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

func newTestSession(t *testing.T) (*Session, *bytes.Buffer) {
	t.Helper()
	sm, err := storage.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })
	ctx := &executor.StatementContext{
		SM:      sm,
		MM:      metadata.NewManager(sm),
		Tmp:     sm.TmpFileFactory("test"),
		Profile: executor.NewProfileContext(),
	}
	var out bytes.Buffer
	return New(ctx, &out), &out
}

func usersMeta() metadata.BaseTableMetadata {
	pk := 0
	return metadata.BaseTableMetadata{
		TableMetadata: metadata.TableMetadata{
			ColumnNames: []string{"id", "name"},
			ColumnTypes: types.RowType{types.INTEGER, types.VARCHAR},
		},
		Name:                  "users",
		PrimaryKeyColumnIndex: &pk,
	}
}

func TestSessionCreateInsertSelect(t *testing.T) {
	s, out := newTestSession(t)
	meta := usersMeta()

	status, err := s.Execute(Statement{Kind: KindCreateTable, CreateTable: &planner.CreateTableStatement{Metadata: meta}})
	require.NoError(t, err)
	require.Equal(t, "CREATE TABLE", status)

	status, err = s.Execute(Statement{Kind: KindInsert, Insert: &planner.InsertStatement{
		Metadata: meta,
		Rows:     []planner.RowLiteral{{int64(1), "alice"}},
	}})
	require.NoError(t, err)
	require.Equal(t, "INSERT 1", status)

	block := &planner.SelectBlock{
		From:          []planner.BaseTableRef{{Alias: "u", Metadata: meta}},
		SelectExprs:   []valexpr.Expr{valexpr.NewNamedColumnRef("u", "name", types.VARCHAR)},
		SelectAliases: []string{"name"},
	}
	status, err = s.Execute(Statement{Kind: KindSelect, Select: block})
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", status)
	require.Contains(t, out.String(), "alice")
}

func TestSessionShowTables(t *testing.T) {
	s, _ := newTestSession(t)
	meta := usersMeta()
	_, err := s.Execute(Statement{Kind: KindCreateTable, CreateTable: &planner.CreateTableStatement{Metadata: meta}})
	require.NoError(t, err)

	status, err := s.Execute(Statement{Kind: KindShowTables, ShowTables: &planner.ShowTablesStatement{}})
	require.NoError(t, err)
	require.Contains(t, status, "users")
}

func TestSessionCommitRollbackWithoutTransactionIsAnError(t *testing.T) {
	s, _ := newTestSession(t)

	_, err := s.Execute(Statement{Kind: KindCommit})
	require.Error(t, err)

	_, err = s.Execute(Statement{Kind: KindRollback})
	require.Error(t, err)
}

func TestSessionSetAutocommitOffThenCommit(t *testing.T) {
	s, _ := newTestSession(t)

	status, err := s.Execute(Statement{Kind: KindSetOption, Option: "autocommit", Value: "off"})
	require.NoError(t, err)
	require.Equal(t, "SET", status)
	require.True(t, s.inExplicitTx)

	status, err = s.Execute(Statement{Kind: KindCommit})
	require.NoError(t, err)
	require.Equal(t, "COMMIT", status)
	require.False(t, s.inExplicitTx)
}

func TestSessionSetOptionRejectsUnknownOption(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.Execute(Statement{Kind: KindSetOption, Option: "bogus", Value: "on"})
	require.Error(t, err)
}

func TestSessionSetOptionTogglesJoinMethods(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.Execute(Statement{Kind: KindSetOption, Option: "hash_join", Value: "off"})
	require.NoError(t, err)
	require.False(t, s.Planner.Options.HashJoin)
}

func TestSessionSetPlannerRejectsNonBaseline(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.Execute(Statement{Kind: KindSetOption, Option: "planner", Value: "cost-based"})
	require.Error(t, err)
}
