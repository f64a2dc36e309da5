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

package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/types"
)

// encodeRow serializes a row according to its schema into a byte slice
// used as an opaque stored payload (heap-file rows and B+tree values). Its
// bytes do not follow the row's natural order; B+tree keys are encoded by
// encodeSortKey instead.
func encodeRow(schema types.RowType, row types.Row) ([]byte, error) {
	if len(row) != len(schema) {
		return nil, ddberrors.Execution.New(fmt.Sprintf("row arity %d does not match schema arity %d", len(row), len(schema)))
	}
	var buf bytes.Buffer
	for i, t := range schema {
		if err := encodeValue(&buf, t, row[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, t types.ValType, v any) error {
	switch t {
	case types.INTEGER:
		var n int64
		switch x := v.(type) {
		case int64:
			n = x
		case int:
			n = int64(x)
		default:
			return fmt.Errorf("expected INTEGER, got %T", v)
		}
		binary.Write(buf, binary.BigEndian, uint64(n)^(1<<63)) // order-preserving for signed ints
	case types.FLOAT:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected FLOAT, got %T", v)
		}
		binary.Write(buf, binary.BigEndian, f)
	case types.BOOLEAN:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected BOOLEAN, got %T", v)
		}
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case types.VARCHAR, types.ANY:
		s := fmt.Sprintf("%v", v)
		binary.Write(buf, binary.BigEndian, uint32(len(s)))
		buf.WriteString(s)
	case types.DATETIME:
		ts, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected DATETIME, got %T", v)
		}
		binary.Write(buf, binary.BigEndian, ts.UnixNano())
	default:
		return fmt.Errorf("unrecognized ValType %v", t)
	}
	return nil
}

func decodeRow(schema types.RowType, data []byte) (types.Row, error) {
	buf := bytes.NewReader(data)
	row := make(types.Row, len(schema))
	for i, t := range schema {
		v, err := decodeValue(buf, t)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

func decodeValue(buf *bytes.Reader, t types.ValType) (any, error) {
	switch t {
	case types.INTEGER:
		var u uint64
		if err := binary.Read(buf, binary.BigEndian, &u); err != nil {
			return nil, err
		}
		return int64(u ^ (1 << 63)), nil
	case types.FLOAT:
		var f float64
		if err := binary.Read(buf, binary.BigEndian, &f); err != nil {
			return nil, err
		}
		return f, nil
	case types.BOOLEAN:
		b, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		return b == 1, nil
	case types.VARCHAR, types.ANY:
		var n uint32
		if err := binary.Read(buf, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		s := make([]byte, n)
		if _, err := buf.Read(s); err != nil {
			return nil, err
		}
		return string(s), nil
	case types.DATETIME:
		var n int64
		if err := binary.Read(buf, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		return time.Unix(0, n).UTC(), nil
	default:
		return nil, fmt.Errorf("unrecognized ValType %v", t)
	}
}

// encodeSortKey encodes a single value of type t so that byte-comparison of
// the result matches the value's natural order. Used for B+tree keys, where
// (unlike encodeValue's length-prefixed VARCHAR, suited to opaque row
// payloads) raw bytes are required so range scans compare correctly.
func encodeSortKey(t types.ValType, v any) ([]byte, error) {
	var buf bytes.Buffer
	switch t {
	case types.VARCHAR, types.ANY:
		buf.WriteString(fmt.Sprintf("%v", v))
	default:
		if err := encodeValue(&buf, t, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeRowID(id int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}

func decodeRowID(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
