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

// Package ddberrors declares the error kinds raised throughout the
// execution subsystem, per the error-handling design: configuration errors
// at operator construction, validation errors at plan construction,
// execution errors during a row pull, and constraint violations on INSERT.
package ddberrors

import (
	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	// Configuration: operator constructed with insufficient memory, e.g.
	// aggregation with fewer than 3 blocks per non-incremental aggregate,
	// or an external sort with fewer than 3 blocks.
	Configuration = errors.NewKind("configuration error: %s")

	// Validation: a name/type/arity mismatch discovered at plan
	// construction, before execution begins.
	Validation = errors.NewKind("validation error: %s")

	// Execution: a row too large for its operator's block budget, a
	// storage error surfaced from the KV layer, or a missing tmp/base
	// file that was expected to exist.
	Execution = errors.NewKind("execution error: %s")

	// Constraint: a primary-key violation on INSERT.
	Constraint = errors.NewKind("constraint violation: %s")
)
