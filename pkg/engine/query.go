// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/lexiupon/ontologia/pkg/query"
)

// Query runs one C7 temporal read, dispatching to whichever compiler this
// engine wired at Open (sqlquery against sqlite, duckquery against the
// object store).
func (e *Engine) Query(ctx context.Context, q query.Query) (query.Result, error) {
	if e.sqlCompiler != nil {
		return e.sqlCompiler.Execute(ctx, q)
	}
	if e.duckCompiler != nil {
		return e.duckCompiler.Execute(ctx, q)
	}
	return query.Result{}, fmt.Errorf("engine: no query compiler wired")
}
