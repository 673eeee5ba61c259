package statemachine

import "errors"

var (
	// ErrQueryNotReady is returned by Executor.Query when the executor has
	// not yet applied far enough to satisfy the query's ordering
	// constraints. The caller is expected to retry after the next apply.
	//
	// (spec.md §4.5: query ordering rule)
	ErrQueryNotReady = errors.New("statemachine: query is not yet satisfiable against committed state")
)
