// Package plan discovers execution plans in parameterized notebooks and replays them.
//
// Discovery scans a notebook's identified code cells for parameter lines and
// records one Stage per cell, each holding the parameter defaults it found.
// The resulting Service is meant to be edited by an operator (rewiring values to
// caller input, reordering or dropping stages, declaring outputs) and persisted.
//
// Execution re-fetches the document on every call, rewrites each stage's cell
// source with the resolved values and runs the cells in plan order in a single
// interpreter session:
//
//	builder := plan.NewBuilder(fetcher, logger)
//	svc, err := builder.Discover(ctx, url)
//
//	executor := plan.NewExecutor(fetcher, kernels, plan.WithObserver(obs))
//	report, err := executor.Execute(ctx, svc, plan.Input{"name": "world"})
//
// Execution is fail fast: the first lookup, fetch, missing-cell or cell failure
// ends the run and is returned as the single terminal error. The session is
// closed on every exit path.
package plan
