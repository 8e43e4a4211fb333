// Package orchestrator drives CodeForge tasks through their stages.
//
// The manager is the submission and query facade:
//   - Validating submissions and stage orderings
//   - Creating task records and their execution graphs
//   - Dispatching task ids to the worker pool
//   - Answering status, log, result, graph and token queries
//
// The driver runs one task: it walks the stage ordering, runs the bounded
// generation loop with the review and test-generation branches in parallel,
// charges every stage cost to the resource ledger and records the result.
package orchestrator
