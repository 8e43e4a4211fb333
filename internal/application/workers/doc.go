// Package workers implements the worker pool that runs CodeForge tasks.
//
// The worker pool manages a fixed number of goroutines that:
//   - Take task ids from a bounded queue
//   - Run each task through the pipeline driver
//   - Stop at shutdown, interrupting the tasks they are running
//
// The health monitor tracks worker status and reports pool metrics.
package workers
