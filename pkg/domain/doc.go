// Package domain holds the CodeForge domain model: tasks and their lifecycle,
// the pipeline state threaded through stages, execution graphs, events and the
// LLM request/response types shared by the adapters.
package domain
