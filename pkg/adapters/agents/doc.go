// Package agents provides the default stage collaborators of the pipeline.
//
// Agents implements ports.Agents: the text stages (decompose, generate, extract,
// review, classify, testgen) are prompts sent to a ports.LLMClient, and the
// execute stage runs code in a local interpreter subprocess through Executor.
package agents
