// Package llm provides LLM client implementations.
//
// The factory creates LLM clients based on provider configuration.
// Supported providers:
//   - anthropic: Anthropic Claude via the official SDK
//   - openai: OpenAI-compatible chat completions via go-openai
//
// Every client is wrapped in a Limiter that bounds concurrent requests, the
// request rate and the per-request timeout.
package llm
