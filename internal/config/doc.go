// Package config loads CodeForge settings.
//
// Settings come from environment variables (see Config for names and
// defaults); only the LLM API key has no default. PIPELINE_PROFILE may name
// a YAML file that replaces the default stage order and the language sets
// of individual stages:
//
//	default_order: [decompose, generate, extract, review, classify, execute]
//	languages:
//	  execute: [python, py]
package config
