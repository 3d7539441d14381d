// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language / reasoning models inside AgentCrew.
//
// Core goals:
//   - Normalize tool / function call representation (ToolDefinition, core.ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (interpreter host, fan-out controller) remain
// decoupled from vendor SDKs. Retry and backoff policy lives inside the
// provider adapters; cancellation errors always propagate to callers.
package model
