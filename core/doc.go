// Package core provides the foundational domain types and execution contexts
// shared by the AgentCrew engine. It defines:
//
//   - Directives (units of work yielded by step programs to their host)
//   - ToolCall / ToolResult and the tagged json|text|error output set
//   - Messages (the agent context entries the pruning contract operates on)
//   - Candidates (fan-out generation results with deterministic letter ids)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//
// The package intentionally keeps implementation concerns (persistence,
// sequencing, fan-out orchestration) out of scope, exposing small closed sum
// types so higher layers can match over them exhaustively.
package core
