// Package ai defines the shared, provider-agnostic types and interfaces used
// by every text-generation backend (OpenAI-compatible endpoints, Gemini).
// Each backend's conversion layer maps these types to its own wire format,
// keeping the orchestration code decoupled from provider-specific details.
//
// The central interface is [Provider]. Request data flows through
// [ChatRequest] and responses are returned as [ChatResponse].
package ai
