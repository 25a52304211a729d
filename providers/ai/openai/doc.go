// Package openai implements the ai.Provider interface for OpenAI-compatible
// /chat/completions endpoints. The same client serves OpenAI, Groq and
// Cohere's compatibility API: only the base URL, key and model differ.
//
// The main entry point is [New], which reads OPENAI_API_KEY and
// OPENAI_API_BASE_URL from the environment. [NewGroq] and [NewCohere] preset
// the base URL and read GROQ_API_KEY / COHERE_API_KEY instead.
package openai
