// Package gemini implements the ai.Provider interface for Google's Gemini
// generateContent API (text only).
//
// The main entry point is [New], which reads GEMINI_API_KEY (falling back to
// GOOGLE_API_KEY) and GEMINI_API_BASE_URL from the environment.
package gemini
