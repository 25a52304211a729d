// Package parse provides utilities for extracting and converting structured
// data from raw LLM text output. Because language models frequently wrap
// JSON in narrative prose, markdown code fences, or schema-style envelopes,
// this package applies a layered recovery strategy (candidate extraction,
// automatic JSON repair, schema unwrapping) before returning a clear error.
//
// The main entry point is the generic [ParseStringAs] function. [ExtractJSON]
// is exposed for callers that need the raw candidate.
package parse
