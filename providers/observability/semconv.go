package observability

// Semantic conventions for observability attributes.
// These constants define standard attribute names so that spans and log lines
// emitted by different components can be correlated.

// --- LLM Provider Attributes ---

const (
	// AttrLLMProvider is the configured backend name (e.g., "groq", "gemini")
	AttrLLMProvider = "llm.provider"

	// AttrLLMModel is the model identifier
	AttrLLMModel = "llm.model"

	// AttrLLMEndpoint is the API endpoint URL
	AttrLLMEndpoint = "llm.endpoint"

	// AttrLLMResponseID is the unique response identifier from the provider
	AttrLLMResponseID = "llm.response.id"

	// AttrLLMFinishReason is the reason the generation finished
	AttrLLMFinishReason = "llm.finish_reason"

	// AttrLLMTokensTotal is the total number of tokens
	AttrLLMTokensTotal = "llm.tokens.total" // #nosec G101 -- Not a credential, token refers to LLM tokens

	// AttrLLMAttempt is the zero-based attempt number within one fallback call
	AttrLLMAttempt = "llm.attempt"
)

// --- Conversation Attributes ---

const (
	// AttrUserID identifies the caller owning the thread
	AttrUserID = "conversation.user_id"

	// AttrThreadID identifies the conversation thread
	AttrThreadID = "conversation.thread_id"

	// AttrRoute is the route tag chosen for a turn
	AttrRoute = "conversation.route"

	// AttrTurnCount is the number of committed turns in a thread
	AttrTurnCount = "conversation.turns"

	// AttrMemorySaved reports whether the turn was persisted
	AttrMemorySaved = "conversation.memory_saved"

	// AttrGraphNode is the state-machine node being executed
	AttrGraphNode = "graph.node"

	// AttrKnowledgeDomain is the domain passed to a knowledge provider
	AttrKnowledgeDomain = "knowledge.domain"

	// AttrResultCount is the number of passages or search results returned
	AttrResultCount = "result.count"
)

// --- HTTP Attributes ---

const (
	// AttrHTTPMethod is the HTTP method (GET, POST, etc.)
	AttrHTTPMethod = "http.method"

	// AttrHTTPStatusCode is the HTTP response status code
	AttrHTTPStatusCode = "http.status_code"

	// AttrHTTPURL is the full request URL
	AttrHTTPURL = "http.url"

	// AttrHTTPRequestBodySize is the request body size in bytes
	AttrHTTPRequestBodySize = "http.request.body.size"

	// AttrHTTPResponseBodySize is the response body size in bytes
	AttrHTTPResponseBodySize = "http.response.body.size"
)

// --- General Attributes ---

const (
	// AttrError is the error message
	AttrError = "error"

	// AttrDuration is the operation duration
	AttrDuration = "duration"

	// AttrStatus is the operation status
	AttrStatus = "status"

	// AttrStatusDescription is the status description
	AttrStatusDescription = "status_description"

	// AttrRequestID correlates log lines with the inbound API request
	AttrRequestID = "request_id"
)

// --- Span Names ---

const (
	SpanFallbackGenerate = "fallback.generate"
	SpanGraphRun         = "graph.run"
	SpanGraphNode        = "graph.node"
	SpanOrchestratorChat = "orchestrator.chat"
)

// --- Event Names ---

const (
	EventLLMRequestStart   = "llm.request.start"
	EventLLMRequestEnd     = "llm.request.end"
	EventProviderFailed    = "fallback.provider_failed"
	EventProviderSucceeded = "fallback.provider_succeeded"
	EventStatelessMode     = "orchestrator.stateless"
)

// --- Metric Names ---

const (
	MetricFallbackAttempts = "fallback.attempts"
	MetricGraphNodeRuns    = "graph.node.runs"
	MetricGraphNodeLatency = "graph.node.duration_ms"
)
