// Package tavily implements websearch.Searcher on the Tavily Search API
// (https://docs.tavily.com). Searches are restricted to an allow-list of
// Nigerian tax and finance domains unless the query names its own, and HTML
// fragments in result snippets are converted to markdown before they reach a
// prompt.
//
// Requires TAVILY_API_KEY unless a key is set with WithAPIKey.
package tavily
