package tavily

type searchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	Topic          string   `json:"topic,omitempty"`
}

type searchResponse struct {
	Query        string             `json:"query"`
	Results      []searchResultItem `json:"results"`
	ResponseTime float64            `json:"response_time"`
	RequestID    string             `json:"request_id"`
}

type searchResultItem struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
