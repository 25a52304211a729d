package gemini

import (
	"strings"

	"github.com/leofalp/taxassist/providers/ai"
)

// requestToGemini converts the generic request. Gemini has no system role in
// contents: the system prompt travels as systemInstruction and assistant
// turns use the "model" role.
func requestToGemini(request ai.ChatRequest) generateContentRequest {
	out := generateContentRequest{
		Contents: make([]content, 0, len(request.Messages)),
	}

	systemText := request.SystemPrompt
	for _, message := range request.Messages {
		switch message.Role {
		case ai.RoleSystem:
			systemText = strings.TrimSpace(systemText + "\n\n" + message.Content)
		case ai.RoleAssistant:
			out.Contents = append(out.Contents, content{Role: "model", Parts: []part{{Text: message.Content}}})
		default:
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: message.Content}}})
		}
	}
	if systemText != "" {
		out.SystemInstruction = &systemInstruction{Parts: []part{{Text: systemText}}}
	}

	if cfg := request.GenerationConfig; cfg != nil {
		gc := &generationConfig{}
		if cfg.Temperature != 0 {
			temperature := float64(cfg.Temperature)
			gc.Temperature = &temperature
		}
		if cfg.TopP != 0 {
			topP := float64(cfg.TopP)
			gc.TopP = &topP
		}
		if cfg.MaxTokens > 0 {
			maxTokens := cfg.MaxTokens
			gc.MaxOutputTokens = &maxTokens
		}
		out.GenerationConfig = gc
	}
	return out
}

// geminiToGeneric converts the first candidate. Thought parts are dropped.
func geminiToGeneric(resp generateContentResponse) *ai.ChatResponse {
	result := &ai.ChatResponse{
		Id:    resp.ResponseID,
		Model: resp.ModelVersion,
	}

	if len(resp.Candidates) == 0 {
		result.FinishReason = "error"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			result.FinishReason = "content_filter"
			result.Refusal = resp.PromptFeedback.BlockReason
		}
		return result
	}

	candidate := resp.Candidates[0]
	result.FinishReason = mapFinishReason(candidate.FinishReason)

	if candidate.Content != nil {
		var textParts []string
		for _, p := range candidate.Content.Parts {
			if p.Text != "" && !p.Thought {
				textParts = append(textParts, p.Text)
			}
		}
		result.Content = strings.Join(textParts, "")
	}

	if resp.UsageMetadata != nil {
		result.Usage = &ai.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result
}

func mapFinishReason(geminiReason string) string {
	switch geminiReason {
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "content_filter"
	default:
		return "stop"
	}
}
