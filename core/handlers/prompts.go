package handlers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leofalp/taxassist/core/conversation"
	"github.com/leofalp/taxassist/internal/utils"
	"github.com/leofalp/taxassist/providers/knowledge"
)

const (
	taxSystemPrompt = "You are a helpful Nigerian tax assistant. Answer only from the provided context " +
		"from official tax documents. Be concise and direct, cite rates and laws when relevant, " +
		"and say so when the context does not contain the answer."

	payrollSystemPrompt = "You are a Nigerian PAYE and payroll assistant. Answer only from the provided " +
		"context. Show calculations step by step with naira amounts when the user asks for one."

	combinedSystemPrompt = "You are a helpful Nigerian tax assistant covering both tax policy and PAYE. " +
		"Answer only from the provided context and keep policy and calculation details clearly separated."

	financialSystemPrompt = "You are a helpful Nigerian financial advisor. Give practical advice based only " +
		"on the provided web sources, mention risks alongside opportunities, and include rates or figures " +
		"when available. If the sources are not enough, say so clearly instead of guessing."
)

var pidginMarkers = []string{"wetin", "dey", "na so", "oga", "abeg", "sabi", "wahala", "shey", "abi", "una", "wey"}

var wordSplitter = regexp.MustCompile(`[^\p{L}\p{N}']+`)

// IsPidgin reports whether query carries Nigerian Pidgin markers. Markers are
// matched as whole words.
func IsPidgin(query string) bool {
	words := wordSplitter.Split(strings.ToLower(query), -1)
	joined := " " + strings.Join(words, " ") + " "
	for _, marker := range pidginMarkers {
		if strings.Contains(joined, " "+marker+" ") {
			return true
		}
	}
	return false
}

func languageInstruction(query string) string {
	if IsPidgin(query) {
		return "LANGUAGE: The user writes in Nigerian Pidgin. Reply entirely in natural, accurate Pidgin " +
			"(for example \"The tax wey you go pay na...\", \"E mean say...\")."
	}
	return "LANGUAGE: Use clear, professional English with Nigerian context."
}

func formatHistory(turns []conversation.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n",
			utils.TruncateString(t.UserText, 600),
			utils.TruncateString(t.AssistantText, 600))
	}
	return b.String()
}

func formatPassages(passages []knowledge.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		kind := p.Kind
		if kind == "" {
			kind = "document"
		}
		source := p.Source
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "[Document %d - %s - %s]\n%s\n\n", i+1, kind, source, strings.TrimSpace(p.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}

// documentPrompt builds the user message for knowledge-grounded answers.
func documentPrompt(request Request, history []conversation.Turn, context string, extra []string) string {
	var b strings.Builder
	if h := formatHistory(history); h != "" {
		fmt.Fprintf(&b, "PREVIOUS CONVERSATION:\n%s\n", h)
	}
	fmt.Fprintf(&b, "CONTEXT:\n%s\n\nUSER QUESTION:\n%s\n\n%s\n", context, request.Query, languageInstruction(request.Query))
	for _, line := range extra {
		fmt.Fprintf(&b, "\n%s", line)
	}
	b.WriteString("\nANSWER:")
	return b.String()
}

// webPrompt builds the user message for web-grounded financial answers.
func webPrompt(request Request, history []conversation.Turn, sources string) string {
	var b strings.Builder
	if h := formatHistory(history); h != "" {
		fmt.Fprintf(&b, "PREVIOUS CONVERSATION:\n%s\n", h)
	}
	fmt.Fprintf(&b, "INFORMATION FROM FINANCIAL SOURCES:\n%s\nUSER QUESTION:\n%s\n\n%s\n"+
		"Do not refer to sources by number.\n\nFINANCIAL ADVICE:",
		sources, request.Query, languageInstruction(request.Query))
	return b.String()
}
