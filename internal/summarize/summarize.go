/*
Package summarize produces a short professional summary for each announcement.

Generation is strictly best effort: any model failure, refusal, or junk output
falls through to a deterministic summary built from the announcement's own
text. Summarize never returns an error and never returns an empty string when
any input text exists.
*/
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxFallbackLen bounds the deterministic fallback summary.
	MaxFallbackLen = 200

	// minCombinedLen is the threshold below which the input is too thin to
	// bother the model with.
	minCombinedLen = 50

	// minGeneratedLen rejects degenerate model outputs.
	minGeneratedLen = 20

	requestTimeout = 12 * time.Second

	systemPrompt = "You are a financial compliance summarizer for stock exchange announcements. " +
		"Write factual, professional prose based only on the provided text. " +
		"Never speculate, never comment on missing information."

	userPromptFormat = "Summarize the following BSE corporate announcement in 2-3 professional sentences.\n\n" +
		"Title: %s\n\nSubject: %s\n\nDetails: %s"
)

// bannedPhrases mark refusals and hedging the model sometimes emits instead
// of a summary. Matched case-insensitively anywhere in the output.
var bannedPhrases = []string{
	"i cannot",
	"i can't",
	"i'm sorry",
	"i am sorry",
	"as an ai",
	"i don't have",
	"i do not have",
	"unable to",
	"not enough information",
	"no information provided",
}

// Summarizer generates announcement summaries. A nil client means generation
// is disabled and every call takes the fallback path.
type Summarizer struct {
	client ChatClient
	model  string
	log    *zap.Logger
}

// New builds a Summarizer. client may be nil; logger must not be.
func New(client ChatClient, model string, logger *zap.Logger) *Summarizer {
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{client: client, model: model, log: logger}
}

// Summarize returns a summary for the announcement, generated when possible
// and deterministic otherwise.
func (s *Summarizer) Summarize(ctx context.Context, title, subject, description string) string {
	if s.client == nil {
		return Fallback(title, subject)
	}

	combined := joinParts(title, subject, description)
	if len(combined) < minCombinedLen {
		return Fallback(title, subject)
	}

	generated, err := s.generate(ctx, title, subject, description)
	if err != nil {
		s.log.Warn("summary generation failed", zap.Error(err))
		return Fallback(title, subject)
	}
	if !acceptable(generated) {
		s.log.Warn("summary generation rejected", zap.String("output", generated))
		return Fallback(title, subject)
	}

	return generated
}

func (s *Summarizer) generate(ctx context.Context, title, subject, description string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	temperature := 0.2
	maxTokens := 200

	resp, err := s.client.ChatCompletion(reqCtx, ChatCompletionRequest{
		Model: s.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptFormat, title, subject, description)},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// acceptable rejects empty, degenerate, and refusal-shaped outputs.
func acceptable(generated string) bool {
	if len(generated) < minGeneratedLen {
		return false
	}
	lower := strings.ToLower(generated)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return true
}

// Fallback builds the deterministic summary: the subject when present,
// otherwise the title, truncated to MaxFallbackLen characters.
func Fallback(title, subject string) string {
	text := strings.TrimSpace(subject)
	if text == "" {
		text = strings.TrimSpace(title)
	}
	return truncate(text, MaxFallbackLen)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func joinParts(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ". ")
}
