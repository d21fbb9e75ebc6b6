// Package ai generates assisted content (summaries, drafts) through an
// OpenAI-compatible completion API. Provider failures degrade to empty
// results with a warning; callers treat AI output as optional.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/loopteam/server/internal/config"
)

type Service struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

func NewService(cfg config.AIConfig, logger zerolog.Logger) *Service {
	s := &Service{
		model:  cfg.Model,
		logger: logger.With().Str("component", "ai").Logger(),
	}
	if !cfg.Enabled || cfg.APIKey == "" {
		return s
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	return s
}

func (s *Service) Enabled() bool {
	return s.client != nil
}

// SummarizeThread condenses a message thread into a few sentences. Returns
// "" when the provider is unavailable or errors.
func (s *Service) SummarizeThread(ctx context.Context, messages []string) string {
	if len(messages) == 0 {
		return ""
	}
	prompt := "Summarize this chat thread in at most three sentences:\n\n" + strings.Join(messages, "\n")
	return s.complete(ctx, "You summarize team chat threads concisely.", prompt)
}

// DraftDocument produces a starting draft for a document title.
func (s *Service) DraftDocument(ctx context.Context, title, instructions string) string {
	prompt := fmt.Sprintf("Write a first draft of a document titled %q.", title)
	if instructions != "" {
		prompt += " Instructions: " + instructions
	}
	return s.complete(ctx, "You draft clear workplace documents in Markdown.", prompt)
}

// SuggestTasks extracts action items from free text, one per line.
func (s *Service) SuggestTasks(ctx context.Context, notes string) []string {
	if strings.TrimSpace(notes) == "" {
		return nil
	}
	out := s.complete(ctx, "You extract action items from meeting notes. Reply with one task title per line, no numbering.",
		"Extract the action items:\n\n"+notes)
	if out == "" {
		return nil
	}
	var tasks []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-* "))
		if line != "" {
			tasks = append(tasks, line)
		}
	}
	return tasks
}

func (s *Service) complete(ctx context.Context, system, prompt string) string {
	if s.client == nil {
		return ""
	}
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("completion failed")
		return ""
	}
	if len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}
