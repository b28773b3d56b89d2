package suggestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-mystery-message/internal/domain"
)

// Separator splits the generated prompts.
const Separator = "||"

// Count is the number of prompts a generation must yield.
const Count = 3

const prompt = `Generate a list of three engaging and anonymous prompts formatted as a single string. Each prompt must be separated by "||". These prompts are for an anonymous social feedback and question platform where users can send feedback or questions but cannot reply back.

Guidelines for the prompts:
- Include exactly two feedback-oriented prompts (e.g. "What's one way I could improve?").
- Include exactly one curiosity-driven or fun question (e.g. "What's a fun memory you'll never forget?").
- Prompts must be open-ended and thought-provoking, not yes/no.
- Keep the tone safe, positive and inclusive. No personal, offensive or sensitive topics.
- Output should ONLY be the three prompts separated by "||", no numbering or extra text.

Example output:
What's one thing I could do to be a better friend?||What's a suggestion you have for me to improve myself?||If you could swap lives with someone for a day, who would it be?`

// Result carries the generator text as returned and the prompts parsed from it.
type Result struct {
	Raw         string
	Suggestions []string
}

type Service interface {
	Suggest(ctx context.Context) (*Result, error)
}

type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type service struct {
	gen generator
}

// NewService returns a Service backed by gen. A nil gen makes every call
// fail with domain.ErrUpstream.
func NewService(gen generator) Service {
	return &service{gen: gen}
}

func (s *service) Suggest(ctx context.Context) (*Result, error) {
	if s.gen == nil {
		return nil, fmt.Errorf("text generation is not configured: %w", domain.ErrUpstream)
	}
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Error("suggestion: generate", "error", err)
		return nil, fmt.Errorf("generate suggestions: %w", domain.ErrUpstream)
	}
	parts, err := Split(text)
	if err != nil {
		slog.Warn("suggestion: malformed output", "text", text)
		return nil, err
	}
	return &Result{Raw: text, Suggestions: parts}, nil
}

// Split parses generator output into exactly Count trimmed, non-empty prompts.
func Split(text string) ([]string, error) {
	raw := strings.Split(strings.TrimSpace(text), Separator)
	if len(raw) != Count {
		return nil, fmt.Errorf("expected %d prompts, got %d: %w", Count, len(raw), domain.ErrUpstream)
	}
	out := make([]string, 0, Count)
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty prompt in generated text: %w", domain.ErrUpstream)
		}
		out = append(out, p)
	}
	return out, nil
}
