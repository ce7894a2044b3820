// Package collaborator calls the external AI vision service. It returns the
// raw response text; validation happens in the analysis package.
package collaborator

import (
	"context"
	"fmt"

	"github.com/okian/kaushal/internal/domain/analysis"
)

// Clip is the video handed to the collaborator.
type Clip = analysis.Clip

// AnalysisRequest is one performance analysis call.
type AnalysisRequest = analysis.Request

// Collaborator is the external analysis service. Calls are best effort and
// never retried by this package.
type Collaborator interface {
	Analyze(ctx context.Context, req AnalysisRequest) ([]byte, error)
	CheckIntegrity(ctx context.Context, clip Clip) ([]byte, error)
}

// completer is a single chat completion against a vision model.
type completer interface {
	complete(ctx context.Context, system, user string, clip Clip, maxTokens int) (string, error)
}

// chat adapts a completer to Collaborator using the analysis prompts.
type chat struct {
	c                  completer
	maxTokens          int
	integrityMaxTokens int
}

func (ch *chat) Analyze(ctx context.Context, req AnalysisRequest) ([]byte, error) {
	out, err := ch.c.complete(ctx, analysis.AnalysisSystemPrompt, req.Prompt, req.Clip, ch.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: analyze: %w", ErrCall, err)
	}
	return []byte(out), nil
}

func (ch *chat) CheckIntegrity(ctx context.Context, clip Clip) ([]byte, error) {
	out, err := ch.c.complete(ctx, analysis.IntegritySystemPrompt, analysis.IntegrityPrompt, clip, ch.integrityMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: integrity: %w", ErrCall, err)
	}
	return []byte(out), nil
}
