package collaborator

import (
	"fmt"
	"time"
)

// Provider names.
const (
	ProviderSimulated = "simulated"
	ProviderOpenAI    = "openai"
	ProviderArk       = "ark"
)

// New selects a provider by name.
func New(provider string, opts ...Option) (Collaborator, error) {
	s := Settings{
		Model:              "gpt-4o",
		MaxTokens:          1500,
		IntegrityMaxTokens: 500,
		MinLatency:         200 * time.Millisecond,
		MaxLatency:         800 * time.Millisecond,
		Seed:               42,
	}
	for _, opt := range opts {
		opt(&s)
	}

	switch provider {
	case ProviderSimulated:
		return NewSimulated(s), nil
	case ProviderOpenAI:
		return &chat{c: newOpenAI(s), maxTokens: s.MaxTokens, integrityMaxTokens: s.IntegrityMaxTokens}, nil
	case ProviderArk:
		return &chat{c: newArk(s), maxTokens: s.MaxTokens, integrityMaxTokens: s.IntegrityMaxTokens}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}
