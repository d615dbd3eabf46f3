package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

// ContextUseCase selects the supporting text a chat answer may use.
type ContextUseCase struct {
	matcher   *ExactMatcher
	retriever *ExpandingRetriever
}

func NewContextUseCase(matcher *ExactMatcher, retriever *ExpandingRetriever) *ContextUseCase {
	return &ContextUseCase{
		matcher:   matcher,
		retriever: retriever,
	}
}

func (uc *ContextUseCase) Resolve(ctx context.Context, req domain.ContextRequest) (*domain.ChatContext, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve context", fmt.Errorf("question is required"))
	}

	if match, ok := uc.matcher.FindExactMatch(question); ok {
		out := &domain.ChatContext{
			Source:             domain.ContextSourceExactMatch,
			ExactMatch:         &match,
			RequiresGeneration: !match.Verbatim,
			Results:            []domain.RetrievalResult{},
		}
		if match.Verbatim {
			out.Answer = match.Context
		}
		return out, nil
	}

	outcome, err := uc.retriever.Retrieve(ctx, question, req.Prior)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	results := outcome.Results
	if results == nil {
		results = []domain.RetrievalResult{}
	}
	return &domain.ChatContext{
		Source:             domain.ContextSourceRetrieval,
		RequiresGeneration: true,
		Results:            results,
		Expansion:          outcome.Expansion,
	}, nil
}
