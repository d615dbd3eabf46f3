package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

const (
	DefaultWeakScoreFactor   = 1.1
	DefaultShortMessageChars = 10
	DefaultSummaryChars      = 300
)

// lowSignalTokens are acknowledgements and continuations that carry no topic.
var lowSignalTokens = map[string]struct{}{
	"yes": {}, "yeah": {}, "yep": {}, "yup": {}, "sure": {}, "ok": {}, "okay": {}, "k": {},
	"no": {}, "nope": {}, "more": {}, "tell me more": {}, "tell me more about that": {},
	"go on": {}, "continue": {}, "keep going": {}, "and": {}, "and?": {}, "so": {},
	"why": {}, "why?": {}, "how": {}, "how?": {}, "what": {}, "what?": {}, "really": {}, "really?": {},
	"that": {}, "this": {}, "it": {}, "them": {}, "those": {},
	"interesting": {}, "cool": {}, "nice": {}, "great": {}, "thanks": {}, "thank you": {},
	"please": {}, "please elaborate": {}, "elaborate": {}, "explain": {}, "explain more": {},
	"more details": {}, "details": {}, "example": {}, "for example": {}, "such as": {},
	"like what": {}, "like what?": {}, "what else": {}, "what else?": {}, "anything else": {},
	"anything else?": {}, "can you elaborate": {}, "can you elaborate?": {},
}

type ExpansionOptions struct {
	Enabled           bool
	MinScore          float64
	WeakScoreFactor   float64
	ShortMessageChars int
	SummaryChars      int
}

func (o ExpansionOptions) normalize() ExpansionOptions {
	out := o
	if out.MinScore <= 0 || out.MinScore > 1 {
		out.MinScore = DefaultMinScore
	}
	if out.WeakScoreFactor <= 0 {
		out.WeakScoreFactor = DefaultWeakScoreFactor
	}
	if out.ShortMessageChars <= 0 {
		out.ShortMessageChars = DefaultShortMessageChars
	}
	if out.SummaryChars <= 0 {
		out.SummaryChars = DefaultSummaryChars
	}
	return out
}

// ShouldExpand decides whether a second, context-enriched pass is worth
// running. Rules are evaluated in priority order; the first match wins. Known
// low-signal tokens are checked before message length, so "yes" reports
// low-signal-token while any other short query reports short-message.
func ShouldExpand(query string, firstPass []domain.RetrievalResult, opts ExpansionOptions) domain.ExpansionDecision {
	opts = opts.normalize()
	trimmed := strings.TrimSpace(query)

	switch {
	case isLowSignal(trimmed):
		return domain.ExpansionDecision{Triggered: true, Reason: domain.ExpansionReasonLowSignalToken}
	case utf8.RuneCountInString(trimmed) <= opts.ShortMessageChars:
		return domain.ExpansionDecision{Triggered: true, Reason: domain.ExpansionReasonShortMessage}
	case len(firstPass) == 0:
		return domain.ExpansionDecision{Triggered: true, Reason: domain.ExpansionReasonNoResults}
	case domain.TopScore(firstPass) < opts.MinScore*opts.WeakScoreFactor:
		return domain.ExpansionDecision{Triggered: true, Reason: domain.ExpansionReasonWeakTopScore}
	default:
		return domain.ExpansionDecision{}
	}
}

func isLowSignal(trimmed string) bool {
	normalized := strings.ToLower(trimmed)
	if _, ok := lowSignalTokens[normalized]; ok {
		return true
	}
	_, ok := lowSignalTokens[strings.TrimRight(normalized, " ?!.")]
	return ok
}

// BuildExpandedQuery labels the follow-up and the prior turn it likely refers to.
func BuildExpandedQuery(query string, prior domain.PriorTurn, summaryChars int) string {
	var b strings.Builder
	b.WriteString("Follow-up question: ")
	b.WriteString(strings.TrimSpace(query))

	if prev := strings.TrimSpace(prior.PreviousUserMessage); prev != "" {
		b.WriteString("\nPrevious user question: ")
		b.WriteString(prev)
	}
	if summary := SummarizeAnswer(prior.PreviousAssistantSummary, summaryChars); summary != "" {
		b.WriteString("\nPrevious assistant answer: ")
		b.WriteString(summary)
	}
	return b.String()
}

// SummarizeAnswer keeps the first paragraph of an answer, capped at maxChars
// runes and cut back to a sentence or word boundary when possible.
func SummarizeAnswer(answer string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultSummaryChars
	}
	text := strings.TrimSpace(strings.ReplaceAll(answer, "\r\n", "\n"))
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	cut := string(runes[:maxChars])
	if idx := lastSentenceEnd(cut); idx >= len(cut)/2 {
		return strings.TrimSpace(cut[:idx+1])
	}
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "..."
}

func lastSentenceEnd(s string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(s, sep); idx > best {
			best = idx
		}
	}
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return len(s) - 1
	}
	return best
}

type queryRetriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.RetrievalResult, error)
}

// ExpandingRetriever runs retrieval and, when the first pass looks weak and
// prior conversation exists, a second pass over an enriched query.
type ExpandingRetriever struct {
	retriever queryRetriever
	opts      ExpansionOptions
}

func NewExpandingRetriever(retriever queryRetriever, opts ExpansionOptions) *ExpandingRetriever {
	return &ExpandingRetriever{
		retriever: retriever,
		opts:      opts.normalize(),
	}
}

func (e *ExpandingRetriever) Retrieve(ctx context.Context, query string, prior domain.PriorTurn) (domain.RetrievalOutcome, error) {
	start := time.Now()

	pass1, err := e.retriever.Retrieve(ctx, query)
	if err != nil {
		return domain.RetrievalOutcome{}, err
	}
	if !e.opts.Enabled || prior.IsEmpty() {
		return domain.RetrievalOutcome{Results: pass1}, nil
	}

	decision := ShouldExpand(query, pass1, e.opts)
	if !decision.Triggered {
		return domain.RetrievalOutcome{Results: pass1}, nil
	}

	meta := &domain.ExpansionMetadata{
		Triggered:     true,
		Reason:        decision.Reason,
		Pass1Count:    len(pass1),
		Pass1TopScore: domain.TopScore(pass1),
	}

	expanded := BuildExpandedQuery(query, prior, e.opts.SummaryChars)
	pass2, err := e.retriever.Retrieve(ctx, expanded)
	if err != nil {
		meta.Pass2Error = err.Error()
		meta.LatencyMs = elapsedMs(start)
		slog.Warn("query_expansion_failed", "reason", decision.Reason, "error", err)
		return domain.RetrievalOutcome{Results: pass1, Expansion: meta}, nil
	}

	meta.Pass2Count = len(pass2)
	meta.Pass2TopScore = domain.TopScore(pass2)
	meta.UsedPass2 = preferSecondPass(pass1, pass2)
	meta.LatencyMs = elapsedMs(start)

	slog.Info("query_expansion",
		"reason", decision.Reason,
		"used_pass2", meta.UsedPass2,
		"pass1_count", meta.Pass1Count,
		"pass2_count", meta.Pass2Count,
		"pass1_top_score", meta.Pass1TopScore,
		"pass2_top_score", meta.Pass2TopScore,
		"latency_ms", meta.LatencyMs,
	)

	if meta.UsedPass2 {
		return domain.RetrievalOutcome{Results: pass2, Expansion: meta}, nil
	}
	return domain.RetrievalOutcome{Results: pass1, Expansion: meta}, nil
}

func preferSecondPass(pass1, pass2 []domain.RetrievalResult) bool {
	if len(pass2) > len(pass1) {
		return true
	}
	return domain.TopScore(pass2) > domain.TopScore(pass1)
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
