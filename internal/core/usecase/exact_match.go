package usecase

import (
	"crypto/sha256"
	"strings"
	"sync"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

type questionKey [sha256.Size]byte

// ExactMatcher answers questions that equal a known question name after
// normalization. The lookup table is built once, on first use.
type ExactMatcher struct {
	entries []domain.KnowledgeEntry

	once   sync.Once
	lookup map[questionKey]domain.ExactMatch
}

func NewExactMatcher(entries []domain.KnowledgeEntry) *ExactMatcher {
	return &ExactMatcher{entries: append([]domain.KnowledgeEntry(nil), entries...)}
}

func (m *ExactMatcher) FindExactMatch(question string) (domain.ExactMatch, bool) {
	normalized := normalizeQuestion(question)
	if normalized == "" {
		return domain.ExactMatch{}, false
	}

	m.once.Do(m.build)
	match, ok := m.lookup[hashQuestion(normalized)]
	return match, ok
}

// Size reports the number of distinct questions in the lookup table.
func (m *ExactMatcher) Size() int {
	m.once.Do(m.build)
	return len(m.lookup)
}

func (m *ExactMatcher) build() {
	lookup := make(map[questionKey]domain.ExactMatch, len(m.entries))
	for _, entry := range m.entries {
		normalized := normalizeQuestion(entry.Name)
		if normalized == "" {
			continue
		}
		key := hashQuestion(normalized)
		// first entry wins on duplicate questions
		if _, exists := lookup[key]; exists {
			continue
		}
		lookup[key] = domain.ExactMatch{
			Question: strings.TrimSpace(entry.Name),
			Context:  entry.Context,
			Verbatim: entry.Verbatim,
		}
	}
	m.lookup = lookup
}

func hashQuestion(normalized string) questionKey {
	return sha256.Sum256([]byte(normalized))
}
