package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

var keywordVocabulary = []string{
	"languages", "go", "rust", "python", "hobbies", "music", "climbing",
	"kubernetes", "experience", "years", "education", "university",
}

func keywordVector(text string) []float32 {
	counts := make(map[string]float32)
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		counts[token]++
	}
	out := make([]float32, len(keywordVocabulary))
	for i, word := range keywordVocabulary {
		out[i] = counts[word]
	}
	return out
}

// keywordProvider embeds texts as keyword counts and records every call.
type keywordProvider struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	// failText makes single-text calls for that text fail.
	failText string
	// dropLast returns one vector fewer than requested for multi-text calls.
	dropLast bool
	// gate, when set, holds every call until it is closed or ctx ends.
	gate chan struct{}
}

func (p *keywordProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]string(nil), texts...))
	err := p.err
	p.mu.Unlock()

	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if len(texts) == 1 && p.failText != "" && texts[0] == p.failText {
		return nil, errors.New("provider rejected text")
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, keywordVector(text))
	}
	if p.dropLast && len(texts) > 1 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (p *keywordProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *keywordProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *keywordProvider) embeddedTexts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, call := range p.calls {
		n += len(call)
	}
	return n
}

type memoryKV struct {
	mu      sync.Mutex
	data    map[string]string
	puts    int
	deletes int
	getErr  error
	putErr  error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.data[key] = value
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, key)
	return nil
}

type wholeChunker struct{}

func (wholeChunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []string{text}
}

type sentenceChunker struct{}

func (sentenceChunker) Split(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ".") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func sampleEntries() []domain.KnowledgeEntry {
	return []domain.KnowledgeEntry{
		{Name: "What languages do you know?", Context: "I write Go, Rust and Python daily."},
		{Name: "What are your hobbies?", Context: "Music and climbing on weekends."},
		{Name: "Can I see your CV?", Context: "The CV is available at /cv.pdf and is sent as-is.", Verbatim: true},
	}
}

type testEngine struct {
	provider  *keywordProvider
	store     *memoryKV
	service   *EmbeddingService
	retriever *Retriever
}

func newTestEngine(entries []domain.KnowledgeEntry, provider *keywordProvider, store *memoryKV) *testEngine {
	adapter := NewEmbeddingAdapter(provider, 0, nil)
	cache := NewEmbeddingCache(store, "", nil)
	service := NewEmbeddingService(BuildDocuments(entries, wholeChunker{}), adapter, cache, 2)
	return &testEngine{
		provider:  provider,
		store:     store,
		service:   service,
		retriever: NewRetriever(service, adapter, RetrievalOptions{MinScore: 0.6, MaxResults: 5}),
	}
}
