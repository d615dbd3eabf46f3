package usecase

import (
	"sync"
	"testing"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

func TestFindExactMatchNormalizesQuestion(t *testing.T) {
	m := NewExactMatcher(sampleEntries())

	match, ok := m.FindExactMatch("   wHAT LANGUAGES do you know?\n")
	if !ok {
		t.Fatalf("expected exact match")
	}
	if match.Context != "I write Go, Rust and Python daily." || match.Verbatim {
		t.Fatalf("unexpected match: %+v", match)
	}

	verbatim, ok := m.FindExactMatch("can i see your cv?")
	if !ok || !verbatim.Verbatim {
		t.Fatalf("expected verbatim match, got %+v ok=%v", verbatim, ok)
	}
}

func TestFindExactMatchMisses(t *testing.T) {
	m := NewExactMatcher(sampleEntries())
	for _, q := range []string{"", "   ", "What languages do you know", "languages"} {
		if _, ok := m.FindExactMatch(q); ok {
			t.Fatalf("expected no match for %q", q)
		}
	}
}

func TestFindExactMatchFirstEntryWinsOnDuplicates(t *testing.T) {
	m := NewExactMatcher([]domain.KnowledgeEntry{
		{Name: "Where are you based?", Context: "Berlin"},
		{Name: "where are you based?", Context: "Lisbon", Verbatim: true},
		{Name: "", Context: "ignored"},
	})
	match, ok := m.FindExactMatch("WHERE ARE YOU BASED?")
	if !ok || match.Context != "Berlin" {
		t.Fatalf("expected first entry, got %+v", match)
	}
	if m.Size() != 1 {
		t.Fatalf("expected 1 lookup entry, got %d", m.Size())
	}
}

func TestFindExactMatchConcurrentFirstUse(t *testing.T) {
	m := NewExactMatcher(sampleEntries())
	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := m.FindExactMatch("What are your hobbies?"); !ok {
				errs <- "missing match"
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}
}
