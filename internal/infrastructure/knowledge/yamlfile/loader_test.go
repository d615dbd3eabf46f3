package yamlfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

func TestParseListDocument(t *testing.T) {
	entries, err := Parse([]byte(`
- name: What languages do you know?
  context: |
    Go, Rust and Python.
- name: Can I see your CV?
  context: https://example.com/cv.pdf
  verbatim: true
- name: ""
  context: ""
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected blank entry to be dropped, got %+v", entries)
	}
	if entries[0].Context != "Go, Rust and Python.\n" || entries[0].Verbatim {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if !entries[1].Verbatim {
		t.Fatalf("expected verbatim entry: %+v", entries[1])
	}
}

func TestParseWrappedAndJSONDocuments(t *testing.T) {
	wrapped, err := Parse([]byte("entries:\n  - name: Hobbies?\n    context: Climbing\n"))
	if err != nil || len(wrapped) != 1 || wrapped[0].Name != "Hobbies?" {
		t.Fatalf("unexpected wrapped result %+v err=%v", wrapped, err)
	}

	fromJSON, err := Parse([]byte(`[{"name":"Where are you based?","context":"Berlin","verbatim":false}]`))
	if err != nil || len(fromJSON) != 1 || fromJSON[0].Context != "Berlin" {
		t.Fatalf("unexpected json result %+v err=%v", fromJSON, err)
	}

	empty, err := Parse([]byte("  \n"))
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty knowledge base, got %+v err=%v", empty, err)
	}
}

func TestParseRejectsScalars(t *testing.T) {
	_, err := Parse([]byte("just a string"))
	if !domain.IsKind(err, domain.ErrKnowledgeBase) {
		t.Fatalf("expected ErrKnowledgeBase, got %v", err)
	}
}

func TestLoaderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	if err := os.WriteFile(path, []byte("- name: Q\n  context: A\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	entries, err := NewLoader(path).Load(context.Background())
	if err != nil || len(entries) != 1 {
		t.Fatalf("Load() = %+v err=%v", entries, err)
	}

	_, err = NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	if !domain.IsKind(err, domain.ErrKnowledgeBase) {
		t.Fatalf("expected ErrKnowledgeBase for missing file, got %v", err)
	}
}
