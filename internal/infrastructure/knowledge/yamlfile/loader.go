package yamlfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

// Loader reads knowledge entries from a YAML (or JSON) file. The document is
// either a list of entries or a mapping with an "entries" list.
type Loader struct {
	path string
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

func (l *Loader) Load(_ context.Context) ([]domain.KnowledgeEntry, error) {
	b, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrKnowledgeBase, "load knowledge", fmt.Errorf("file not found: %s", l.path))
		}
		return nil, domain.WrapError(domain.ErrKnowledgeBase, "load knowledge", err)
	}
	return Parse(b)
}

// Parse decodes knowledge entries and drops entries with neither a name nor a context.
func Parse(b []byte) ([]domain.KnowledgeEntry, error) {
	if len(strings.TrimSpace(string(b))) == 0 {
		return []domain.KnowledgeEntry{}, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, domain.WrapError(domain.ErrKnowledgeBase, "parse knowledge", err)
	}

	var entries []domain.KnowledgeEntry
	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&entries); err != nil {
			return nil, domain.WrapError(domain.ErrKnowledgeBase, "decode knowledge", err)
		}
	case yaml.MappingNode:
		var wrapper struct {
			Entries []domain.KnowledgeEntry `yaml:"entries"`
		}
		if err := node.Decode(&wrapper); err != nil {
			return nil, domain.WrapError(domain.ErrKnowledgeBase, "decode knowledge", err)
		}
		entries = wrapper.Entries
	default:
		return nil, domain.WrapError(domain.ErrKnowledgeBase, "decode knowledge", fmt.Errorf("expected a list of entries"))
	}

	out := make([]domain.KnowledgeEntry, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.Name) == "" && strings.TrimSpace(entry.Context) == "" {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
