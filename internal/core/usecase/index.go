package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
	"github.com/kirillkom/resume-context-engine/internal/core/ports"
)

// BuildDocuments flattens knowledge entries into retrievable documents.
// Ids are stable as long as entry text and ordering do not change.
func BuildDocuments(entries []domain.KnowledgeEntry, chunker ports.Chunker) []domain.Document {
	docs := make([]domain.Document, 0, len(entries)*2)
	seen := make(map[string]int, len(entries))

	for idx, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		contextText := strings.TrimSpace(entry.Context)
		if name == "" && contextText == "" {
			continue
		}

		questionID := uniqueQuestionID(seen, QuestionID(entry.Name, idx))

		if name != "" {
			docs = append(docs, newDocument(questionID, domain.DocumentTypeName, 0, entry.Name, entry))
		}
		if contextText == "" {
			continue
		}
		for chunkIdx, chunk := range chunker.Split(entry.Context) {
			docs = append(docs, newDocument(questionID, domain.DocumentTypeContext, chunkIdx, chunk, entry))
		}
	}
	return docs
}

func newDocument(questionID string, docType domain.DocumentType, chunkIdx int, text string, entry domain.KnowledgeEntry) domain.Document {
	return domain.Document{
		ID:           DocumentID(questionID, docType, chunkIdx),
		QuestionID:   questionID,
		Type:         docType,
		Text:         text,
		QuestionName: entry.Name,
		Context:      entry.Context,
		ChunkIndex:   chunkIdx,
		ContentHash:  ContentHash(text),
	}
}

func DocumentID(questionID string, docType domain.DocumentType, chunkIdx int) string {
	if docType == domain.DocumentTypeContext {
		return fmt.Sprintf("%s:%s:%d", questionID, docType, chunkIdx)
	}
	return fmt.Sprintf("%s:%s", questionID, docType)
}

// QuestionID slugs the normalized name, or falls back to an index placeholder.
func QuestionID(name string, idx int) string {
	if slug := Slugify(name); slug != "" {
		return slug
	}
	return fmt.Sprintf("question-%d", idx)
}

func Slugify(s string) string {
	s = normalizeQuestion(s)
	var b strings.Builder
	b.Grow(len(s))
	pendingDash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

func uniqueQuestionID(seen map[string]int, id string) string {
	seen[id]++
	if seen[id] == 1 {
		return id
	}
	for n := seen[id]; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if _, taken := seen[candidate]; !taken {
			seen[candidate] = 1
			return candidate
		}
	}
}

// ContentHash identifies the exact text an embedding was computed from.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func normalizeQuestion(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
