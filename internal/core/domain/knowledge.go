package domain

// KnowledgeEntry is one static question/answer unit of the knowledge base.
// Verbatim entries must be returned as-is when their name is matched exactly.
type KnowledgeEntry struct {
	Name     string `json:"name" yaml:"name"`
	Context  string `json:"context" yaml:"context"`
	Verbatim bool   `json:"verbatim" yaml:"verbatim"`
}

type DocumentType string

const (
	DocumentTypeName    DocumentType = "name"
	DocumentTypeContext DocumentType = "context"
)

// Document is an independently embeddable unit derived from a KnowledgeEntry.
// Context always holds the full, unchunked context of the source entry.
type Document struct {
	ID           string       `json:"id"`
	QuestionID   string       `json:"question_id"`
	Type         DocumentType `json:"type"`
	Text         string       `json:"text"`
	QuestionName string       `json:"question_name"`
	Context      string       `json:"context"`
	ChunkIndex   int          `json:"chunk_index"`
	ContentHash  string       `json:"content_hash"`
	Embedding    []float32    `json:"embedding,omitempty"`
}

// CachedEmbedding is the persisted form of a document vector.
type CachedEmbedding struct {
	ContentHash string    `json:"contentHash"`
	Embedding   []float32 `json:"embedding"`
}

type DocumentEmbeddingStatus struct {
	ID              string       `json:"id"`
	QuestionID      string       `json:"question_id"`
	Type            DocumentType `json:"type"`
	HasEmbedding    bool         `json:"has_embedding"`
	Fallback        bool         `json:"fallback"`
	EmbeddingLength int          `json:"embedding_length"`
}

// EmbeddingStatus counts provider vectors as cached. Documents holding a
// local fallback vector are counted separately and retried on later fills.
type EmbeddingStatus struct {
	Total     int                       `json:"total"`
	Cached    int                       `json:"cached"`
	Fallbacks int                       `json:"fallbacks"`
	Missing   int                       `json:"missing"`
	Documents []DocumentEmbeddingStatus `json:"documents"`
}

// ReindexRequest travels over the message queue from the API to the worker.
type ReindexRequest struct {
	Force       bool   `json:"force"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// ReindexCompleted is broadcast by the worker once a reindex has been written
// to the cache, so serving processes can reload their vectors.
type ReindexCompleted struct {
	Force       bool   `json:"force"`
	RequestedBy string `json:"requested_by,omitempty"`
	Cached      int    `json:"cached"`
	Fallbacks   int    `json:"fallbacks"`
	Missing     int    `json:"missing"`
}
