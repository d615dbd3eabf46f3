package ollama

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errMalformedResponse = errors.New("malformed embedding response")

// parseEmbeddings accepts the response shapes seen across providers:
//
//	{"embeddings": [[...], ...]}          Ollama /api/embed
//	{"embedding": [...]}                  Ollama /api/embeddings
//	{"data": [{"embedding": [...]}, ...]} OpenAI-compatible
//	[[...], ...] / [{"embedding": [...]}] / [...]
func parseEmbeddings(raw json.RawMessage) ([][]float32, error) {
	var object struct {
		Embeddings json.RawMessage `json:"embeddings"`
		Embedding  json.RawMessage `json:"embedding"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &object); err == nil {
		switch {
		case len(object.Embeddings) > 0 && string(object.Embeddings) != "null":
			return parseEmbeddings(object.Embeddings)
		case len(object.Data) > 0 && string(object.Data) != "null":
			return parseEmbeddings(object.Data)
		case len(object.Embedding) > 0 && string(object.Embedding) != "null":
			vector, err := parseVector(object.Embedding)
			if err != nil {
				return nil, err
			}
			return [][]float32{vector}, nil
		}
		return nil, fmt.Errorf("%w: no embeddings field", errMalformedResponse)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	if len(items) == 0 {
		return [][]float32{}, nil
	}

	// a flat list of numbers is a single vector
	var first float64
	if json.Unmarshal(items[0], &first) == nil {
		vector, err := parseVector(raw)
		if err != nil {
			return nil, err
		}
		return [][]float32{vector}, nil
	}

	out := make([][]float32, 0, len(items))
	for i, item := range items {
		var wrapped struct {
			Embedding json.RawMessage `json:"embedding"`
		}
		if json.Unmarshal(item, &wrapped) == nil && len(wrapped.Embedding) > 0 {
			item = wrapped.Embedding
		}
		vector, err := parseVector(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, vector)
	}
	return out, nil
}

func parseVector(raw json.RawMessage) ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	return vector, nil
}
