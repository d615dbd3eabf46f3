package chunking

import "strings"

const (
	DefaultChunkTokens   = 500
	DefaultOverlapTokens = 50
)

// Splitter produces overlapping windows of whitespace-delimited tokens.
type Splitter struct {
	ChunkTokens   int
	OverlapTokens int
}

type Span struct {
	Start int
	End   int
}

func NewSplitter(chunkTokens, overlapTokens int) *Splitter {
	chunkTokens, overlapTokens = clampWindow(chunkTokens, overlapTokens)
	return &Splitter{
		ChunkTokens:   chunkTokens,
		OverlapTokens: overlapTokens,
	}
}

// clampWindow defaults the window size and keeps overlap below it, so the
// window always advances.
func clampWindow(chunkTokens, overlapTokens int) (int, int) {
	if chunkTokens <= 0 {
		chunkTokens = DefaultChunkTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= chunkTokens {
		overlapTokens = chunkTokens - 1
	}
	return chunkTokens, overlapTokens
}

func (s *Splitter) Split(text string) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	spans := s.Windows(len(tokens))
	out := make([]string, 0, len(spans))
	for _, span := range spans {
		out = append(out, strings.Join(tokens[span.Start:span.End], " "))
	}
	return out
}

// Windows returns the token ranges Split uses for a stream of n tokens.
func (s *Splitter) Windows(n int) []Span {
	if n <= 0 {
		return nil
	}

	chunkTokens, overlapTokens := clampWindow(s.ChunkTokens, s.OverlapTokens)
	step := chunkTokens - overlapTokens

	out := make([]Span, 0, n/step+1)
	for start := 0; start < n; start += step {
		end := start + chunkTokens
		if end > n {
			end = n
		}
		out = append(out, Span{Start: start, End: end})
		if end == n {
			break
		}
	}
	return out
}
