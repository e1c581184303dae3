package chunking

import (
	"strings"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

const DefaultMarker = "/**"

// DocCommentSplitter cuts a file in front of every documentation marker, so each
// unit chunk starts with its own comment and carries the code that follows it.
type DocCommentSplitter struct {
	Marker string
}

func NewDocCommentSplitter(marker string) *DocCommentSplitter {
	if marker == "" {
		marker = DefaultMarker
	}
	return &DocCommentSplitter{Marker: marker}
}

func (s *DocCommentSplitter) Split(path, content string) []domain.SourceChunk {
	bounds := s.boundaries(content)

	out := make([]domain.SourceChunk, 0, len(bounds)+1)
	start := 0
	for _, cut := range append(bounds, len(content)) {
		part := content[start:cut]
		chunkType := domain.ChunkUnit
		if start == 0 && !strings.HasPrefix(content, s.Marker) {
			chunkType = domain.ChunkHeader
		}
		start = cut

		if strings.TrimSpace(part) == "" {
			continue
		}
		out = append(out, domain.SourceChunk{
			Content:    part,
			SourcePath: path,
			Type:       chunkType,
			Ordinal:    len(out),
		})
	}
	return out
}

// boundaries returns every non-zero offset where the marker starts.
func (s *DocCommentSplitter) boundaries(content string) []int {
	var out []int
	for i := 1; i <= len(content)-len(s.Marker); i++ {
		if strings.HasPrefix(content[i:], s.Marker) {
			out = append(out, i)
		}
	}
	return out
}
