package domain

import "time"

type ChunkType string

const (
	// ChunkHeader is the file content preceding the first documentation marker.
	ChunkHeader ChunkType = "header"
	// ChunkUnit is a documentation comment plus the code that follows it.
	ChunkUnit ChunkType = "unit"
)

type SourceChunk struct {
	Content    string    `json:"content"`
	SourcePath string    `json:"source_path"`
	Type       ChunkType `json:"chunk_type"`
	Ordinal    int       `json:"ordinal"`
}

type IndexedDocument struct {
	ID     string      `json:"id"`
	Chunk  SourceChunk `json:"chunk"`
	Vector []float32   `json:"-"`
}

type IndexStats struct {
	FilesSeen    int           `json:"files_seen"`
	FilesSkipped int           `json:"files_skipped"`
	Chunks       int           `json:"chunks"`
	Batches      int           `json:"batches"`
	Loaded       bool          `json:"loaded"`
	Duration     time.Duration `json:"duration"`
}
