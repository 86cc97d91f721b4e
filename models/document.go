package models

import "time"

// Document is raw source text extracted during ingestion.
type Document struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Title     string            `json:"title,omitempty"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Chunk is a substring of a Document. Start and End are rune offsets into
// Document.Content.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Source     string            `json:"source"`
	Order      int               `json:"order"`
	Text       string            `json:"text"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IndexEntry is what the vector index stores per chunk.
type IndexEntry struct {
	Vector   []float32         `json:"vector"`
	ChunkID  string            `json:"chunk_id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult is one hit returned by the index, highest score first.
type SearchResult struct {
	ChunkID  string            `json:"chunk_id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float32           `json:"score"`
}

// Metadata keys set by ingestion.
const (
	MetaSource     = "source"
	MetaTitle      = "title"
	MetaDocumentID = "document_id"
	MetaStart      = "start"
	MetaEnd        = "end"
)
